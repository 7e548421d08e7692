package trust

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
)

// Validator evaluates challenges against an immutable pinning policy.
type Validator struct {
	policy   Policy
	expected []byte
	logger   *slog.Logger
}

// NewValidator parses the policy's expected digest. A nil policy yields a
// pass-through validator. A nil logger falls back to slog.Default.
func NewValidator(policy Policy, logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := &Validator{policy: policy, logger: logger}

	switch p := policy.(type) {
	case nil:
	case CertificatePinning:
		if p.Certificate == nil {
			return nil, errors.New("certificate pinning requires a certificate")
		}
		expected, err := ParseDigest(p.Hash)
		if err != nil {
			return nil, fmt.Errorf("certificate pin: %w", err)
		}
		v.expected = expected
	case PublicKeyPinning:
		expected, err := ParseDigest(p.Hash)
		if err != nil {
			return nil, fmt.Errorf("public key pin: %w", err)
		}
		v.expected = expected
	default:
		return nil, fmt.Errorf("unsupported pinning policy %T", policy)
	}

	return v, nil
}

// Pinned reports whether a policy is configured.
func (v *Validator) Pinned() bool {
	return v.policy != nil
}

// Evaluate decides a single challenge. It suspends while the chain is
// verified but never blocks past ctx.
func (v *Validator) Evaluate(ctx context.Context, ch Challenge) Decision {
	if v.policy == nil {
		v.logger.Debug("ssl pinning disabled, using default handling", "host", ch.Host)
		return Decision{Disposition: UseCredential, Credential: &Credential{Trust: ch.Trust}}
	}

	if ch.Method != MethodServerTrust || ch.Trust == nil {
		return reject("challenge is not a server trust challenge")
	}

	chain, err := ch.Trust.Evaluate(ctx)
	if err != nil {
		v.logger.Warn("trust failed", "host", ch.Host, "reason", err)
		return reject(err.Error())
	}

	var pinned bool
	switch p := v.policy.(type) {
	case CertificatePinning:
		pinned = v.certificatePinned(p.Certificate, chain)
	case PublicKeyPinning:
		pinned = v.publicKeyPinned(chain)
	}

	if !pinned {
		v.logger.Warn("pinned material mismatch", "host", ch.Host)
		return reject("pinned material mismatch")
	}

	return Decision{
		Disposition: UseCredential,
		Credential:  &Credential{Trust: ch.Trust, Chain: chain},
	}
}

// EvaluateAsync runs Evaluate on a new goroutine and hands the decision to fn.
func (v *Validator) EvaluateAsync(ctx context.Context, ch Challenge, fn func(Decision)) {
	go func() {
		fn(v.Evaluate(ctx, ch))
	}()
}

// certificatePinned hashes the configured certificate and requires that
// same certificate to appear in the resolved chain.
func (v *Validator) certificatePinned(cert *x509.Certificate, chain []*x509.Certificate) bool {
	if !digestEqual(sum256(cert.Raw), v.expected) {
		return false
	}

	for _, c := range chain {
		if bytes.Equal(c.Raw, cert.Raw) {
			return true
		}
	}

	return false
}

func (v *Validator) publicKeyPinned(chain []*x509.Certificate) bool {
	if len(chain) == 0 {
		return false
	}

	return digestEqual(sum256(chain[0].RawSubjectPublicKeyInfo), v.expected)
}

func reject(reason string) Decision {
	return Decision{Disposition: CancelChallenge, Reason: reason}
}
