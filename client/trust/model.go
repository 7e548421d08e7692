package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ErrNoCertificates is reported when the peer presented an empty chain.
var ErrNoCertificates = errors.New("peer presented no certificates")

// Policy is a pinning policy. It is implemented by [CertificatePinning] and
// [PublicKeyPinning] only.
type Policy interface {
	policy()
}

// CertificatePinning pins a known certificate. Hash is the expected digest of
// Certificate's DER encoding.
type CertificatePinning struct {
	Certificate *x509.Certificate
	Hash        string
}

// PublicKeyPinning pins the leaf public key. Hash is the expected digest of
// the leaf's SubjectPublicKeyInfo.
type PublicKeyPinning struct {
	Hash string
}

func (CertificatePinning) policy() {}
func (PublicKeyPinning) policy()   {}

// AuthMethod is the protection space authentication method of a challenge.
type AuthMethod int

const (
	MethodDefault AuthMethod = iota
	MethodServerTrust
	MethodClientCertificate
	MethodHTTPBasic
)

// Challenge is one authentication challenge raised during a handshake.
type Challenge struct {
	Method AuthMethod
	Host   string
	// Trust is nil when the peer offered nothing to evaluate.
	Trust *Trust
}

// Trust is the peer's presented chain and the material needed to evaluate it.
type Trust struct {
	// Certificates holds the peer chain, leaf first.
	Certificates []*x509.Certificate
	// Roots nil means the system pool.
	Roots *x509.CertPool
	// DNSName is a host name or IP literal. Empty skips hostname verification.
	DNSName string
	// Time zero means now.
	Time time.Time
}

// ChallengeFromState builds a server trust challenge from a finished
// handshake. host is the dialed host, IP literals included; empty falls back
// to the SNI name, which never carries an IP.
func ChallengeFromState(cs tls.ConnectionState, host string, roots *x509.CertPool) Challenge {
	if host == "" {
		host = cs.ServerName
	}

	ch := Challenge{
		Method: MethodServerTrust,
		Host:   host,
	}
	if len(cs.PeerCertificates) > 0 {
		ch.Trust = &Trust{
			Certificates: cs.PeerCertificates,
			Roots:        roots,
			DNSName:      host,
		}
	}

	return ch
}

// Evaluate verifies the chain on its own goroutine. The caller suspends until
// verification completes or ctx ends, and receives the resolved chain.
func (t *Trust) Evaluate(ctx context.Context) ([]*x509.Certificate, error) {
	type result struct {
		chain []*x509.Certificate
		err   error
	}

	out := make(chan result, 1)
	go func() {
		chain, err := t.verify()
		out <- result{chain: chain, err: err}
	}()

	select {
	case r := <-out:
		return r.chain, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Trust) verify() ([]*x509.Certificate, error) {
	if len(t.Certificates) == 0 {
		return nil, ErrNoCertificates
	}

	intermediates := x509.NewCertPool()
	for _, c := range t.Certificates[1:] {
		intermediates.AddCert(c)
	}

	chains, err := t.Certificates[0].Verify(x509.VerifyOptions{
		Roots:         t.Roots,
		Intermediates: intermediates,
		DNSName:       t.DNSName,
		CurrentTime:   t.Time,
	})
	if err != nil {
		return nil, err
	}

	return chains[0], nil
}

// Disposition is the outcome handed back to the transport.
type Disposition int

const (
	CancelChallenge Disposition = iota
	UseCredential
)

// Credential is built from an accepted trust object.
type Credential struct {
	Trust *Trust
	// Chain is the resolved chain, nil in pass-through mode.
	Chain []*x509.Certificate
}

// Decision is the per-challenge verdict. It is never cached.
type Decision struct {
	Disposition Disposition
	Credential  *Credential
	// Reason explains a rejection for diagnostics.
	Reason string
}

// Accepted reports whether the challenge may proceed.
func (d Decision) Accepted() bool {
	return d.Disposition == UseCredential
}

// RejectedError is raised by the TLS hook when a decision rejects the peer.
type RejectedError struct {
	Host   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("peer rejected: %s", e.Reason)
	}

	return fmt.Sprintf("peer %s rejected: %s", e.Host, e.Reason)
}

// TrustRejected marks the error as a trust failure for classification.
func (e *RejectedError) TrustRejected() bool { return true }
