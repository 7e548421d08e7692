package trust_test

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adamwoolhether/httpstream/client/trust"
	"github.com/adamwoolhether/httpstream/internal/tlstest"
	"github.com/google/go-cmp/cmp"
	"github.com/multiformats/go-multihash"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func challengeFor(certs *tlstest.Certs, roots *x509.CertPool) trust.Challenge {
	return trust.Challenge{
		Method: trust.MethodServerTrust,
		Host:   "localhost",
		Trust: &trust.Trust{
			Certificates: []*x509.Certificate{certs.Leaf},
			Roots:        roots,
			DNSName:      "localhost",
		},
	}
}

func TestValidator_Evaluate(t *testing.T) {
	certs := tlstest.Generate(t)
	other := tlstest.Generate(t)

	testCases := []struct {
		name      string
		policy    trust.Policy
		challenge trust.Challenge
		accept    bool
	}{
		{
			name:      "no policy passes through",
			policy:    nil,
			challenge: challengeFor(certs, x509.NewCertPool()),
			accept:    true,
		},
		{
			name:      "no policy without trust object",
			policy:    nil,
			challenge: trust.Challenge{Method: trust.MethodServerTrust},
			accept:    true,
		},
		{
			name:      "public key pin matches",
			policy:    trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    true,
		},
		{
			name:      "public key pin mismatch",
			policy:    trust.PublicKeyPinning{Hash: trust.PublicKeyHash(other.Leaf)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    false,
		},
		{
			name:      "certificate pin matches",
			policy:    trust.CertificatePinning{Certificate: certs.Leaf, Hash: trust.CertificateHash(certs.Leaf)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    true,
		},
		{
			name:      "certificate pin on the CA in the resolved chain",
			policy:    trust.CertificatePinning{Certificate: certs.CA, Hash: trust.CertificateHash(certs.CA)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    true,
		},
		{
			name:      "certificate pin hash mismatch",
			policy:    trust.CertificatePinning{Certificate: certs.Leaf, Hash: trust.CertificateHash(other.Leaf)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    false,
		},
		{
			name:      "certificate pin not in chain",
			policy:    trust.CertificatePinning{Certificate: other.Leaf, Hash: trust.CertificateHash(other.Leaf)},
			challenge: challengeFor(certs, certs.Pool),
			accept:    false,
		},
		{
			name:      "chain fails platform evaluation",
			policy:    trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: challengeFor(certs, other.Pool),
			accept:    false,
		},
		{
			name:   "hostname mismatch fails evaluation",
			policy: trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: trust.Challenge{
				Method: trust.MethodServerTrust,
				Host:   "example.com",
				Trust: &trust.Trust{
					Certificates: []*x509.Certificate{certs.Leaf},
					Roots:        certs.Pool,
					DNSName:      "example.com",
				},
			},
			accept: false,
		},
		{
			name:   "non server trust challenge",
			policy: trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: trust.Challenge{
				Method: trust.MethodHTTPBasic,
				Trust:  challengeFor(certs, certs.Pool).Trust,
			},
			accept: false,
		},
		{
			name:      "missing trust object",
			policy:    trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: trust.Challenge{Method: trust.MethodServerTrust},
			accept:    false,
		},
		{
			name:   "expired chain",
			policy: trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)},
			challenge: trust.Challenge{
				Method: trust.MethodServerTrust,
				Trust: &trust.Trust{
					Certificates: []*x509.Certificate{certs.Leaf},
					Roots:        certs.Pool,
					Time:         time.Now().Add(72 * time.Hour),
				},
			},
			accept: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := trust.NewValidator(tc.policy, discardLogger())
			if err != nil {
				t.Fatalf("new validator: %v", err)
			}

			d := v.Evaluate(t.Context(), tc.challenge)
			if d.Accepted() != tc.accept {
				t.Fatalf("exp accept=%t, got %t (reason %q)", tc.accept, d.Accepted(), d.Reason)
			}

			if tc.accept && d.Credential == nil {
				t.Error("exp credential on acceptance")
			}
			if !tc.accept {
				if d.Credential != nil {
					t.Error("exp no credential on rejection")
				}
				if d.Reason == "" {
					t.Error("exp rejection reason")
				}
			}
		})
	}
}

func TestValidator_EvaluateResolvesChain(t *testing.T) {
	certs := tlstest.Generate(t)

	v, err := trust.NewValidator(trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)}, discardLogger())
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	d := v.Evaluate(t.Context(), challengeFor(certs, certs.Pool))
	if !d.Accepted() {
		t.Fatalf("exp accepted, got %q", d.Reason)
	}

	var got []string
	for _, c := range d.Credential.Chain {
		got = append(got, c.Subject.Organization[0])
	}
	want := []string{"httpstream test", "httpstream test CA"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved chain mismatch (-want +got):\n%s", diff)
	}
}

func TestValidator_EvaluateAsync(t *testing.T) {
	certs := tlstest.Generate(t)

	v, err := trust.NewValidator(trust.PublicKeyPinning{Hash: trust.PublicKeyHash(certs.Leaf)}, discardLogger())
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	decisions := make(chan trust.Decision, 1)
	v.EvaluateAsync(t.Context(), challengeFor(certs, certs.Pool), func(d trust.Decision) {
		decisions <- d
	})

	select {
	case d := <-decisions:
		if !d.Accepted() {
			t.Errorf("exp accepted, got %q", d.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("decision not delivered in time")
	}
}

func TestNewValidator_Errors(t *testing.T) {
	certs := tlstest.Generate(t)

	testCases := []struct {
		name   string
		policy trust.Policy
	}{
		{name: "bad public key hash", policy: trust.PublicKeyPinning{Hash: "not-a-digest"}},
		{name: "empty public key hash", policy: trust.PublicKeyPinning{}},
		{name: "certificate missing", policy: trust.CertificatePinning{Hash: trust.CertificateHash(certs.Leaf)}},
		{name: "bad certificate hash", policy: trust.CertificatePinning{Certificate: certs.Leaf, Hash: "abc"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := trust.NewValidator(tc.policy, nil); err == nil {
				t.Fatal("exp error")
			}
		})
	}
}

func TestParseDigest(t *testing.T) {
	data := []byte("subject public key info")

	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash sum: %v", err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		t.Fatalf("multihash decode: %v", err)
	}
	want := decoded.Digest

	sha1, err := multihash.Sum(data, multihash.SHA1, -1)
	if err != nil {
		t.Fatalf("multihash sum sha1: %v", err)
	}

	testCases := []struct {
		name   string
		input  string
		expErr bool
	}{
		{name: "base64", input: base64.StdEncoding.EncodeToString(want)},
		{name: "base64 with prefix", input: "sha256/" + base64.StdEncoding.EncodeToString(want)},
		{name: "hex", input: hex.EncodeToString(want)},
		{name: "multihash", input: mh.B58String()},
		{name: "surrounding whitespace", input: "  " + hex.EncodeToString(want) + "\n"},
		{name: "empty", input: "", expErr: true},
		{name: "garbage", input: "!!!", expErr: true},
		{name: "short base64", input: base64.StdEncoding.EncodeToString(want[:16]), expErr: true},
		{name: "sha1 multihash", input: sha1.B58String(), expErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := trust.ParseDigest(tc.input)
			if tc.expErr {
				if !errors.Is(err, trust.ErrInvalidDigest) {
					t.Fatalf("exp ErrInvalidDigest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("exp nil err, got %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("digest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRejectedError(t *testing.T) {
	var err error = &trust.RejectedError{Host: "api.example.com", Reason: "pinned material mismatch"}

	var re *trust.RejectedError
	if !errors.As(err, &re) || !re.TrustRejected() {
		t.Fatal("exp RejectedError flagged as trust rejection")
	}

	want := "peer api.example.com rejected: pinned material mismatch"
	if err.Error() != want {
		t.Errorf("exp %q, got %q", want, err.Error())
	}
}

func TestChallengeFromState(t *testing.T) {
	certs := tlstest.Generate(t)
	evil := certs.Issue(t, "evil.example")

	testCases := []struct {
		name     string
		sni      string
		host     string
		leaf     *x509.Certificate
		expHost  string
		expValid bool
	}{
		{name: "dialed ip with ip san", host: "127.0.0.1", leaf: certs.Leaf, expHost: "127.0.0.1", expValid: true},
		{name: "dialed ip without ip san", host: "127.0.0.1", leaf: evil.Leaf, expHost: "127.0.0.1"},
		{name: "falls back to sni", sni: "localhost", leaf: certs.Leaf, expHost: "localhost", expValid: true},
		{name: "sni mismatch", sni: "localhost", leaf: evil.Leaf, expHost: "localhost"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cs := tls.ConnectionState{ServerName: tc.sni, PeerCertificates: []*x509.Certificate{tc.leaf}}

			ch := trust.ChallengeFromState(cs, tc.host, certs.Pool)
			if ch.Host != tc.expHost || ch.Trust.DNSName != tc.expHost {
				t.Fatalf("exp host %q, got host %q dns name %q", tc.expHost, ch.Host, ch.Trust.DNSName)
			}

			_, err := ch.Trust.Evaluate(t.Context())
			if tc.expValid && err != nil {
				t.Fatalf("exp valid chain, got %v", err)
			}
			if !tc.expValid && err == nil {
				t.Fatal("exp verification error")
			}
		})
	}
}
