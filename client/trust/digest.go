package trust

import (
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multihash"
)

// ErrInvalidDigest is returned when a pin cannot be parsed as a SHA-256 digest.
var ErrInvalidDigest = errors.New("invalid sha-256 digest")

const digestSize = 32

// sum256 hashes data with sha2-256 through a multihash and returns the raw digest.
func sum256(data []byte) []byte {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// Unreachable for SHA2_256 with default length.
		return nil
	}

	decoded, err := multihash.Decode(mh)
	if err != nil {
		return nil
	}

	return decoded.Digest
}

// ParseDigest decodes an expected pin into its 32 raw bytes.
func ParseDigest(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "sha256/")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDigest)
	}

	if len(s) == hex.EncodedLen(digestSize) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == digestSize {
		return b, nil
	}

	if mh, err := multihash.FromB58String(s); err == nil {
		decoded, err := multihash.Decode(mh)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
		}
		if decoded.Code != multihash.SHA2_256 {
			return nil, fmt.Errorf("%w: multihash uses %s", ErrInvalidDigest, decoded.Name)
		}
		return decoded.Digest, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidDigest, s)
}

// CertificateHash returns the base64 SHA-256 digest of the certificate's DER bytes.
func CertificateHash(cert *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(sum256(cert.Raw))
}

// PublicKeyHash returns the base64 SHA-256 digest of the certificate's
// SubjectPublicKeyInfo.
func PublicKeyHash(cert *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(sum256(cert.RawSubjectPublicKeyInfo))
}

func digestEqual(a, b []byte) bool {
	return len(a) == digestSize && subtle.ConstantTimeCompare(a, b) == 1
}
