package download

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// checksumVerifier hashes the body as it is written to disk and compares
// the digest once the copy ends.
type checksumVerifier struct {
	hash     hash.Hash
	expected []byte
}

// newChecksumVerifier accepts a hex digest, optionally prefixed with an
// algorithm name such as "sha256:". Case is ignored.
func newChecksumVerifier(h hash.Hash, expected string) (*checksumVerifier, error) {
	s := strings.TrimSpace(expected)
	if _, digest, ok := strings.Cut(s, ":"); ok {
		s = digest
	}

	want, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("expected checksum %q is not hex: %w", expected, err)
	}

	h.Reset()

	return &checksumVerifier{hash: h, expected: want}, nil
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

func (v *checksumVerifier) Verify() error {
	if v == nil {
		return nil
	}

	actual := v.hash.Sum(nil)
	if subtle.ConstantTimeCompare(actual, v.expected) != 1 {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %x, got %x", v.expected, actual),
		}
	}

	return nil
}
