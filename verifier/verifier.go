// Package verifier provides the pluggable content-hash interface the
// chunker uses to verify staged chunk data, with an MD5-based default.
package verifier

import (
	"crypto/md5"
	"encoding/hex"
)

// Verifier computes and checks a content hash over a byte buffer. The spec
// deliberately keeps the concrete hash implementation out of the engine's
// scope (see spec.md §1); this interface is the seam.
type Verifier interface {
	// Hash returns a lowercase hex digest of data.
	Hash(data []byte) string
	// Verify reports whether Hash(data) equals expected.
	Verify(data []byte, expected string) bool
}

// MD5Verifier is the default Verifier, grounded on the original
// implementation's Md5Verifier.
type MD5Verifier struct{}

// NewMD5Verifier constructs the default verifier.
func NewMD5Verifier() MD5Verifier {
	return MD5Verifier{}
}

func (MD5Verifier) Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (v MD5Verifier) Verify(data []byte, expected string) bool {
	return v.Hash(data) == expected
}
