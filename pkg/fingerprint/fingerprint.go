// Package fingerprint computes content fingerprints used to detect changes
// to compiled artifacts and their sources.
package fingerprint

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Func maps bytes to an opaque, deterministic fingerprint string.
type Func func(data []byte) string

// Size is the digest length in bytes.
const Size = 32

// Of returns the hex encoded BLAKE3-256 digest of data.
func Of(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal reports whether two fingerprints are identical. An empty
// fingerprint never matches.
func Equal(a, b string) bool {
	return a != "" && a == b
}
