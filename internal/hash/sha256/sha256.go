// Package sha256 names archived records by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmpty means there is nothing worth archiving under a content name.
var ErrEmpty = errors.New("empty record has no content digest")

// Hasher implements ingest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of a record's raw bytes. Empty input
// is rejected so zero-byte files never share one archive object.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
