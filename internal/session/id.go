package session

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

const (
	idEntropyBytes = 16
	maxIDLength    = 128
)

// NewID returns an opaque base58 session id.
func NewID() (string, error) {
	buf := make([]byte, idEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}

// WellFormedID reports whether a client-presented id may be adopted as a
// session id: non-empty, bounded and made of visible ASCII only.
func WellFormedID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
