package utils

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/ueckoken/kagi/internal/core/domain/card"
)

var ErrHashKeyTooLong = errors.New("card hash key must be at most 64 bytes")

// CardHasher derives the identifier stored in the audit log so raw IDm values
// never reach the database.
type CardHasher struct {
	key []byte
}

// NewCardHasher accepts an empty key (plain BLAKE2b-256) or up to 64 bytes.
func NewCardHasher(key string) (*CardHasher, error) {
	if len(key) > blake2b.Size {
		return nil, ErrHashKeyTooLong
	}
	return &CardHasher{key: []byte(key)}, nil
}

// Hash returns the hex keyed BLAKE2b-256 digest of id.
func (h *CardHasher) Hash(id card.IDm) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewCardHasher
		panic(err)
	}
	mac.Write(id)
	return hex.EncodeToString(mac.Sum(nil))
}
