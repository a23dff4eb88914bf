package card

import (
	"encoding/hex"
	"strings"
)

// IDm is the manufacture identifier a contactless card reports when sensed.
// It is opaque: it is only compared and used as a lookup key.
type IDm []byte

// String returns the canonical lowercase hex form used as cache key and on the wire.
func (id IDm) String() string {
	return hex.EncodeToString(id)
}

// Empty reports whether the reader produced no identifier bytes.
func (id IDm) Empty() bool {
	return len(id) == 0
}

// ParseIDm converts a reader line into an IDm. Valid hex (any case, optional
// surrounding whitespace) is decoded; anything else is kept as raw bytes.
func ParseIDm(s string) IDm {
	s = strings.TrimSpace(s)
	if s == "" {
		return IDm{}
	}
	if b, err := hex.DecodeString(s); err == nil {
		return IDm(b)
	}
	return IDm(s)
}
