package order

import (
	"crypto/rand"
	"crypto/subtle"
	"strings"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
)

const (
	pickupCodeLength   = 6
	pickupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberPrefix  = "ORD-"
)

// NewPickupCode returns a random 6 character upper-case alphanumeric code.
func NewPickupCode() (string, error) {
	// Bytes at or above the largest multiple of the alphabet size are
	// rejected so every symbol is equally likely.
	const limit = 256 - 256%len(pickupCodeAlphabet)

	var b strings.Builder
	b.Grow(pickupCodeLength)
	buf := make([]byte, 16)
	for b.Len() < pickupCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(pickupCodeAlphabet[int(c)%len(pickupCodeAlphabet)])
			if b.Len() == pickupCodeLength {
				break
			}
		}
	}
	return b.String(), nil
}

// MatchPickupCode compares the supplied code with the order's code exactly.
func MatchPickupCode(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// NewOrderNumber returns a unique, sortable, human readable order number.
func NewOrderNumber() string {
	return orderNumberPrefix + ulid.Make().String()
}
