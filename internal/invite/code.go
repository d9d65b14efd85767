// Package invite generates and validates family invite codes.
//
// A code is drawn uniformly from Alphabet: upper-case letters without the
// letter O (which reads like zero) and the digits 1-9. Codes are normally
// Length characters long; FallbackLength codes are only issued when the
// short keyspace keeps colliding.
package invite

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sakif/chore-tracker/internal/apperror"
)

const (
	Alphabet       = "ABCDEFGHIJKLMNPQRSTUVWXYZ123456789"
	Length         = 6
	FallbackLength = 8
)

// rejectAbove is the largest multiple of len(Alphabet) that fits in a byte.
// Bytes at or above it are discarded so every symbol is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

// New returns a random code of the given length using crypto/rand.
func New(n int) (string, error) {
	return Generate(rand.Reader, n)
}

// Generate draws n symbols from r.
func Generate(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invite: code length must be positive, got %d", n)
	}

	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("invite: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			sb.WriteByte(Alphabet[int(b)%len(Alphabet)])
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String(), nil
}

// Normalize trims surrounding whitespace and upper-cases the code, so users
// can type it in any case.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks an already normalized code's length, matching the join
// screen. The characters are not checked here: a code that could never have
// been issued (say, one with a zero in it) is simply not found on lookup.
func Validate(code string) error {
	if n := utf8.RuneCountInString(code); n != Length && n != FallbackLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("invite code must be %d characters long", Length))
	}
	return nil
}
