// Package phone converts free-form phone numbers into the 10-digit national form used as the
// consent directory's lookup key (e.g. "0532 123 45 67" -> "5321234567").
package phone

import (
	"errors"
	"strings"
)

// NationalLength is the digit count of a normalized number.
const NationalLength = 10

// ErrInvalidPhoneNumber is returned for any input that does not match a recognized phone shape.
var ErrInvalidPhoneNumber = errors.New("phone: invalid phone number")

// prefixes that may precede the national number, keyed by total digit count.
var trunkPrefixes = map[int]string{
	NationalLength:     "",
	NationalLength + 1: "0",
	NationalLength + 2: "90",
	NationalLength + 4: "0090",
}

// Normalize strips separators and a single leading '+', then reduces the remaining digits to the
// national number. Inputs with letters, a wrong digit count, a wrong prefix, or a national number
// starting with 0 return ErrInvalidPhoneNumber.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case isSeparator(r):
		default:
			return "", ErrInvalidPhoneNumber
		}
	}
	digits := b.String()

	prefix, ok := trunkPrefixes[len(digits)]
	if !ok || !strings.HasPrefix(digits, prefix) {
		return "", ErrInvalidPhoneNumber
	}
	national := digits[len(prefix):]
	if national[0] == '0' {
		return "", ErrInvalidPhoneNumber
	}
	return national, nil
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '-', '.', '(', ')', '/':
		return true
	}
	return false
}
