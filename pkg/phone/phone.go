// Package phone normalizes phone numbers to E.164 for use as stable
// account identifiers.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalidNumber = errors.New("invalid phone number")

// Normalize converts a user-supplied phone number to E.164 form:
// a leading + followed by 8 to 15 digits. Spaces, dashes, dots and
// parentheses are stripped; an international 00 prefix is rewritten
// to +. Numbers without a country code are rejected, since the value
// keys registration ceremonies and must be globally unique.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidNumber
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, drop
		default:
			return "", ErrInvalidNumber
		}
	}

	s = b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		return "", ErrInvalidNumber
	}

	digits := s[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidNumber
	}
	if strings.HasPrefix(digits, "0") {
		return "", ErrInvalidNumber
	}

	return s, nil
}
