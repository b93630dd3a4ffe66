package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/and161185/loandocs/internal/errs"
)

const (
	maxNameLen     = 100
	maxIDCardLen   = 32
	maxTextContent = 64 << 10
)

func invalid(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, errs.ErrInvalidInput)...)
}

func validateCredentials(username, password string) error {
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return invalid("username must be 3-50 characters")
	}
	if n := len(password); n < 6 || n > 72 {
		return invalid("password must be 6-72 bytes")
	}
	return nil
}

// cleanName trims s and checks it is a non-empty name of bounded length.
func cleanName(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("%s is required", field)
	}
	if utf8.RuneCountInString(s) > maxNameLen {
		return "", invalid("%s is longer than %d characters", field, maxNameLen)
	}
	return s, nil
}

// cleanIDCard accepts an empty value or a short alphanumeric document number.
func cleanIDCard(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > maxIDCardLen {
		return "", invalid("id card number too long")
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsDigit(r) || unicode.IsLetter(r)) {
			return "", invalid("id card number must be alphanumeric")
		}
	}
	return s, nil
}

func validSortOrder(n int) error {
	if n < 0 {
		return invalid("sort order must not be negative")
	}
	return nil
}
