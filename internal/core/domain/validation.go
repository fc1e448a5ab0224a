package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTagLength bounds customer_id and label.
const MaxTagLength = 256

// NormalizeTag trims an optional tag. Blank values are treated as absent.
func NormalizeTag(name string, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxTagLength {
		return nil, fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidArgument, name, MaxTagLength)
	}
	if strings.ContainsFunc(trimmed, isControl) {
		return nil, fmt.Errorf("%w: %s contains control characters", ErrInvalidArgument, name)
	}
	return &trimmed, nil
}

// ValidateID rejects identifiers that could never have been issued.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: auth_id cannot be empty", ErrInvalidArgument)
	}
	if len(id) > MaxTagLength {
		return fmt.Errorf("%w: auth_id exceeds %d characters", ErrInvalidArgument, MaxTagLength)
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
