// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MinDisplayNameLen = 2
	MaxDisplayNameLen = 10
)

var (
	ErrDisplayNameTooLong  = errors.New("display name too long")
	ErrDisplayNameTooShort = errors.New("display name too short")
)

type UserID string

// Identity is what the admission gate attaches to a connection.
// Immutable for the connection's lifetime.
type Identity struct {
	UserID      UserID `json:"id"`
	DisplayName string `json:"name"`
}

// NormalizeDisplayName trims s and checks it against the rename bounds.
func NormalizeDisplayName(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < MinDisplayNameLen {
		return "", ErrDisplayNameTooShort
	}
	if n > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return s, nil
}
