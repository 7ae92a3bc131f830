// Package storage persists submission attachments and hands out URLs the
// grader and reviewers can fetch them from.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a token does not name a stored object.
var ErrNotFound = errors.New("storage: object not found")

// Store saves attachment bytes under an opaque unique token.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (token string, err error)
	URL(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Allowed reports whether name carries one of the allowed extensions.
func Allowed(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// SanitizeFilename reduces name to a safe base name made of letters, digits,
// dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}

// NewToken builds a unique storage token that keeps the sanitized name
// readable at the end.
func NewToken(filename string) string {
	return uuid.NewString() + "_" + SanitizeFilename(filename)
}

// validToken rejects tokens that could escape a storage root.
func validToken(token string) bool {
	return token != "" && token == SanitizeFilename(token)
}
