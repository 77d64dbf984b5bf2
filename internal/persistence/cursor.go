// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"example.com/mileage/internal/domain"
)

var (
	// ErrInvalidCursor is returned for tokens that were not produced by EncodeCursor.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrInvalidTimestamp is returned when an activity date cannot be stored as an instant.
	ErrInvalidTimestamp = errors.New("activity timestamp cannot be normalized")
)

const cursorSeparator = "|"

// EncodeCursor serialises the cursor to a URL-safe token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.StartedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from EncodeCursor. Blank tokens yield a nil cursor.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	at, id, ok := strings.Cut(string(decoded), cursorSeparator)
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{StartedAt: ts, ID: id}, nil
}
