package utils

import (
	"strings"

	"github.com/google/uuid"
)

const maxRequestIDLen = 64

// NewRequestID returns a random UUID v4 used to correlate log lines of one request.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestIDFrom reuses a caller supplied id when it is short and printable,
// otherwise it generates a fresh one.
func RequestIDFrom(header string) string {
	header = strings.TrimSpace(header)
	if header == "" || len(header) > maxRequestIDLen {
		return NewRequestID()
	}
	for _, r := range header {
		if r < 0x21 || r > 0x7e {
			return NewRequestID()
		}
	}
	return header
}
