// Package idgen produces auth identifier values.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/poyrazK/authbroker/internal/core/ports"
)

const (
	FormatToken = "token"
	FormatUUID  = "uuid"
)

// DefaultTokenBytes yields 256 bits of entropy.
const DefaultTokenBytes = 32

// Token generates URL-safe base64 strings from crypto/rand.
type Token struct {
	Bytes int
}

// Generate returns a new token. crypto/rand.Read never returns an error: if the
// entropy source fails it crashes the process instead.
func (g Token) Generate() string {
	n := g.Bytes
	if n <= 0 {
		n = DefaultTokenBytes
	}
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// UUID generates random (version 4) UUIDs, 122 bits of entropy.
type UUID struct{}

func (UUID) Generate() string {
	return uuid.NewString()
}

// New returns the generator for the configured format.
func New(format string) (ports.IDGenerator, error) {
	switch format {
	case "", FormatToken:
		return Token{Bytes: DefaultTokenBytes}, nil
	case FormatUUID:
		return UUID{}, nil
	default:
		return nil, fmt.Errorf("unknown id format %q", format)
	}
}
