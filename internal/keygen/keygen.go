// Package keygen produces short random keys that are not already in use.
package keygen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/qrtrack/qr-track/config"
	"github.com/qrtrack/qr-track/internal/model"
)

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
)

// ExistsFunc reports whether a key is already taken.
type ExistsFunc func(ctx context.Context, key string) (bool, error)

// Generator draws random keys from a configured alphabet with a bounded
// number of attempts.
type Generator struct {
	charset     string
	length      int
	maxAttempts int
}

// New creates a generator from the keygen configuration.
func New(cfg config.KeyGenConfig) (*Generator, error) {
	var charset string
	if cfg.Lowercase {
		charset += lowercaseChars
	}
	if cfg.Uppercase {
		charset += uppercaseChars
	}
	if cfg.Digits {
		charset += digitChars
	}
	if charset == "" {
		return nil, fmt.Errorf("keygen: empty alphabet")
	}
	if cfg.Length <= 0 {
		return nil, fmt.Errorf("keygen: invalid key length %d", cfg.Length)
	}
	return &Generator{
		charset:     charset,
		length:      cfg.Length,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// Generate returns a key with no existing Association at check time.
// Existence-check and insert are separate steps, so the caller must still
// treat a duplicate-key rejection on insert like a failed check here.
// Returns model.ErrKeyGenExhausted when every draw collides.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		key, err := g.draw()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("keygen: existence check: %w", err)
		}
		if !taken {
			return key, nil
		}
	}
	return "", model.ErrKeyGenExhausted
}

// draw produces one random candidate key.
func (g *Generator) draw() (string, error) {
	charsetLength := big.NewInt(int64(len(g.charset)))
	key := make([]byte, g.length)
	for i := range key {
		n, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			return "", fmt.Errorf("keygen: random draw: %w", err)
		}
		key[i] = g.charset[n.Int64()]
	}
	return string(key), nil
}

// Charset exposes the active alphabet, mainly for diagnostics and tests.
func (g *Generator) Charset() string {
	return g.charset
}
