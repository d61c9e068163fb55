package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// TokenBytes is the amount of entropy behind every opaque token.
const TokenBytes = 32

// TokenGenerator produces opaque random token values.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomHex draws TokenBytes from Source and hex-encodes them, so every value
// is 2*TokenBytes characters long.
type RandomHex struct {
	Source io.Reader
}

func NewRandomHex() *RandomHex {
	return &RandomHex{Source: rand.Reader}
}

func (g *RandomHex) Generate() (string, error) {
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(src, b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}
