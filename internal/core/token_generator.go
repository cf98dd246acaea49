package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TokenPrefix starts every lookup token.
const TokenPrefix = "TKN-"

// Token generator modes accepted by NewTokenGenerator.
const (
	TokenModeHash   = "hash"
	TokenModeRandom = "random"
)

// TokenGenerator produces lookup tokens for a lot.
type TokenGenerator interface {
	Generate(lot, caller string, at time.Time) (string, error)
}

// HashTokenGenerator derives tokens from the lot, caller and issue time.
// Tokens are predictable to anyone who knows those inputs and must not be
// treated as secrets.
type HashTokenGenerator struct {
	// Domain separates token spaces of independent deployments.
	Domain string
}

// Generate implements TokenGenerator.
func (g HashTokenGenerator) Generate(lot, caller string, at time.Time) (string, error) {
	h := sha256.New()
	for _, part := range []string{g.Domain, lot, caller} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	sum := strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
	return TokenPrefix + sum[:16], nil
}

// RandomTokenGenerator draws 128 bits from Reader, crypto/rand by default.
type RandomTokenGenerator struct {
	Reader io.Reader
}

// Generate implements TokenGenerator.
func (g RandomTokenGenerator) Generate(string, string, time.Time) (string, error) {
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return TokenPrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NewTokenGenerator returns the generator for mode. An empty mode selects
// hashing.
func NewTokenGenerator(mode, domainTag string) (TokenGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", TokenModeHash:
		return HashTokenGenerator{Domain: domainTag}, nil
	case TokenModeRandom:
		return RandomTokenGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown token mode %q", mode)
	}
}
