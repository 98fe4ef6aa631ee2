// Package token implements the token mint (C4): generation of
// cryptographically random, collision-free 32-character tokens.
package token

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/rudipoppes/GenHook/internal/domain"
)

const (
	tokenLength  = 32
	alphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxAttempts  = 8
)

// TokenSet reports which tokens are currently bound, so Mint can check a
// freshly generated candidate for collisions. Keys are expected lower-cased
// (as configstore.Store.Tokens returns them), matching the case-insensitive
// comparison the inbound webhook route uses (spec.md §4.7).
type TokenSet interface {
	Tokens() (map[string]struct{}, error)
}

// Mint generates a fresh, 32-character [A-Za-z0-9] token and checks it
// against store's current token set. It makes up to 8 attempts in total,
// drawing a new candidate after each collision, before failing
// domain.ErrExhausted. Tokens are opaque: no
// information is encoded in them.
func Mint(store TokenSet) (string, error) {
	existing, err := store.Tokens()
	if err != nil {
		return "", fmt.Errorf("reading current tokens: %w", err)
	}
	return mintFrom(existing, generate)
}

// mintFrom holds the retry loop, with the candidate generator injected so
// the exhaustion path is deterministically testable. existing is checked
// case-insensitively: a candidate collides if its lower-cased form is
// already bound, matching Resolve's case-insensitive comparison.
func mintFrom(existing map[string]struct{}, gen func() (string, error)) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := gen()
		if err != nil {
			return "", fmt.Errorf("generating candidate token: %w", err)
		}
		if _, collides := existing[strings.ToLower(candidate)]; !collides {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no unique token after %d attempts", domain.ErrExhausted, maxAttempts)
}

// generate draws tokenLength characters from alphabet using rejection
// sampling, so every character is uniformly distributed rather than biased
// by a naive modulo.
func generate() (string, error) {
	const maxByte = 256 - (256 % len(alphabet))

	out := make([]byte, tokenLength)
	buf := make([]byte, tokenLength)
	filled := 0

	for filled < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out[filled] = alphabet[int(b)%len(alphabet)]
			filled++
			if filled == tokenLength {
				break
			}
		}
	}
	return string(out), nil
}
