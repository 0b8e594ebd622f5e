package calculator

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// SessionIDLength is the number of characters in a share token.
	SessionIDLength = 6
	sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewSessionID returns a random base-36 token of SessionIDLength characters.
func NewSessionID() (string, error) {
	return newToken(SessionIDLength)
}

func newToken(n int) (string, error) {
	max := big.NewInt(int64(len(sessionAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate session id: %w", err)
		}
		buf[i] = sessionAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
