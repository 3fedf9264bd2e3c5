package status

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TokenAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const TokenAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	DefaultTokenPrefix = "BRUN-"
	DefaultTokenLength = 6
)

// GenerateToken returns prefix followed by length random characters from TokenAlphabet.
func GenerateToken(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(TokenAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = TokenAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
