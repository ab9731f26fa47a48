package session

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a random zero-padded 6 digit join code.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ValidCode reports whether code has the shape of a join code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}

	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
