package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const apiTokenBytes = 32

// GenerateAPIToken returns 32 random bytes, hex encoded.
func GenerateAPIToken() (string, error) {
	b := make([]byte, apiTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating api token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
