package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random hex secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateDevSecrets returns a JWT secret and a webhook signing secret for
// local environments
func GenerateDevSecrets() (jwtSecret, webhookSecret string, err error) {
	jwtSecret, err = GenerateSecret(32)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	raw, err := GenerateSecret(24)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return jwtSecret, "whsec_" + raw, nil
}
