package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const resetTokenBytes = 32 // 256 бит

// GenerateResetToken: криптостойкий непрозрачный токен (base64url, 43 символа).
// Ошибку источника энтропии не глушим: подменить его нечем.
func GenerateResetToken() (string, error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashResetToken: в базе храним только хеш.
func HashResetToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
