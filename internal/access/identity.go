package access

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashEmail returns the one-way identifier stored for a member email.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
