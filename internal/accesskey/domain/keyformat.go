package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	KeyPrefix    = "icl"
	keyBodyBytes = 32
	keySuffixLen = 8
	maxKeyLength = 256
)

var (
	prefixedKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{1,15}_[A-Za-z0-9_-]{28,}$`)
	legacyKeyPattern   = regexp.MustCompile(`^[0-9a-fA-F]{4,}(-[0-9a-fA-F]{4,}){3}$`)
	fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// GenerateKey returns a new raw key: the icl prefix and 256 random bits in
// unpadded base64url.
func GenerateKey() (string, error) {
	body := make([]byte, keyBodyBytes)
	if _, err := rand.Read(body); err != nil {
		return "", err
	}
	return KeyPrefix + "_" + base64.RawURLEncoding.EncodeToString(body), nil
}

// NormalizeKey trims the presented key. Legacy hex keys compare
// case-insensitively, so they are lowercased.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if legacyKeyPattern.MatchString(raw) {
		return strings.ToLower(raw)
	}
	return raw
}

// ValidFormat reports whether raw is either a prefixed key or a legacy
// four-group hyphenated hex key.
func ValidFormat(raw string) bool {
	if raw == "" || len(raw) > maxKeyLength {
		return false
	}
	return prefixedKeyPattern.MatchString(raw) || legacyKeyPattern.MatchString(raw)
}

// Fingerprint is the sha256 hex of the normalized key, used as a unique lookup
// handle and as the anonymized audit subject.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(raw)))
	return hex.EncodeToString(sum[:])
}

// Suffix returns the last eight characters for display.
func Suffix(raw string) string {
	raw = NormalizeKey(raw)
	if len(raw) <= keySuffixLen {
		return raw
	}
	return raw[len(raw)-keySuffixLen:]
}

// IsFingerprint reports whether s looks like a stored fingerprint.
func IsFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}
