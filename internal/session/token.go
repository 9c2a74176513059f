package session

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const issuer = "innercircle"

var ErrInvalidSession = errors.New("invalid_session")

// Claims carry only identifiers. Tier and status are re-read from the store on
// every request so revocation and suspension apply immediately.
type Claims struct {
	KeyID string `json:"kid"`
	jwt.RegisteredClaims
}

// Session is a parsed, signature-checked cookie.
type Session struct {
	ID        string
	KeyID     snowflake.ID
	MemberID  snowflake.ID
	ExpiresAt time.Time
}

// Issue signs a session for a verified key. expiresAt never outlives the key.
func (m *Manager) Issue(keyID, memberID snowflake.ID, now time.Time, keyExpiresAt *time.Time) (string, time.Time, error) {
	if keyID == 0 || memberID == 0 {
		return "", time.Time{}, ErrInvalidSession
	}

	expiresAt := now.Add(m.ttl)
	if keyExpiresAt != nil && keyExpiresAt.Before(expiresAt) {
		expiresAt = *keyExpiresAt
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := &Claims{
		KeyID: keyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Issuer:    issuer,
			Subject:   memberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse checks the signature, algorithm and expiry of a session token.
func (m *Manager) Parse(raw string) (Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, ErrInvalidSession
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidSession
	}
	if !claims.VerifyIssuer(issuer, true) {
		return Session{}, ErrInvalidSession
	}

	keyID, err := snowflake.ParseString(claims.KeyID)
	if err != nil || keyID == 0 {
		return Session{}, ErrInvalidSession
	}
	memberID, err := snowflake.ParseString(claims.Subject)
	if err != nil || memberID == 0 {
		return Session{}, ErrInvalidSession
	}

	session := Session{ID: claims.ID, KeyID: keyID, MemberID: memberID}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
