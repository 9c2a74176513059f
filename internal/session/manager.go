package session

import (
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultCookieName = "icl_session"
	defaultTTL        = 30 * 24 * time.Hour
	minSecretLength   = 32
)

var ErrSecretRequired = errors.New("session secret is required in production")

// Manager issues and reads the session cookie that stands in for a verified
// key between requests.
type Manager struct {
	cookieName string
	secure     bool
	secret     []byte
	ttl        time.Duration
}

func NewManager(cfg config.Config, log *zap.Logger) (*Manager, error) {
	settings := cfg.InnerCircle
	secret := []byte(strings.TrimSpace(settings.SessionSecret))
	if len(secret) < minSecretLength {
		if cfg.IsProduction() {
			return nil, ErrSecretRequired
		}
		// sessions will not survive a restart
		secret = make([]byte, minSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		if log != nil {
			log.Warn("session secret not configured, using an ephemeral secret")
		}
	}

	ttl := settings.SessionTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Manager{
		cookieName: DefaultCookieName,
		secure:     settings.CookieSecure,
		secret:     secret,
		ttl:        ttl,
	}, nil
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
