package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	// NodeID must be unique per replica; snowflake ids embed it.
	NodeID      int64

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	InnerCircle InnerCircleConfig
	Retention   RetentionConfig
}

// ObservabilityConfig carries the LOG_* and OTEL_* settings.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// InnerCircleConfig controls key issuance, verification and sessions.
type InnerCircleConfig struct {
	KeyTTL                     time.Duration
	MaxKeysPerMember           int
	MaxUnlocksPerDay           int
	MaxVerifyAttemptsPerMinute int
	StoreTimeout               time.Duration

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	// AdminTokens entries are "operator:role:token".
	AdminTokens []string

	PolicyPath string
}

type RetentionConfig struct {
	Enabled            bool
	Schedule           string
	AuditRetentionDays int
	KeyPurgeDays       int
	// Jobs limits which jobs run; empty runs all of them.
	Jobs               []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development"))
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("INNER_CIRCLE_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "innercircle"),
		AppVersion:        getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		Observability:     loadObservability(),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "innercircle"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "innercircle.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		InnerCircle: InnerCircleConfig{
			KeyTTL:                     time.Duration(getenvInt("INNER_CIRCLE_KEY_TTL_DAYS", 90)) * 24 * time.Hour,
			MaxKeysPerMember:           getenvInt("INNER_CIRCLE_MAX_KEYS_PER_MEMBER", 3),
			MaxUnlocksPerDay:           getenvInt("INNER_CIRCLE_MAX_UNLOCKS_PER_DAY", 100),
			MaxVerifyAttemptsPerMinute: getenvInt("INNER_CIRCLE_MAX_VERIFY_ATTEMPTS_PER_MINUTE", 20),
			StoreTimeout:               time.Duration(getenvInt("INNER_CIRCLE_STORE_TIMEOUT_MS", 2000)) * time.Millisecond,
			SessionSecret:              strings.TrimSpace(getenv("INNER_CIRCLE_SESSION_SECRET", "")),
			SessionTTL:                 time.Duration(getenvInt("INNER_CIRCLE_SESSION_TTL_HOURS", 24*30)) * time.Hour,
			CookieSecure:               cookieSecure,
			AdminTokens:                splitList(getenv("INNER_CIRCLE_ADMIN_TOKENS", "")),
			PolicyPath:                 strings.TrimSpace(getenv("INNER_CIRCLE_POLICY_PATH", "")),
		},
		Retention: RetentionConfig{
			Enabled:            getenvBool("RETENTION_ENABLED", true),
			Schedule:           strings.TrimSpace(getenv("RETENTION_SCHEDULE", "@daily")),
			AuditRetentionDays: getenvInt("AUDIT_RETENTION_DAYS", 365),
			KeyPurgeDays:       getenvInt("KEY_PURGE_DAYS", 30),
			Jobs:               splitList(getenv("SCHEDULER_JOBS", "")),
		},
	}

	return cfg
}

func loadObservability() ObservabilityConfig {
	endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "")))
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	protocol = getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)

	return ObservabilityConfig{
		LogLevel:  strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat: strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		// exporting is opt-in: without a collector endpoint the providers stay local
		OtelEnabled:   getenvBool("OTEL_ENABLED", endpoint != ""),
		OTLPEndpoint:  endpoint,
		OTLPProtocol:  strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
