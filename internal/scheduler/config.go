package scheduler

import (
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/config"
)

const (
	JobAuditRetention = "audit_retention"
	JobKeyCleanup     = "key_cleanup"
)

// Config controls job schedules and the retention window.
type Config struct {
	Enabled            bool
	Schedule           string
	AuditRetentionDays int
	KeyPurgeDays       int
	JobTimeout         time.Duration
	LockTTL            time.Duration
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Schedule:           "@daily",
		AuditRetentionDays: 365,
		KeyPurgeDays:       30,
		JobTimeout:         5 * time.Minute,
		LockTTL:            10 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:            cfg.Retention.Enabled,
		Schedule:           cfg.Retention.Schedule,
		AuditRetentionDays: cfg.Retention.AuditRetentionDays,
		KeyPurgeDays:       cfg.Retention.KeyPurgeDays,
		EnabledJobs:        cfg.Retention.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaults.Schedule
	}
	if c.AuditRetentionDays <= 0 {
		c.AuditRetentionDays = defaults.AuditRetentionDays
	}
	if c.KeyPurgeDays <= 0 {
		c.KeyPurgeDays = defaults.KeyPurgeDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	// The lock must outlive the job so a slow run is never doubled.
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout * 2
	}
	return c
}
