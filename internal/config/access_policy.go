package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/abrahamoflondon/innercircle/internal/access"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AccessPolicy lists staff and per-member tier overrides. Entries are emails or
// "sha256:<hex>" email hashes.
type AccessPolicy struct {
	StaffEmails []string       `mapstructure:"staffEmails"`
	Overrides   []TierOverride `mapstructure:"overrides"`
}

type TierOverride struct {
	Email string `mapstructure:"email"`
	Tier  string `mapstructure:"tier"`
}

type compiledPolicy struct {
	staff     map[string]struct{}
	overrides map[string]access.Tier
}

type AccessPolicyHolder struct {
	current atomic.Value // holds compiledPolicy
}

// NewAccessPolicyHolder loads access.yml and keeps it fresh on change. A missing
// file yields an empty policy.
func NewAccessPolicyHolder(cfg Config) (*AccessPolicyHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.InnerCircle.PolicyPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("access")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/innercircle")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INNER_CIRCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &AccessPolicyHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		holder.current.Store(compiledPolicy{})
		return holder, nil
	}

	var policy AccessPolicy
	if err := v.UnmarshalKey("access", &policy); err != nil {
		return nil, err
	}
	compiled, err := compileAccessPolicy(policy)
	if err != nil {
		return nil, err
	}
	holder.current.Store(compiled)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.access_policy")
		var updated AccessPolicy
		if err := v.UnmarshalKey("access", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		next, err := compileAccessPolicy(updated)
		if err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(next)
		log.Info("access policy reloaded", zap.String("path", e.Name))
	})

	return holder, nil
}

// NewStaticAccessPolicyHolder builds a holder that never reloads.
func NewStaticAccessPolicyHolder(policy AccessPolicy) (*AccessPolicyHolder, error) {
	compiled, err := compileAccessPolicy(policy)
	if err != nil {
		return nil, err
	}
	holder := &AccessPolicyHolder{}
	holder.current.Store(compiled)
	return holder, nil
}

// IsStaff reports whether the email hash is on the staff allow-list.
func (h *AccessPolicyHolder) IsStaff(emailHash string) bool {
	if h == nil || emailHash == "" {
		return false
	}
	_, ok := h.load().staff[emailHash]
	return ok
}

// OverrideFor returns the admin override tier for the email hash, if any.
func (h *AccessPolicyHolder) OverrideFor(emailHash string) (access.Tier, bool) {
	if h == nil || emailHash == "" {
		return "", false
	}
	tier, ok := h.load().overrides[emailHash]
	return tier, ok
}

func (h *AccessPolicyHolder) load() compiledPolicy {
	policy, _ := h.current.Load().(compiledPolicy)
	return policy
}

func compileAccessPolicy(policy AccessPolicy) (compiledPolicy, error) {
	compiled := compiledPolicy{
		staff:     make(map[string]struct{}, len(policy.StaffEmails)),
		overrides: make(map[string]access.Tier, len(policy.Overrides)),
	}
	for _, entry := range policy.StaffEmails {
		key, err := policyKey(entry)
		if err != nil {
			return compiledPolicy{}, err
		}
		compiled.staff[key] = struct{}{}
	}
	for _, override := range policy.Overrides {
		key, err := policyKey(override.Email)
		if err != nil {
			return compiledPolicy{}, err
		}
		tier, err := access.ParseTier(override.Tier)
		if err != nil {
			return compiledPolicy{}, fmt.Errorf("access.overrides %q: %w", override.Email, err)
		}
		compiled.overrides[key] = tier
	}
	return compiled, nil
}

func policyKey(entry string) (string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", errors.New("access policy entry cannot be empty")
	}
	if hashed, ok := strings.CutPrefix(entry, "sha256:"); ok {
		hashed = strings.ToLower(strings.TrimSpace(hashed))
		if len(hashed) != 64 {
			return "", fmt.Errorf("access policy hash %q must be 64 hex characters", entry)
		}
		return hashed, nil
	}
	if !strings.Contains(entry, "@") {
		return "", fmt.Errorf("access policy entry %q is not an email", entry)
	}
	return access.HashEmail(entry), nil
}
