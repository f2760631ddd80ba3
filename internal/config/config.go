// Package config loads runtime settings from flags and REWARDS_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/rewards/pkg/quota"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "REWARDS"

	KeyDatabaseURL            = "database-url"
	KeyLogLevel               = "log-level"
	KeyLogFile                = "log-file"
	KeyGachaCost              = "gacha-cost"
	KeyQuotaBaseURLs          = "quota-base-urls"
	KeyQuotaQueryOrder        = "quota-query-order"
	KeyQuotaTimeout           = "quota-timeout"
	KeyQuotaMaxConcurrency    = "quota-max-concurrency"
	KeyQuotaTTLOK             = "quota-ttl-ok"
	KeyQuotaTTLStale          = "quota-ttl-stale"
	KeyQuotaTTLError          = "quota-ttl-error"
	KeyQuotaTTLAuthError      = "quota-ttl-auth-error"
	KeyQuotaUsageLookbackDays = "quota-usage-lookback-days"
	KeyQuotaPerUSD            = "quota-per-usd"
	KeyQuotaMaxEntries        = "quota-max-entries"

	defaultDatabaseURL       = "sqlite:///tmp/rewards.db"
	defaultLogLevel          = "info"
	defaultGachaCost   int64 = 50
)

// Config aggregates runtime settings for the rewards tooling.
type Config struct {
	DatabaseURL string
	LogLevel    string
	LogFile     string
	GachaCost   int64
	Quota       quota.Config
}

// Load reads every key from viper. Environment variables use the REWARDS_ prefix with
// dashes replaced by underscores, e.g. REWARDS_QUOTA_TTL_OK.
func Load(source *viper.Viper) (Config, error) {
	source.SetEnvPrefix(EnvPrefix)
	source.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	source.AutomaticEnv()

	cfg := Config{
		DatabaseURL: strings.TrimSpace(source.GetString(KeyDatabaseURL)),
		LogLevel:    strings.TrimSpace(source.GetString(KeyLogLevel)),
		LogFile:     strings.TrimSpace(source.GetString(KeyLogFile)),
		GachaCost:   source.GetInt64(KeyGachaCost),
		Quota: quota.Config{
			BaseURLs:          ParseList(source.GetString(KeyQuotaBaseURLs)),
			QueryOrder:        ParseList(source.GetString(KeyQuotaQueryOrder)),
			Timeout:           source.GetDuration(KeyQuotaTimeout),
			MaxConcurrency:    source.GetInt(KeyQuotaMaxConcurrency),
			FreshTTL:          source.GetDuration(KeyQuotaTTLOK),
			StaleTTL:          source.GetDuration(KeyQuotaTTLStale),
			ErrorTTL:          source.GetDuration(KeyQuotaTTLError),
			AuthErrorTTL:      source.GetDuration(KeyQuotaTTLAuthError),
			UsageLookbackDays: source.GetInt(KeyQuotaUsageLookbackDays),
			QuotaPerUSD:       source.GetFloat64(KeyQuotaPerUSD),
			MaxEntries:        source.GetInt(KeyQuotaMaxEntries),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects values that cannot be corrected.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.LogLevel = defaultIfEmpty(cfg.LogLevel, defaultLogLevel)
	if cfg.GachaCost < 0 {
		return fmt.Errorf("gacha cost must not be negative")
	}
	if cfg.GachaCost == 0 {
		cfg.GachaCost = defaultGachaCost
	}
	if err := cfg.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseList splits a comma-delimited value into trimmed, non-empty parts.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
