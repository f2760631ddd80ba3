package quota

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	StrategyOpenAI = "openai"
	StrategyNewAPI = "newapi"

	defaultBaseURL           = "https://api.ikuncode.cc"
	defaultTimeout           = 10 * time.Second
	defaultMaxConcurrency    = 8
	defaultFreshTTL          = 60 * time.Second
	defaultStaleTTL          = 300 * time.Second
	defaultErrorTTL          = 30 * time.Second
	defaultAuthErrorTTL      = 300 * time.Second
	defaultUsageLookbackDays = 30
	defaultQuotaPerUSD       = 500000
	defaultMaxEntries        = 1000
)

// Config controls endpoints, strategy order, timeouts and cache lifetimes.
// StaleTTL is the window that follows FreshTTL, not an absolute age.
type Config struct {
	BaseURLs          []string
	QueryOrder        []string
	Timeout           time.Duration
	MaxConcurrency    int
	FreshTTL          time.Duration
	StaleTTL          time.Duration
	ErrorTTL          time.Duration
	AuthErrorTTL      time.Duration
	UsageLookbackDays int
	QuotaPerUSD       float64
	MaxEntries        int
}

// Validate fills defaults and normalizes endpoint URLs.
func (cfg *Config) Validate() error {
	baseURLs := make([]string, 0, len(cfg.BaseURLs))
	for _, raw := range cfg.BaseURLs {
		trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
		if trimmed == "" {
			continue
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: base url %q", ErrInvalidConfig, raw)
		}
		baseURLs = append(baseURLs, trimmed)
	}
	if len(baseURLs) == 0 {
		baseURLs = []string{defaultBaseURL}
	}
	cfg.BaseURLs = baseURLs

	order := make([]string, 0, len(cfg.QueryOrder))
	for _, raw := range cfg.QueryOrder {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name != "" {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		order = []string{StrategyOpenAI, StrategyNewAPI}
	}
	cfg.QueryOrder = order

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	cfg.FreshTTL = atLeastOneSecond(cfg.FreshTTL, defaultFreshTTL)
	cfg.StaleTTL = atLeastOneSecond(cfg.StaleTTL, defaultStaleTTL)
	cfg.ErrorTTL = atLeastOneSecond(cfg.ErrorTTL, defaultErrorTTL)
	cfg.AuthErrorTTL = atLeastOneSecond(cfg.AuthErrorTTL, defaultAuthErrorTTL)
	if cfg.UsageLookbackDays <= 0 {
		cfg.UsageLookbackDays = defaultUsageLookbackDays
	}
	if cfg.QuotaPerUSD <= 0 {
		cfg.QuotaPerUSD = defaultQuotaPerUSD
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	return nil
}

func atLeastOneSecond(value time.Duration, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	if value < time.Second {
		return time.Second
	}
	return value
}
