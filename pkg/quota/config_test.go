package quota

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidateDefaults(test *testing.T) {
	test.Parallel()
	config := Config{}
	if err := config.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if len(config.BaseURLs) != 1 || config.BaseURLs[0] != defaultBaseURL {
		test.Fatalf("unexpected base urls %v", config.BaseURLs)
	}
	if len(config.QueryOrder) != 2 || config.QueryOrder[0] != StrategyOpenAI || config.QueryOrder[1] != StrategyNewAPI {
		test.Fatalf("unexpected query order %v", config.QueryOrder)
	}
	if config.Timeout != defaultTimeout || config.FreshTTL != defaultFreshTTL || config.StaleTTL != defaultStaleTTL ||
		config.ErrorTTL != defaultErrorTTL || config.AuthErrorTTL != defaultAuthErrorTTL {
		test.Fatalf("unexpected durations %+v", config)
	}
	if config.MaxEntries != defaultMaxEntries || config.MaxConcurrency != defaultMaxConcurrency || config.QuotaPerUSD != defaultQuotaPerUSD {
		test.Fatalf("unexpected limits %+v", config)
	}
}

func TestConfigValidateNormalizes(test *testing.T) {
	test.Parallel()
	config := Config{
		BaseURLs:   []string{" https://a.example/ ", "", "https://b.example"},
		QueryOrder: []string{" NewAPI "},
		FreshTTL:   time.Millisecond,
	}
	if err := config.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if config.BaseURLs[0] != "https://a.example" || len(config.BaseURLs) != 2 {
		test.Fatalf("unexpected base urls %v", config.BaseURLs)
	}
	if config.QueryOrder[0] != StrategyNewAPI || config.FreshTTL != time.Second {
		test.Fatalf("unexpected normalization %+v", config)
	}

	invalid := Config{BaseURLs: []string{"not a url"}}
	if err := invalid.Validate(); !errors.Is(err, ErrInvalidConfig) {
		test.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestClassifyAndMask(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		err  error
		want Outcome
	}{
		{err: nil, want: OutcomeSuccess},
		{err: statusError("usage", 404), want: OutcomeNotSupported},
		{err: statusError("usage", 405), want: OutcomeNotSupported},
		{err: statusError("usage", 401), want: OutcomeAuthFailed},
		{err: statusError("usage", 403), want: OutcomeAuthFailed},
		{err: statusError("usage", 500), want: OutcomeTransient},
		{err: errors.New("other"), want: OutcomeTransient},
	}
	for _, testCase := range testCases {
		if got := Classify(testCase.err); got != testCase.want {
			test.Fatalf("classify %v: expected %s, got %s", testCase.err, testCase.want, got)
		}
	}
	if MaskKey(testKey) != "***1234" || MaskKey("abc") != "***" {
		test.Fatalf("unexpected masks %q %q", MaskKey(testKey), MaskKey("abc"))
	}
	if Fingerprint(testKey) == Fingerprint(otherTestKey) || len(Fingerprint(testKey)) != 64 {
		test.Fatalf("unexpected fingerprint")
	}
}
