package quota

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	pathSubscription = "/v1/dashboard/billing/subscription"
	pathUsage        = "/v1/dashboard/billing/usage"
	pathUserSelf     = "/api/user/self"
	pathTokenLog     = "/api/log/token"
	usageDateLayout  = "2006-01-02"
	centsPerDollar   = 100.0
)

// Strategy queries one endpoint for a key's quota. Errors must wrap ErrNotSupported,
// ErrAuthFailed or ErrTransient; anything else is treated as transient.
type Strategy interface {
	Name() string
	Query(ctx context.Context, client *http.Client, baseURL string, key string) (Info, error)
}

// openAIStrategy reads the billing subscription and usage pair.
type openAIStrategy struct {
	lookbackDays int
	now          func() time.Time
}

type subscriptionPayload struct {
	HardLimitUSD       looseNumber `json:"hard_limit_usd"`
	SystemHardLimitUSD looseNumber `json:"system_hard_limit_usd"`
	SoftLimitUSD       looseNumber `json:"soft_limit_usd"`
}

type usagePayload struct {
	TotalUsage looseNumber `json:"total_usage"`
}

func (strategy openAIStrategy) Name() string {
	return StrategyOpenAI
}

func (strategy openAIStrategy) Query(ctx context.Context, client *http.Client, baseURL string, key string) (Info, error) {
	var subscription subscriptionPayload
	if err := getJSON(ctx, client, "subscription", baseURL+pathSubscription, key, nil, &subscription); err != nil {
		return Info{}, err
	}
	total := firstSet(subscription.HardLimitUSD, subscription.SystemHardLimitUSD, subscription.SoftLimitUSD)

	today := strategy.now().UTC()
	query := url.Values{}
	query.Set("start_date", today.AddDate(0, 0, -max(1, strategy.lookbackDays)).Format(usageDateLayout))
	query.Set("end_date", today.Format(usageDateLayout))
	var usage usagePayload
	if err := getJSON(ctx, client, "usage", baseURL+pathUsage, key, query, &usage); err != nil {
		return Info{}, err
	}
	used := usage.TotalUsage.value / centsPerDollar

	if total <= 0 {
		return newInfo(0, used, used), nil
	}
	return newInfo(max(total-used, 0), used, total), nil
}

// newAPIStrategy reads the self-profile payload, whose amounts are in quota units.
type newAPIStrategy struct {
	quotaPerUSD float64
}

type userSelfPayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type userSelfData struct {
	Quota     float64 `json:"quota"`
	UsedQuota float64 `json:"used_quota"`
	Username  string  `json:"username"`
	Group     string  `json:"group"`
}

func (strategy newAPIStrategy) Name() string {
	return StrategyNewAPI
}

func (strategy newAPIStrategy) Query(ctx context.Context, client *http.Client, baseURL string, key string) (Info, error) {
	var payload userSelfPayload
	if err := getJSON(ctx, client, "user self", baseURL+pathUserSelf, key, nil, &payload); err != nil {
		return Info{}, err
	}
	// a null data member reads as an empty profile; a missing one is malformed
	if !payload.Success || len(payload.Data) == 0 {
		return Info{}, transientError("user self", errUnexpectedPayload)
	}
	var data userSelfData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return Info{}, transientError("user self", err)
	}
	remaining := data.Quota / strategy.quotaPerUSD
	used := data.UsedQuota / strategy.quotaPerUSD
	info := newInfo(remaining, used, remaining+used)
	info.Username = data.Username
	info.Group = data.Group
	return info, nil
}

type tokenLogPayload struct {
	Success bool            `json:"success"`
	Data    []tokenLogEntry `json:"data"`
}

type tokenLogEntry struct {
	Quota     float64 `json:"quota"`
	CreatedAt int64   `json:"created_at"`
}

// todayUsage sums the token log since UTC midnight. Any failure reads as zero.
func todayUsage(ctx context.Context, client *http.Client, baseURL string, key string, quotaPerUSD float64, now time.Time) float64 {
	query := url.Values{}
	query.Set("key", key)
	var payload tokenLogPayload
	if err := getJSON(ctx, client, "token log", baseURL+pathTokenLog, "", query, &payload); err != nil {
		return 0
	}
	if !payload.Success {
		return 0
	}
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Unix()
	var spent float64
	for _, entry := range payload.Data {
		if entry.CreatedAt >= midnight {
			spent += entry.Quota
		}
	}
	return spent / quotaPerUSD
}

func getJSON(ctx context.Context, client *http.Client, step string, rawURL string, key string, query url.Values, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return transientError(step, err)
	}
	if len(query) > 0 {
		request.URL.RawQuery = query.Encode()
	}
	request.Header.Set("Accept", "application/json")
	if key != "" {
		request.Header.Set("Authorization", "Bearer "+key)
	}
	response, err := client.Do(request)
	if err != nil {
		return transientError(step, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return statusError(step, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return transientError(step, err)
	}
	return nil
}

// looseNumber reads billing amounts from upstreams that do not agree on a type. Numeric
// strings parse; any other non-number reads as zero. set reports whether the raw value was
// non-empty, which decides precedence between alternative limit fields.
type looseNumber struct {
	value float64
	set   bool
}

func (number *looseNumber) UnmarshalJSON(raw []byte) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*number = looseNumber{}
	switch typed := decoded.(type) {
	case float64:
		number.value, number.set = typed, typed != 0
	case string:
		number.set = typed != ""
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			number.value = parsed
		}
	case bool:
		if typed {
			number.value, number.set = 1, true
		}
	case []any:
		number.set = len(typed) > 0
	case map[string]any:
		number.set = len(typed) > 0
	}
	return nil
}

// firstSet returns the value of the first non-empty field, even when it did not parse.
func firstSet(values ...looseNumber) float64 {
	for _, value := range values {
		if value.set {
			return value.value
		}
	}
	return 0
}
