package quota

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Service resolves external keys to quota snapshots through a bounded cache in front of
// an ordered endpoint and strategy fallback chain. It is safe for concurrent use.
type Service struct {
	config     Config
	client     *http.Client
	strategies []Strategy
	registry   map[string]Strategy
	cache      *cache
	flights    singleflight.Group
	now        func() time.Time
	logger     OutcomeLogger
	registerer prometheus.Registerer
	metrics    *metrics

	tracerProvider trace.TracerProvider
}

type lookupValue struct {
	info    Info
	present bool
}

// NewService validates the configuration and resolves the strategy order.
func NewService(config Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	service := &Service{
		config:   config,
		registry: make(map[string]Strategy),
		cache:    newCache(config.MaxEntries),
		now:      time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.client == nil {
		service.client = &http.Client{
			Timeout:   config.Timeout,
			Transport: newTracedTransport(service.tracerProvider),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	builtins := []Strategy{
		openAIStrategy{lookbackDays: config.UsageLookbackDays, now: service.now},
		newAPIStrategy{quotaPerUSD: config.QuotaPerUSD},
	}
	for _, strategy := range builtins {
		if _, overridden := service.registry[strategy.Name()]; !overridden {
			service.registry[strategy.Name()] = strategy
		}
	}
	for _, name := range config.QueryOrder {
		strategy, ok := service.registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, name)
		}
		service.strategies = append(service.strategies, strategy)
	}
	counters, err := newMetrics(service.registerer)
	if err != nil {
		return nil, fmt.Errorf("%w: metrics: %v", ErrInvalidConfig, err)
	}
	service.metrics = counters
	return service, nil
}

// newTracedTransport instruments upstream calls. The token log request carries the raw key
// in its query string, so it is never recorded as a span.
func newTracedTransport(provider trace.TracerProvider) http.RoundTripper {
	options := []otelhttp.Option{
		otelhttp.WithFilter(func(request *http.Request) bool {
			return request.URL.Path != pathTokenLog
		}),
	}
	if provider != nil {
		options = append(options, otelhttp.WithTracerProvider(provider))
	}
	return otelhttp.NewTransport(http.DefaultTransport, options...)
}

// MaxConcurrency reports the fan-out bound used by LookupBatch.
func (service *Service) MaxConcurrency() int {
	return service.config.MaxConcurrency
}

// Lookup returns the quota for key, or false when the key is empty, rejected or unreachable.
// Fresh entries, negative ones included, are served without a network call.
func (service *Service) Lookup(ctx context.Context, key string) (Info, bool) {
	if key == "" {
		return Info{}, false
	}
	fingerprint := Fingerprint(key)
	if entry, state := service.cache.get(fingerprint, service.now()); state == stateFresh {
		service.metrics.observeLookup(ResultCached)
		return entry.info, entry.present
	}
	// The flight is shared by every waiter, so one caller's cancellation must not end it.
	// The client timeout bounds each attempt.
	flightCtx := context.WithoutCancel(ctx)
	value, _, _ := service.flights.Do(fingerprint, func() (any, error) {
		return service.refresh(flightCtx, key, fingerprint), nil
	})
	result := value.(lookupValue)
	return result.info, result.present
}

func (service *Service) refresh(ctx context.Context, key string, fingerprint string) lookupValue {
	if entry, state := service.cache.get(fingerprint, service.now()); state == stateFresh {
		service.metrics.observeLookup(ResultCached)
		return lookupValue{info: entry.info, present: entry.present}
	}
	maskedKey := MaskKey(key)
	anyAuthFailed := false
	var lastErr error
	for _, endpoint := range service.orderedEndpoints(fingerprint) {
		for _, strategy := range service.strategies {
			info, err := strategy.Query(ctx, service.client, endpoint, key)
			outcome := Classify(err)
			service.metrics.observeAttempt(strategy.Name(), outcome)
			service.logOutcome(ctx, OutcomeLog{MaskedKey: maskedKey, Endpoint: endpoint, Strategy: strategy.Name(), Outcome: outcome, Error: err})
			if err != nil {
				if outcome == OutcomeAuthFailed {
					anyAuthFailed = true
				}
				lastErr = err
				continue
			}
			info.TodayUsed = todayUsage(ctx, service.client, endpoint, key, service.config.QuotaPerUSD, service.now())
			service.cache.storeSuccess(fingerprint, info, endpoint, service.now(), service.config.FreshTTL, service.config.StaleTTL)
			service.finish(ctx, maskedKey, ResultRefreshed, nil)
			return lookupValue{info: info, present: true}
		}
	}

	now := service.now()
	if !anyAuthFailed {
		if entry, state := service.cache.get(fingerprint, now); state == stateStale && entry.present {
			service.cache.noteError(fingerprint, lastErr)
			service.finish(ctx, maskedKey, ResultStale, lastErr)
			return lookupValue{info: entry.info, present: true}
		}
	}
	ttl := service.config.ErrorTTL
	if anyAuthFailed {
		ttl = service.config.AuthErrorTTL
	}
	service.cache.storeFailure(fingerprint, now, ttl, lastErr)
	service.finish(ctx, maskedKey, ResultAbsent, lastErr)
	return lookupValue{}
}

func (service *Service) finish(ctx context.Context, maskedKey string, result string, err error) {
	service.metrics.observeLookup(result)
	service.logOutcome(ctx, OutcomeLog{MaskedKey: maskedKey, Result: result, Error: err})
}

// orderedEndpoints puts the endpoint that last answered for this key first.
func (service *Service) orderedEndpoints(fingerprint string) []string {
	preferred := service.cache.preferredEndpoint(fingerprint)
	ordered := make([]string, 0, len(service.config.BaseURLs))
	for _, endpoint := range service.config.BaseURLs {
		if endpoint == preferred {
			ordered = append(ordered, endpoint)
		}
	}
	for _, endpoint := range service.config.BaseURLs {
		if endpoint != preferred {
			ordered = append(ordered, endpoint)
		}
	}
	return ordered
}
