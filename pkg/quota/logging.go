package quota

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// OutcomeLogger receives one entry per upstream attempt and one per completed refresh.
type OutcomeLogger interface {
	LogOutcome(ctx context.Context, entry OutcomeLog)
}

// OutcomeLog never carries the raw key, only its masked suffix.
type OutcomeLog struct {
	MaskedKey string
	Endpoint  string
	Strategy  string
	Outcome   Outcome
	Result    string
	Error     error
}

// Option configures a Service.
type Option func(*Service)

// WithOutcomeLogger wires a logger that receives attempt and refresh outcomes.
func WithOutcomeLogger(logger OutcomeLogger) Option {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithHTTPClient replaces the default traced client. The caller owns its timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(service *Service) {
		if client != nil {
			service.client = client
		}
	}
}

// WithTracerProvider sets the provider used by the default traced client.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(service *Service) {
		service.tracerProvider = provider
	}
}

// WithClock overrides the time source used for cache deadlines and usage windows.
func WithClock(now func() time.Time) Option {
	return func(service *Service) {
		if now != nil {
			service.now = now
		}
	}
}

// WithStrategy registers a strategy under its name, replacing a built-in one.
// It is only used when the name appears in Config.QueryOrder.
func WithStrategy(strategy Strategy) Option {
	return func(service *Service) {
		if strategy != nil {
			service.registry[strategy.Name()] = strategy
		}
	}
}

// WithMetricsRegisterer exports lookup and attempt counters.
func WithMetricsRegisterer(registerer prometheus.Registerer) Option {
	return func(service *Service) {
		service.registerer = registerer
	}
}

func (service *Service) logOutcome(ctx context.Context, entry OutcomeLog) {
	if service.logger == nil {
		return
	}
	service.logger.LogOutcome(ctx, entry)
}
