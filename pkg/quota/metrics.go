package quota

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup results, used as the metric label and on the final log entry of a refresh.
const (
	ResultCached    = "cached"
	ResultRefreshed = "refreshed"
	ResultStale     = "stale"
	ResultAbsent    = "absent"
)

type metrics struct {
	lookups  *prometheus.CounterVec
	attempts *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	if registerer == nil {
		return nil, nil
	}
	current := &metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_quota_lookups_total",
			Help: "Quota lookups by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_quota_upstream_attempts_total",
			Help: "Upstream quota queries by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
	}
	var err error
	if current.lookups, err = register(registerer, current.lookups); err != nil {
		return nil, err
	}
	if current.attempts, err = register(registerer, current.attempts); err != nil {
		return nil, err
	}
	return current, nil
}

// register returns the already registered vector when another service got there first.
func register(registerer prometheus.Registerer, vector *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(vector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vector, nil
}

func (current *metrics) observeLookup(result string) {
	if current == nil {
		return
	}
	current.lookups.WithLabelValues(result).Inc()
}

func (current *metrics) observeAttempt(strategy string, outcome Outcome) {
	if current == nil {
		return
	}
	current.attempts.WithLabelValues(strategy, string(outcome)).Inc()
}
