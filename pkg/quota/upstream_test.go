package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const (
	testKey         = "sk-test-abcd1234"
	otherTestKey    = "sk-test-wxyz9876"
	testQuotaPerUSD = 500000
)

var fixedStart = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type fakeUpstream struct {
	server   *httptest.Server
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
}

func newFakeUpstream(test *testing.T) *fakeUpstream {
	test.Helper()
	upstream := &fakeUpstream{hits: make(map[string]int), handlers: make(map[string]http.HandlerFunc)}
	upstream.server = httptest.NewServer(http.HandlerFunc(upstream.serve))
	test.Cleanup(upstream.server.Close)
	return upstream
}

func (upstream *fakeUpstream) serve(writer http.ResponseWriter, request *http.Request) {
	upstream.mu.Lock()
	upstream.hits[request.URL.Path]++
	handler := upstream.handlers[request.URL.Path]
	upstream.mu.Unlock()
	if handler == nil {
		http.NotFound(writer, request)
		return
	}
	handler(writer, request)
}

func (upstream *fakeUpstream) handle(path string, handler http.HandlerFunc) {
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	upstream.handlers[path] = handler
}

func (upstream *fakeUpstream) hitCount(path string) int {
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	return upstream.hits[path]
}

func (upstream *fakeUpstream) totalHits() int {
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	total := 0
	for _, count := range upstream.hits {
		total += count
	}
	return total
}

func (upstream *fakeUpstream) url() string {
	return upstream.server.URL
}

func respond(status int, body string) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_, _ = writer.Write([]byte(body))
	}
}

// userSelfOK answers the self-profile endpoint with 1.5 dollars left and 0.5 used.
func userSelfOK() http.HandlerFunc {
	return respond(http.StatusOK, `{"success":true,"data":{"quota":750000,"used_quota":250000,"username":"alice","group":"vip"}}`)
}

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func newManualClock() *manualClock {
	return &manualClock{current: fixedStart}
}

func (clock *manualClock) now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

func (clock *manualClock) advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current = clock.current.Add(duration)
}

func testConfig(baseURLs ...string) Config {
	return Config{
		BaseURLs:     baseURLs,
		FreshTTL:     time.Minute,
		StaleTTL:     5 * time.Minute,
		ErrorTTL:     30 * time.Second,
		AuthErrorTTL: 5 * time.Minute,
		QuotaPerUSD:  testQuotaPerUSD,
	}
}

func mustNewService(test *testing.T, config Config, clock *manualClock, options ...Option) *Service {
	test.Helper()
	options = append([]Option{WithClock(clock.now)}, options...)
	service, err := NewService(config, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OutcomeLog
}

func (logger *recorderLogger) LogOutcome(_ context.Context, entry OutcomeLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) results() []string {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	var results []string
	for _, entry := range logger.entries {
		if entry.Result != "" {
			results = append(results, entry.Result)
		}
	}
	return results
}
