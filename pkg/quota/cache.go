package quota

import (
	"slices"
	"sync"
	"time"
)

// entryState is the lifecycle position of a cache entry at a given instant.
type entryState int

const (
	stateMissing entryState = iota
	stateFresh
	stateStale
)

// cacheEntry holds a value or a negative result. endpoint is the base URL that last
// answered for this key; it survives failure writes so the next refresh starts there.
type cacheEntry struct {
	info       Info
	present    bool
	freshUntil time.Time
	staleUntil time.Time
	lastError  string
	endpoint   string
}

func (entry cacheEntry) stateAt(now time.Time) entryState {
	switch {
	case !now.Before(entry.staleUntil):
		return stateMissing
	case now.Before(entry.freshUntil):
		return stateFresh
	default:
		return stateStale
	}
}

type cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
}

func newCache(maxEntries int) *cache {
	return &cache{entries: make(map[string]cacheEntry), maxEntries: maxEntries}
}

// get returns the entry and its state, dropping it once past its stale deadline.
func (store *cache) get(fingerprint string, now time.Time) (cacheEntry, entryState) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.entries[fingerprint]
	if !ok {
		return cacheEntry{}, stateMissing
	}
	state := entry.stateAt(now)
	if state == stateMissing {
		delete(store.entries, fingerprint)
		return cacheEntry{}, stateMissing
	}
	return entry, state
}

func (store *cache) storeSuccess(fingerprint string, info Info, endpoint string, now time.Time, freshTTL time.Duration, staleTTL time.Duration) {
	freshUntil := now.Add(freshTTL)
	store.put(fingerprint, cacheEntry{
		info:       info,
		present:    true,
		freshUntil: freshUntil,
		staleUntil: freshUntil.Add(staleTTL),
		endpoint:   endpoint,
	})
}

func (store *cache) storeFailure(fingerprint string, now time.Time, ttl time.Duration, cause error) {
	entry := cacheEntry{
		freshUntil: now.Add(ttl),
		staleUntil: now.Add(ttl),
	}
	if cause != nil {
		entry.lastError = cause.Error()
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if previous, ok := store.entries[fingerprint]; ok {
		entry.endpoint = previous.endpoint
	}
	store.putLocked(fingerprint, entry)
}

// noteError records the latest failure on a retained entry without touching its deadlines.
func (store *cache) noteError(fingerprint string, cause error) {
	if cause == nil {
		return
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.entries[fingerprint]
	if !ok {
		return
	}
	entry.lastError = cause.Error()
	store.entries[fingerprint] = entry
}

func (store *cache) put(fingerprint string, entry cacheEntry) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.putLocked(fingerprint, entry)
}

func (store *cache) putLocked(fingerprint string, entry cacheEntry) {
	if _, exists := store.entries[fingerprint]; !exists && len(store.entries) >= store.maxEntries {
		store.evictOldestLocked()
	}
	store.entries[fingerprint] = entry
}

// evictOldestLocked drops the tenth of entries with the earliest stale deadline, at least one.
func (store *cache) evictOldestLocked() {
	if len(store.entries) == 0 {
		return
	}
	fingerprints := make([]string, 0, len(store.entries))
	for fingerprint := range store.entries {
		fingerprints = append(fingerprints, fingerprint)
	}
	slices.SortFunc(fingerprints, func(left string, right string) int {
		return store.entries[left].staleUntil.Compare(store.entries[right].staleUntil)
	})
	for _, fingerprint := range fingerprints[:max(1, len(fingerprints)/10)] {
		delete(store.entries, fingerprint)
	}
}

func (store *cache) preferredEndpoint(fingerprint string) string {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.entries[fingerprint].endpoint
}

func (store *cache) size() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}
