package quota

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestCacheEntryStates(test *testing.T) {
	test.Parallel()
	store := newCache(10)
	store.storeSuccess("fp", Info{Total: 1}, "https://a", fixedStart, time.Minute, 5*time.Minute)

	testCases := []struct {
		name   string
		offset time.Duration
		want   entryState
	}{
		{name: "fresh", offset: 59 * time.Second, want: stateFresh},
		{name: "stale at fresh deadline", offset: time.Minute, want: stateStale},
		{name: "stale", offset: 5 * time.Minute, want: stateStale},
	}
	for _, testCase := range testCases {
		_, state := store.get("fp", fixedStart.Add(testCase.offset))
		if state != testCase.want {
			test.Fatalf("%s: expected state %d, got %d", testCase.name, testCase.want, state)
		}
	}
	if _, state := store.get("fp", fixedStart.Add(6*time.Minute)); state != stateMissing {
		test.Fatalf("expected expiry at the stale deadline, got %d", state)
	}
	if store.size() != 0 {
		test.Fatalf("expired entry must be evicted on read")
	}
}

func TestCacheFailureKeepsPreferredEndpoint(test *testing.T) {
	test.Parallel()
	store := newCache(10)
	store.storeSuccess("fp", Info{Total: 1}, "https://b", fixedStart, time.Minute, time.Minute)
	store.storeFailure("fp", fixedStart, 30*time.Second, errors.New("down"))

	entry, state := store.get("fp", fixedStart)
	if state != stateFresh || entry.present || entry.lastError != "down" {
		test.Fatalf("unexpected negative entry %+v", entry)
	}
	if store.preferredEndpoint("fp") != "https://b" {
		test.Fatalf("expected preferred endpoint to survive a failure write")
	}
	if !entry.freshUntil.Equal(entry.staleUntil) {
		test.Fatalf("negative entries have no stale window")
	}
}

func TestCacheEvictsOldestTenthByStaleDeadline(test *testing.T) {
	test.Parallel()
	store := newCache(20)
	for index := 0; index < 20; index++ {
		store.storeFailure("fp"+strconv.Itoa(index), fixedStart, time.Duration(index+1)*time.Minute, nil)
	}
	store.storeFailure("fp0", fixedStart, time.Hour, nil)
	if store.size() != 20 {
		test.Fatalf("overwriting an entry must not evict, size=%d", store.size())
	}

	store.storeFailure("newcomer", fixedStart, time.Minute, nil)
	if store.size() != 19 {
		test.Fatalf("expected two evictions before insert, size=%d", store.size())
	}
	for _, evicted := range []string{"fp1", "fp2"} {
		if _, state := store.get(evicted, fixedStart); state != stateMissing {
			test.Fatalf("expected %s evicted", evicted)
		}
	}
	if _, state := store.get("fp0", fixedStart); state == stateMissing {
		test.Fatalf("refreshed entry must outlive older deadlines")
	}
}

func TestCacheEvictsAtLeastOne(test *testing.T) {
	test.Parallel()
	store := newCache(2)
	store.storeFailure("a", fixedStart, time.Minute, nil)
	store.storeFailure("b", fixedStart, 2*time.Minute, nil)
	store.storeFailure("c", fixedStart, 3*time.Minute, nil)
	if _, state := store.get("a", fixedStart); state != stateMissing || store.size() != 2 {
		test.Fatalf("expected oldest entry evicted, size=%d", store.size())
	}
}
