package quota

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LookupBatch resolves many keys at once. Duplicate keys are queried once and fanned back
// out to every id that shares them. Ids whose key resolves to absent are left out.
func LookupBatch[K comparable](ctx context.Context, service *Service, keys map[K]string) map[K]Info {
	idsByKey := make(map[string][]K)
	for id, key := range keys {
		if key == "" {
			continue
		}
		idsByKey[key] = append(idsByKey[key], id)
	}

	results := make(map[K]Info, len(keys))
	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(service.MaxConcurrency())
	for key, ids := range idsByKey {
		key, ids := key, ids
		group.Go(func() error {
			info, ok := service.Lookup(ctx, key)
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				results[id] = info
			}
			return nil
		})
	}
	_ = group.Wait()
	return results
}
