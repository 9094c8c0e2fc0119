// Package cache holds the per-endpoint list cache.
//
// A list cache maps a scope (a study key, or GlobalKey for resources that do
// not belong to a study) to the complete parsed result of an unfiltered
// listing. Entries are replaced wholesale and never expire; they are removed
// only by an explicit Delete or Clear.
//
// Two Store implementations are provided:
//
//   - MemoryStore keeps entries in process memory.
//   - RedisStore keeps JSON-encoded entries in Redis so several processes can
//     share one warm cache.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore[models.Site]()
//
//	sites, ok, err := store.Get(ctx, "STUDY1")
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// fetch, then
//		err = store.Set(ctx, "STUDY1", fetched)
//	}
//
// # Redis
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore[models.Site](redisClient, "sites")
//
// Redis keys have the form edc:cache:{namespace}:{scope}.
//
// # Metrics
//
//   - edc_cache_hits_total{backend} - Cache hits
//   - edc_cache_misses_total{backend} - Cache misses
//   - edc_cache_errors_total{backend, operation} - Backend failures
//
// Concurrent writers to the same scope resolve last-writer-wins; a reader
// always sees one complete entry.
package cache
