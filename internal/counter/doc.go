// Package counter holds the element-counting pipeline and its domain types.
//
// A request flows through the states validating, cache_check, fetching, counting,
// persisting, aggregating and done. Any state may end the request with a failure.
// A cache hit skips straight from cache_check to aggregating. Statistics are always
// recomputed and never served from the cache.
//
// The cache has no store of its own. A hit is the most recent request row for the
// same URL and element written within CacheWindow, so request history is the only
// source of truth. Cross-request consistency (one row per domain, URL and element)
// is delegated to the store's unique constraints.
package counter
