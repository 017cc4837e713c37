// Package viralquill provides a resilient, quota-aware client for the X API,
// built for a monthly-capped budget shared across many end users:
//
//   - Retries with exponential backoff + jitter, honoring rate-limit reset times
//   - Hard monthly read/write caps with a reserved fraction for system jobs
//   - Fair-share allocation and graceful degradation as the budget depletes
//   - Batch lookups that amortize quota cost across up to 100 ids per call
//   - Per-endpoint rate-limit telemetry parsed from response headers
//   - TTL lookup caching that turns repeat reads into free cache hits
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Quota state is an explicit injected instance, never a process singleton;
//     persistence is the owning service's save-after-record call
//   - Mock mode (no credentials) exercises identical budget semantics
//
// Typical usage:
//
//	client := viralquill.New(
//	    viralquill.WithBearerToken(os.Getenv("X_BEARER_TOKEN")),
//	    viralquill.WithQuotaConfig(viralquill.DefaultQuotaConfig()),
//	    viralquill.WithLookupCache(15*time.Minute),
//	    viralquill.WithMetrics(),
//	)
//	posts, err := client.LookupPosts(ctx, ids)
//
// Without a bearer token the client serves deterministic synthetic data through
// the same quota gates, so tests and local development consume budget exactly
// like production. The library avoids opinionated logging: provide a Logger
// (e.g. via WithZapLogger) + enable debug flags selectively for insight
// without noise.
package viralquill
