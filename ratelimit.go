package viralquill

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rate-limit header contract (matched case-insensitively via http.Header).
const (
	headerRateLimitLimit     = "x-rate-limit-limit"
	headerRateLimitRemaining = "x-rate-limit-remaining"
	headerRateLimitReset     = "x-rate-limit-reset"
)

// RateLimitInfo is the last known rate-limit snapshot for one endpoint.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Scope     string // normalized endpoint key the snapshot was stored under
}

// ParseRateLimitHeaders extracts per-endpoint rate-limit state from response
// headers. All three keys must be present and integral; otherwise nil is
// returned and no state update occurs. Most responses do not carry these
// headers, so a nil result is expected and non-fatal.
func ParseRateLimitHeaders(h http.Header) *RateLimitInfo {
	limit, ok := headerInt(h, headerRateLimitLimit)
	if !ok {
		return nil
	}
	remaining, ok := headerInt(h, headerRateLimitRemaining)
	if !ok {
		return nil
	}
	reset, ok := headerInt(h, headerRateLimitReset)
	if !ok {
		return nil
	}
	return &RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(int64(reset), 0),
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DelayUntilReset returns how long to wait until the endpoint's window
// resets, padded by one second for clock skew. Zero if the reset has passed.
func DelayUntilReset(resetAt, now time.Time) time.Duration {
	d := resetAt.Sub(now) + time.Second
	if d < 0 {
		return 0
	}
	return d
}

// EndpointKey normalizes a method and path into a stable endpoint signature.
// Concrete path parameters (the platform's numeric ids) collapse to ":id" so
// all calls against the same route share one rate-limit bucket.
func EndpointKey(method, path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return method + " /"
	}
	segs := strings.Split(trimmed, "/")
	for i, s := range segs {
		if isPathParam(s) {
			segs[i] = ":id"
		}
	}
	return method + " /" + strings.Join(segs, "/")
}

func isPathParam(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rateLimitStore holds per-endpoint snapshots, replaced wholesale on each
// response. Last write wins under concurrent updates; the store is advisory
// telemetry for backoff hints, never a gate.
type rateLimitStore struct {
	mu        sync.RWMutex
	endpoints map[string]RateLimitInfo
}

func newRateLimitStore() *rateLimitStore {
	return &rateLimitStore{endpoints: make(map[string]RateLimitInfo)}
}

func (s *rateLimitStore) update(key string, info RateLimitInfo) {
	info.Scope = key
	s.mu.Lock()
	s.endpoints[key] = info
	s.mu.Unlock()
}

func (s *rateLimitStore) get(key string) (RateLimitInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.endpoints[key]
	return info, ok
}
