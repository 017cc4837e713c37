package viralquill

import (
	"math"
	"sync"
	"time"
)

// QuotaLevel buckets read-budget usage into degradation tiers that drive
// client-visible behavior such as reduced polling frequency.
type QuotaLevel int

const (
	QuotaNormal QuotaLevel = iota
	QuotaWarning
	QuotaCritical
	QuotaExhausted
)

func (l QuotaLevel) String() string {
	switch l {
	case QuotaNormal:
		return "normal"
	case QuotaWarning:
		return "warning"
	case QuotaCritical:
		return "critical"
	case QuotaExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// QuotaConfig holds the consumption policy. The reserve fraction and the
// power-user buffer are product policy constants, not derived values; override
// them rather than recalibrating in code.
type QuotaConfig struct {
	MonthlyReadCap    int64
	MonthlyWriteCap   int64
	ReservePercent    float64 // fraction of reads withheld from user-initiated traffic
	WarningThreshold  float64
	CriticalThreshold float64
	PowerUserBuffer   float64 // headroom multiplier on fair-share allocations
}

// DefaultQuotaConfig returns the stock policy for the platform's capped tier.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		MonthlyReadCap:    15000,
		MonthlyWriteCap:   50000,
		ReservePercent:    0.10,
		WarningThreshold:  0.70,
		CriticalThreshold: 0.90,
		PowerUserBuffer:   1.2,
	}
}

// QuotaState is a full snapshot of the tracker.
type QuotaState struct {
	ReadsUsed    int64     `json:"reads_used"`
	WritesUsed   int64     `json:"writes_used"`
	ReadCap      int64     `json:"read_cap"`
	WriteCap     int64     `json:"write_cap"`
	ResetAt      time.Time `json:"reset_at"`
	CacheHitRate float64   `json:"cache_hit_rate"`
}

// QuotaStatePatch is a partial snapshot for startup restore. Nil fields leave
// the corresponding tracker state untouched.
type QuotaStatePatch struct {
	ReadsUsed     *int64     `json:"reads_used,omitempty"`
	WritesUsed    *int64     `json:"writes_used,omitempty"`
	CacheHits     *int64     `json:"cache_hits,omitempty"`
	TotalRequests *int64     `json:"total_requests,omitempty"`
	ResetAt       *time.Time `json:"reset_at,omitempty"`
}

// QuotaTracker owns one shared monthly consumption budget. Create it at the
// composition root and inject it into every consumer; it is never a process
// singleton. The tracker does not initiate saves — the owning service calls
// Snapshot after recording and persists the result itself.
//
// Safe for concurrent use: one mutex guards every read and record operation,
// since increments are not atomic and unguarded races would corrupt counts.
type QuotaTracker struct {
	mu    sync.Mutex
	cfg   QuotaConfig
	clock Clock

	readsUsed     int64
	writesUsed    int64
	cacheHits     int64
	totalRequests int64
	activeUsers   int
	resetAt       time.Time
}

// NewQuotaTracker creates a tracker for the given policy using wall-clock time.
func NewQuotaTracker(cfg QuotaConfig) *QuotaTracker {
	return NewQuotaTrackerWithClock(cfg, systemClock{})
}

// NewQuotaTrackerWithClock creates a tracker with an injected time source.
func NewQuotaTrackerWithClock(cfg QuotaConfig, clock Clock) *QuotaTracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &QuotaTracker{
		cfg:     cfg,
		clock:   clock,
		resetAt: nextMonthStart(clock.Now()),
	}
}

// RecordReads adds n consumed read units. Counters are monotonic within a
// period; non-positive n is ignored.
func (t *QuotaTracker) RecordReads(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readsUsed += n
	t.totalRequests += n
}

// RecordWrites adds n consumed write units.
func (t *QuotaTracker) RecordWrites(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writesUsed += n
}

// RecordCacheHit notes a read served from cache: it costs no quota but feeds
// the total-request denominator used for the hit rate.
func (t *QuotaTracker) RecordCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheHits++
	t.totalRequests++
}

// CanRead reports whether n more reads fit in the user budget: the monthly cap
// minus the reserved fraction withheld for system operations.
func (t *QuotaTracker) CanRead(n int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	effective := float64(t.cfg.MonthlyReadCap) * (1 - t.cfg.ReservePercent)
	return float64(t.readsUsed+n) <= effective
}

// CanSystemRead reports whether n more reads fit under the absolute cap,
// bypassing the reserve. For background and system-initiated operations.
func (t *QuotaTracker) CanSystemRead(n int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readsUsed+n <= t.cfg.MonthlyReadCap
}

// CanWrite reports whether n more writes fit under the monthly write cap.
func (t *QuotaTracker) CanWrite(n int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writesUsed+n <= t.cfg.MonthlyWriteCap
}

// SetActiveUsers records the active-consumer count used for fair-share
// computation. Zero or negative counts behave as one user.
func (t *QuotaTracker) SetActiveUsers(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeUsers = n
}

// FairShareReads returns one consumer's proportional allocation of the
// non-reserved read budget, inflated by the power-user buffer. Always
// recomputed from current state, never cached.
func (t *QuotaTracker) FairShareReads() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.activeUsers
	if users < 1 {
		users = 1
	}
	effective := float64(t.cfg.MonthlyReadCap) * (1 - t.cfg.ReservePercent)
	return int64(math.Floor(effective / float64(users) * t.cfg.PowerUserBuffer))
}

// Level returns the current degradation tier, derived on demand from read
// usage against the cap.
func (t *QuotaTracker) Level() QuotaLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.levelLocked()
}

func (t *QuotaTracker) levelLocked() QuotaLevel {
	usage := float64(t.readsUsed) / float64(t.cfg.MonthlyReadCap)
	switch {
	case usage < t.cfg.WarningThreshold:
		return QuotaNormal
	case usage < t.cfg.CriticalThreshold:
		return QuotaWarning
	case usage < 1.0:
		return QuotaCritical
	default:
		return QuotaExhausted
	}
}

// PollingMultiplier is a backpressure hint for polling consumers: stretch the
// polling interval by this factor. Infinite at exhaustion — stop polling.
func (t *QuotaTracker) PollingMultiplier() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.levelLocked() {
	case QuotaWarning:
		return 2
	case QuotaCritical:
		return 4
	case QuotaExhausted:
		return math.Inf(1)
	default:
		return 1
	}
}

// CacheHitRate reports cache efficiency as hits over total requests, rounded
// to four decimal places. Zero when nothing has been recorded.
func (t *QuotaTracker) CacheHitRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cacheHitRateLocked()
}

func (t *QuotaTracker) cacheHitRateLocked() float64 {
	if t.totalRequests == 0 {
		return 0
	}
	rate := float64(t.cacheHits) / float64(t.totalRequests)
	return math.Round(rate*10000) / 10000
}

// Reset zeroes all counters and advances the reset boundary to the first
// instant of the next calendar month.
func (t *QuotaTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *QuotaTracker) resetLocked() {
	t.readsUsed = 0
	t.writesUsed = 0
	t.cacheHits = 0
	t.totalRequests = 0
	t.resetAt = nextMonthStart(t.clock.Now())
}

// CheckAndReset performs a reset if the period has rolled over and reports
// whether it did. Idempotent and otherwise side-effect free.
func (t *QuotaTracker) CheckAndReset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clock.Now().Before(t.resetAt) {
		return false
	}
	t.resetLocked()
	return true
}

// LoadState overwrites only the fields present in the patch, leaving all
// other tracker state untouched. Used for startup restore from whatever
// persistence the owning service runs. Negative counts clamp to zero.
func (t *QuotaTracker) LoadState(patch QuotaStatePatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if patch.ReadsUsed != nil {
		t.readsUsed = clampNonNegative(*patch.ReadsUsed)
	}
	if patch.WritesUsed != nil {
		t.writesUsed = clampNonNegative(*patch.WritesUsed)
	}
	if patch.CacheHits != nil {
		t.cacheHits = clampNonNegative(*patch.CacheHits)
	}
	if patch.TotalRequests != nil {
		t.totalRequests = clampNonNegative(*patch.TotalRequests)
	}
	if patch.ResetAt != nil {
		t.resetAt = *patch.ResetAt
	}
}

// Snapshot returns the full current state.
func (t *QuotaTracker) Snapshot() QuotaState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return QuotaState{
		ReadsUsed:    t.readsUsed,
		WritesUsed:   t.writesUsed,
		ReadCap:      t.cfg.MonthlyReadCap,
		WriteCap:     t.cfg.MonthlyWriteCap,
		ResetAt:      t.resetAt,
		CacheHitRate: t.cacheHitRateLocked(),
	}
}

// Config returns the policy the tracker was built with.
func (t *QuotaTracker) Config() QuotaConfig {
	return t.cfg
}

func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// nextMonthStart returns the first instant of the next calendar month in UTC.
func nextMonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
