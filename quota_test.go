package viralquill

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newTestTracker() *QuotaTracker {
	return NewQuotaTracker(DefaultQuotaConfig())
}

func TestRecordReadsAccumulates(t *testing.T) {
	tracker := newTestTracker()

	tracker.RecordReads(5)
	tracker.RecordReads(10)

	assert.Equal(t, int64(15), tracker.Snapshot().ReadsUsed)
}

func TestRecordIgnoresNonPositive(t *testing.T) {
	tracker := newTestTracker()

	tracker.RecordReads(0)
	tracker.RecordReads(-3)
	tracker.RecordWrites(-1)

	state := tracker.Snapshot()
	assert.Equal(t, int64(0), state.ReadsUsed)
	assert.Equal(t, int64(0), state.WritesUsed)
}

func TestReserveWithheldFromUserReads(t *testing.T) {
	tracker := newTestTracker()

	// 90% of the 15,000 cap: the user budget (cap minus 10% reserve) is spent.
	tracker.RecordReads(13500)

	assert.False(t, tracker.CanRead(1), "user reads must stop at the reserve boundary")
	assert.True(t, tracker.CanSystemRead(1), "system reads may dip into the reserve")

	tracker.RecordReads(1500) // 100%
	assert.False(t, tracker.CanSystemRead(1), "nothing may exceed the absolute cap")
}

func TestCanWrite(t *testing.T) {
	tracker := newTestTracker()

	assert.True(t, tracker.CanWrite(50000))
	tracker.RecordWrites(50000)
	assert.False(t, tracker.CanWrite(1))
}

func TestFairShareReads(t *testing.T) {
	tracker := newTestTracker()

	// floor(15000 * 0.9 * 1.2) for a single user
	assert.Equal(t, int64(16200), tracker.FairShareReads())

	tracker.SetActiveUsers(10)
	assert.Equal(t, int64(1620), tracker.FairShareReads())

	tracker.SetActiveUsers(0)
	assert.Equal(t, int64(16200), tracker.FairShareReads(), "zero users behaves as one")
}

func TestLevelThresholds(t *testing.T) {
	tests := []struct {
		reads    int64
		expected QuotaLevel
	}{
		{0, QuotaNormal},
		{10499, QuotaNormal},   // just under 70%
		{10500, QuotaWarning},  // exactly 70%
		{13499, QuotaWarning},  // just under 90%
		{13500, QuotaCritical}, // exactly 90%
		{14999, QuotaCritical},
		{15000, QuotaExhausted},
		{16000, QuotaExhausted},
	}

	for _, tt := range tests {
		tracker := newTestTracker()
		tracker.RecordReads(tt.reads)
		assert.Equal(t, tt.expected, tracker.Level(), "reads=%d", tt.reads)
	}
}

func TestPollingMultiplier(t *testing.T) {
	tracker := newTestTracker()
	assert.Equal(t, 1.0, tracker.PollingMultiplier())

	tracker.RecordReads(10500)
	assert.Equal(t, 2.0, tracker.PollingMultiplier())

	tracker.RecordReads(3000) // 90%
	assert.Equal(t, 4.0, tracker.PollingMultiplier())

	tracker.RecordReads(1500) // 100%
	assert.True(t, math.IsInf(tracker.PollingMultiplier(), 1))
}

func TestCacheHitRate(t *testing.T) {
	tracker := newTestTracker()
	assert.Equal(t, 0.0, tracker.CacheHitRate(), "no requests means zero rate")

	tracker.RecordCacheHit()
	tracker.RecordCacheHit()
	tracker.RecordReads(1)

	assert.InDelta(t, 0.6667, tracker.CacheHitRate(), 0.00005)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "normal", QuotaNormal.String())
	assert.Equal(t, "warning", QuotaWarning.String())
	assert.Equal(t, "critical", QuotaCritical.String())
	assert.Equal(t, "exhausted", QuotaExhausted.String())
	assert.Equal(t, "unknown", QuotaLevel(42).String())
}

func TestResetZeroesCountersAndAdvancesBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	tracker := NewQuotaTrackerWithClock(DefaultQuotaConfig(), clock)

	tracker.RecordReads(100)
	tracker.RecordWrites(50)
	tracker.RecordCacheHit()
	tracker.Reset()

	state := tracker.Snapshot()
	assert.Equal(t, int64(0), state.ReadsUsed)
	assert.Equal(t, int64(0), state.WritesUsed)
	assert.Equal(t, 0.0, state.CacheHitRate)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), state.ResetAt,
		"reset boundary is the first instant of the next calendar month")
}

func TestCheckAndReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	tracker := NewQuotaTrackerWithClock(DefaultQuotaConfig(), clock)
	tracker.RecordReads(42)

	require.False(t, tracker.CheckAndReset(), "period has not rolled over")
	assert.Equal(t, int64(42), tracker.Snapshot().ReadsUsed)

	clock.now = time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, tracker.CheckAndReset(), "boundary reached")
	assert.Equal(t, int64(0), tracker.Snapshot().ReadsUsed)
	assert.Equal(t, time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), tracker.Snapshot().ResetAt)

	require.False(t, tracker.CheckAndReset(), "second call is a no-op")
}

func TestLoadStatePartial(t *testing.T) {
	tracker := newTestTracker()
	tracker.RecordReads(100)
	tracker.RecordWrites(200)

	reads := int64(5000)
	tracker.LoadState(QuotaStatePatch{ReadsUsed: &reads})

	state := tracker.Snapshot()
	assert.Equal(t, int64(5000), state.ReadsUsed, "patched field overwritten")
	assert.Equal(t, int64(200), state.WritesUsed, "absent field untouched")
}

func TestLoadStateAllFields(t *testing.T) {
	tracker := newTestTracker()

	reads, writes, hits, total := int64(10), int64(20), int64(3), int64(13)
	resetAt := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	tracker.LoadState(QuotaStatePatch{
		ReadsUsed:     &reads,
		WritesUsed:    &writes,
		CacheHits:     &hits,
		TotalRequests: &total,
		ResetAt:       &resetAt,
	})

	state := tracker.Snapshot()
	assert.Equal(t, int64(10), state.ReadsUsed)
	assert.Equal(t, int64(20), state.WritesUsed)
	assert.Equal(t, resetAt, state.ResetAt)
	assert.InDelta(t, 0.2308, state.CacheHitRate, 0.00005)
}

func TestLoadStateClampsNegatives(t *testing.T) {
	tracker := newTestTracker()
	tracker.RecordReads(10)

	negative := int64(-7)
	tracker.LoadState(QuotaStatePatch{ReadsUsed: &negative})

	assert.Equal(t, int64(0), tracker.Snapshot().ReadsUsed, "counters never go negative")
}

func TestSnapshotCarriesCaps(t *testing.T) {
	tracker := newTestTracker()
	state := tracker.Snapshot()

	assert.Equal(t, int64(15000), state.ReadCap)
	assert.Equal(t, int64(50000), state.WriteCap)
}
