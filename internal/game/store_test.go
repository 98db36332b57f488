package game

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestStore(clock *fakeClock) *Store {
	cfg := DefaultConfig()
	cfg.PlayerID = "p1"
	cfg.TapCost = 5
	cfg.TapValue = 1
	cfg.EnergyCap = 100
	cfg.RegenPerSecond = 1
	cfg.CoalesceWindow = 0
	cfg.Clock = clock
	return NewStore(cfg)
}

func TestTapDepletesEnergyAndCreditsBalance(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 20; i++ {
		if _, err := store.Tap(); err != nil {
			t.Fatalf("tap %d failed: %v", i, err)
		}
	}
	snap := store.Snapshot()
	if snap.Energy != 0 {
		t.Fatalf("expected energy 0, got %d", snap.Energy)
	}
	if snap.Balance != 20 {
		t.Fatalf("expected balance 20, got %d", snap.Balance)
	}

	before := snap
	if _, err := store.Tap(); !errors.Is(err, ErrInsufficientEnergy) {
		t.Fatalf("expected ErrInsufficientEnergy, got %v", err)
	}
	after := store.Snapshot()
	if after.Balance != before.Balance || after.Energy != before.Energy {
		t.Fatalf("blocked tap mutated state: before=%+v after=%+v", before, after)
	}
}

func TestEnergyRegeneratesFromElapsedTime(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 20; i++ {
		if _, err := store.Tap(); err != nil {
			t.Fatalf("tap %d failed: %v", i, err)
		}
	}
	clock.Advance(50 * time.Second)
	snap := store.Snapshot()
	if snap.Energy != 50 {
		t.Fatalf("expected energy 50 after 50s, got %d", snap.Energy)
	}
}

func TestEnergyRegenerationIsIdempotentAtZeroElapsed(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	first := store.Snapshot()
	second := store.Snapshot()
	if first.Energy != second.Energy || first.Balance != second.Balance {
		t.Fatalf("zero-elapsed recompute changed state: %+v vs %+v", first, second)
	}
}

func TestEnergyNeverExceedsCap(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	clock.Advance(10 * time.Minute)
	snap := store.Snapshot()
	if snap.Energy != snap.EnergyCap {
		t.Fatalf("expected energy clamped at cap %d, got %d", snap.EnergyCap, snap.Energy)
	}
}

func TestReconcileReappliesUnconfirmedDeltas(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	// Delta 1: two taps before the flush.
	clock.Advance(time.Second)
	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}

	batch, ok := store.BeginFlush()
	if !ok {
		t.Fatalf("expected flushable batch")
	}
	if batch.Taps != 2 {
		t.Fatalf("expected 2 taps in batch, got %d", batch.Taps)
	}

	// Delta created while the request is in flight.
	clock.Advance(time.Second)
	if _, err := store.Tap(); err != nil {
		t.Fatalf("in-flight tap failed: %v", err)
	}

	// Server confirms only the flushed batch.
	server := ServerSnapshot{
		Balance:        2,
		Energy:         93,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        5,
	}
	snap := store.CompleteFlush(batch, server)

	// The in-flight tap must survive on top of the server balance.
	if snap.Balance != 3 {
		t.Fatalf("expected balance 3 after re-apply, got %d", snap.Balance)
	}
	if snap.PendingDeltas != 1 || snap.PendingTaps != 1 {
		t.Fatalf("expected one surviving delta/tap, got %d/%d", snap.PendingDeltas, snap.PendingTaps)
	}
}

func TestReconcileNeverRegressesDisplayedValues(t *testing.T) {
	clock := newFakeClock()
	metrics := newRecordingMetrics()
	cfg := DefaultConfig()
	cfg.TapCost = 5
	cfg.TapValue = 1
	cfg.EnergyCap = 100
	cfg.RegenPerSecond = 1
	cfg.CoalesceWindow = 0
	cfg.Clock = clock
	cfg.Metrics = metrics
	store := NewStore(cfg)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		if _, err := store.Tap(); err != nil {
			t.Fatalf("tap failed: %v", err)
		}
	}
	displayed := store.Snapshot()

	batch, ok := store.BeginFlush()
	if !ok {
		t.Fatalf("expected flushable batch")
	}

	// Stale server snapshot that lags what the player already sees.
	server := ServerSnapshot{
		Balance:        1,
		Energy:         displayed.Energy - 30,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        5,
	}
	snap := store.CompleteFlush(batch, server)
	if snap.Balance < displayed.Balance {
		t.Fatalf("balance regressed from %d to %d", displayed.Balance, snap.Balance)
	}
	if snap.Energy < displayed.Energy {
		t.Fatalf("energy regressed from %d to %d", displayed.Energy, snap.Energy)
	}
	if metrics.value(metricReconcileConflicts) == 0 {
		t.Fatalf("expected reconcile conflict metric to be flagged")
	}
}

func TestRejectedFlushForcesAuthoritativeReset(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		if _, err := store.Tap(); err != nil {
			t.Fatalf("tap failed: %v", err)
		}
	}
	batch, ok := store.BeginFlush()
	if !ok {
		t.Fatalf("expected flushable batch")
	}

	server := ServerSnapshot{
		Balance:        0,
		Energy:         100,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        5,
	}
	snap := store.RejectFlush(batch, server, "anomalous tap rate")
	if snap.Balance != 0 {
		t.Fatalf("expected authoritative balance 0, got %d", snap.Balance)
	}
	if snap.Energy != 100 {
		t.Fatalf("expected authoritative energy 100, got %d", snap.Energy)
	}
	if snap.PendingDeltas != 0 {
		t.Fatalf("expected pending buffer cleared, got %d deltas", snap.PendingDeltas)
	}
}

func TestBeginFlushIsSingleFlight(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	if _, ok := store.BeginFlush(); !ok {
		t.Fatalf("expected first flush to stage")
	}

	clock.Advance(time.Second)
	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	if _, ok := store.BeginFlush(); ok {
		t.Fatalf("expected second flush to queue behind the in-flight request")
	}

	batch, ok := func() (Batch, bool) {
		// Failing the outstanding request releases the marker; the retained
		// deltas plus the queued tap ride the next batch together.
		store.FailFlush(Batch{})
		return store.BeginFlush()
	}()
	if !ok {
		t.Fatalf("expected flush after release")
	}
	if batch.Taps != 2 {
		t.Fatalf("expected retained and queued taps in one batch, got %d", batch.Taps)
	}
}

func TestSeedReplaysPersistedDeltas(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	persisted := []PendingDelta{
		{Seq: 3, Taps: 2, CoinsEarned: 2, EnergySpent: 10, ClientTime: clock.Now()},
		{Seq: 1, Taps: 1, CoinsEarned: 1, EnergySpent: 5, ClientTime: clock.Now()},
	}
	server := ServerSnapshot{
		Balance:        40,
		Energy:         80,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        5,
	}
	store.Seed(server, persisted)

	snap := store.Snapshot()
	if snap.Balance != 43 {
		t.Fatalf("expected seeded balance 43, got %d", snap.Balance)
	}
	if snap.Energy != 65 {
		t.Fatalf("expected seeded energy 65, got %d", snap.Energy)
	}
	if snap.PendingDeltas != 2 || snap.PendingTaps != 3 {
		t.Fatalf("unexpected pending counts: %d deltas %d taps", snap.PendingDeltas, snap.PendingTaps)
	}

	// The sequence counter resumes past the highest persisted value.
	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	batch, ok := store.BeginFlush()
	if !ok {
		t.Fatalf("expected flushable batch")
	}
	if batch.HighestSeq != 4 {
		t.Fatalf("expected next seq 4 after persisted max 3, got %d", batch.HighestSeq)
	}
}

type recordingMetrics struct {
	counts map[string]uint64
	gauges map[string]uint64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]uint64), gauges: make(map[string]uint64)}
}

func (m *recordingMetrics) Add(key string, delta uint64) {
	m.counts[key] += delta
}

func (m *recordingMetrics) Store(key string, value uint64) {
	m.gauges[key] = value
}

func (m *recordingMetrics) value(key string) uint64 {
	return m.counts[key]
}
