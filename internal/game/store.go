package game

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinfall/client/internal/telemetry"
	"coinfall/client/logging"
	"coinfall/client/logging/gameplay"
)

const (
	metricReconcileConflicts = "game_reconcile_conflicts_total"
	metricAuthoritativeReset = "game_authoritative_resets_total"
	metricTapsBlocked        = "game_taps_blocked_total"
	metricPendingDeltas      = "game_pending_deltas"
	metricPendingTaps        = "game_pending_taps"
)

// DeltaJournal persists unconfirmed deltas so buffered taps survive process
// restarts. Implementations must be safe for calls under the store lock.
type DeltaJournal interface {
	SaveDelta(d PendingDelta) error
	DeleteThrough(seq uint64) error
	DeleteAll() error
}

// Config tunes a Store.
type Config struct {
	PlayerID       string
	TapCost        int
	TapValue       int64
	EnergyCap      int
	RegenPerSecond float64
	CoalesceWindow time.Duration

	Clock     logging.Clock
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger
	Journal   DeltaJournal
}

// DefaultConfig returns the tuning the backend hands out to fresh players.
func DefaultConfig() Config {
	return Config{
		TapCost:        1,
		TapValue:       1,
		EnergyCap:      1000,
		RegenPerSecond: 1,
		CoalesceWindow: 500 * time.Millisecond,
	}
}

// Store owns the single mutable PlayerState. Every mutation happens under one
// lock so the render layer never observes a torn balance/energy pair, and all
// timing flows through the injected clock.
type Store struct {
	mu sync.Mutex

	playerID string
	clock    logging.Clock
	pub      logging.Publisher
	metrics  telemetry.Metrics
	logger   telemetry.Logger
	journal  DeltaJournal

	balance        int64
	energy         float64
	energyCap      int
	regenPerSecond float64
	tapValue       int64
	tapCost        int
	level          int
	coalesce       time.Duration

	boosters []Booster
	pending  pendingJournal

	dailyUses    int
	nextDailyAt  time.Time
	lastSyncAt   time.Time
	lastMutation time.Time
	lastRegenAt  time.Time
}

// NewStore constructs a store with the provided tuning. The state is cold
// until Seed applies the first authoritative snapshot.
func NewStore(cfg Config) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if cfg.TapCost <= 0 {
		cfg.TapCost = 1
	}
	if cfg.TapValue <= 0 {
		cfg.TapValue = 1
	}
	if cfg.EnergyCap <= 0 {
		cfg.EnergyCap = 1000
	}
	if cfg.RegenPerSecond < 0 {
		cfg.RegenPerSecond = 0
	}
	now := clock.Now()
	return &Store{
		playerID:       cfg.PlayerID,
		clock:          clock,
		pub:            pub,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		journal:        cfg.Journal,
		energy:         float64(cfg.EnergyCap),
		energyCap:      cfg.EnergyCap,
		regenPerSecond: cfg.RegenPerSecond,
		tapValue:       cfg.TapValue,
		tapCost:        cfg.TapCost,
		coalesce:       cfg.CoalesceWindow,
		pending:        newPendingJournal(),
		lastRegenAt:    now,
	}
}

// Seed replaces local state with the authoritative snapshot that opens a
// session, then replays any persisted unconfirmed deltas on top of it.
func (s *Store) Seed(server ServerSnapshot, persisted []PendingDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.adoptServerLocked(server)
	sort.Slice(persisted, func(i, k int) bool { return persisted[i].Seq < persisted[k].Seq })
	s.pending.restore(persisted)
	for _, d := range persisted {
		s.balance += d.CoinsEarned
		s.energy -= float64(d.EnergySpent)
	}
	if s.energy < 0 {
		s.energy = 0
	}
	s.boosters = append(s.boosters[:0], server.Boosters...)
	s.lastSyncAt = server.SyncedAt
	if s.lastSyncAt.IsZero() {
		s.lastSyncAt = now
	}
	s.lastRegenAt = now
	s.lastMutation = now
	s.storePendingGaugesLocked()
}

// Tap applies one tap: spend energy, credit the boosted tap value, and fold
// the mutation into the pending journal. Returns the post-tap snapshot, or
// ErrInsufficientEnergy with state untouched.
func (s *Store) Tap() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.advanceLocked(now)

	if int(math.Floor(s.energy)) < s.tapCost {
		s.addMetricLocked(metricTapsBlocked, 1)
		gameplay.TapBlocked(context.Background(), s.pub, 0, s.actorLocked(), gameplay.TapBlockedPayload{
			Energy:  int(math.Floor(s.energy)),
			TapCost: s.tapCost,
		}, nil)
		return s.snapshotLocked(now), ErrInsufficientEnergy
	}

	earned := s.effectiveTapValueLocked(now)
	s.energy -= float64(s.tapCost)
	s.balance += earned
	s.lastMutation = now

	delta := s.pending.record(1, earned, s.tapCost, now, s.coalesce)
	s.persistDeltaLocked(delta)
	s.storePendingGaugesLocked()
	return s.snapshotLocked(now), nil
}

// Snapshot returns a consistent copy of the current state after applying lazy
// regeneration and booster expiry.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.advanceLocked(now)
	return s.snapshotLocked(now)
}

// PendingCounts reports the buffered delta and tap totals.
func (s *Store) PendingCounts() (deltas int, taps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.counts()
}

// OldestPendingAt reports the creation time of the oldest unflushed delta.
func (s *Store) OldestPendingAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.oldest()
}

// BeginFlush freezes the pending buffer into a batch for one round-trip.
// Returns false when a request is already outstanding or nothing is pending.
// Taps recorded after this call open new deltas and ride the next batch.
func (s *Store) BeginFlush() (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, highest, ok := s.pending.stage()
	if !ok {
		return Batch{}, false
	}
	batch := Batch{
		ID:         uuid.NewString(),
		Deltas:     staged,
		HighestSeq: highest,
	}
	for _, d := range staged {
		batch.Taps += d.Taps
		batch.CoinsEarned += d.CoinsEarned
		batch.EnergySpent += d.EnergySpent
	}
	return batch, true
}

// FailFlush releases the in-flight marker after a transport failure. Every
// delta is retained for the next attempt.
func (s *Store) FailFlush(Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.release()
}

// CompleteFlush reconciles an acknowledged batch: confirmed deltas are
// discarded by sequence, still-unconfirmed deltas are re-applied on the
// server snapshot in creation order, and displayed values never regress.
func (s *Store) CompleteFlush(batch Batch, server ServerSnapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.advanceLocked(now)

	displayedBalance := s.balance
	displayedEnergy := int(math.Floor(s.energy))

	s.pending.confirmThrough(batch.HighestSeq)
	s.deleteJournalThroughLocked(batch.HighestSeq)

	balance := server.Balance
	energy := float64(server.Energy)
	for _, d := range s.pending.deltas {
		balance += d.CoinsEarned
		energy -= float64(d.EnergySpent)
	}
	if energy < 0 {
		energy = 0
	}

	s.adoptTuningLocked(server)
	if energy > float64(s.energyCap) {
		energy = float64(s.energyCap)
	}

	if balance < displayedBalance {
		s.noteConflictLocked(batch.HighestSeq, "balance", displayedBalance, balance)
		balance = displayedBalance
	}
	if int(math.Floor(energy)) < displayedEnergy {
		s.noteConflictLocked(batch.HighestSeq, "energy", int64(displayedEnergy), int64(math.Floor(energy)))
		energy = float64(displayedEnergy)
	}

	s.balance = balance
	s.energy = energy
	s.mergeServerBoostersLocked(server.Boosters, now)
	s.lastSyncAt = now
	s.lastRegenAt = now
	s.storePendingGaugesLocked()
	return s.snapshotLocked(now)
}

// RejectFlush handles a server-refused batch: every unconfirmed delta is
// discarded and the authoritative snapshot replaces local state wholesale.
// Local optimism is a UX optimization, not a source of truth.
func (s *Store) RejectFlush(batch Batch, server ServerSnapshot, reason string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	dropped := s.pending.clear()
	if s.journal != nil {
		if err := s.journal.DeleteAll(); err != nil && s.logger != nil {
			s.logger.Printf("pending journal clear failed: %v", err)
		}
	}

	s.adoptServerLocked(server)
	s.boosters = append(s.boosters[:0], server.Boosters...)
	s.lastSyncAt = now
	s.lastRegenAt = now
	s.lastMutation = now

	s.addMetricLocked(metricAuthoritativeReset, 1)
	gameplay.AuthoritativeReset(context.Background(), s.pub, batch.HighestSeq, s.actorLocked(), gameplay.AuthoritativeResetPayload{
		DroppedDeltas: dropped,
		Reason:        reason,
	}, nil)
	s.storePendingGaugesLocked()
	return s.snapshotLocked(now)
}

// ApplyServer folds a non-sync authoritative response (booster purchase) into
// local state. Pending deltas are re-applied on the server balance; balance
// may legitimately drop here because purchases spend coins, but energy keeps
// the anti-regression guarantee.
func (s *Store) ApplyServer(server ServerSnapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.advanceLocked(now)

	displayedEnergy := s.energy

	balance := server.Balance
	energy := float64(server.Energy)
	for _, d := range s.pending.deltas {
		balance += d.CoinsEarned
		energy -= float64(d.EnergySpent)
	}
	if energy < 0 {
		energy = 0
	}

	s.adoptTuningLocked(server)
	if energy > float64(s.energyCap) {
		energy = float64(s.energyCap)
	}
	if energy < displayedEnergy {
		energy = displayedEnergy
	}

	s.balance = balance
	s.energy = energy
	for _, b := range server.Boosters {
		s.upsertBoosterLocked(b, now)
	}
	s.lastSyncAt = now
	s.lastRegenAt = now
	s.lastMutation = now
	return s.snapshotLocked(now)
}

// ApplyDailyBooster adopts the refilled energy reported by the daily booster
// endpoint, never below what the player already sees.
func (s *Store) ApplyDailyBooster(energy int, uses int, nextAt time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.advanceLocked(now)
	if float64(energy) > s.energy {
		s.energy = float64(energy)
	}
	if s.energy > float64(s.energyCap) {
		s.energy = float64(s.energyCap)
	}
	s.dailyUses = uses
	s.nextDailyAt = nextAt
	s.lastMutation = now
	s.lastRegenAt = now
	return s.snapshotLocked(now)
}

// --- internals, all called under s.mu ---

// advanceLocked applies lazy regeneration from elapsed wall-clock time and
// sweeps expired boosters. Regeneration integrates piecewise across booster
// expiry boundaries so a regen booster lapsing mid-window contributes only
// its active span. Idempotent at zero elapsed time.
func (s *Store) advanceLocked(now time.Time) {
	if !now.After(s.lastRegenAt) {
		s.expireBoostersLocked(now)
		return
	}

	boundaries := make([]time.Time, 0, len(s.boosters))
	for _, b := range s.boosters {
		if b.Target != TargetRegenRate {
			continue
		}
		if b.ExpiresAt.After(s.lastRegenAt) && b.ExpiresAt.Before(now) {
			boundaries = append(boundaries, b.ExpiresAt)
		}
	}
	sort.Slice(boundaries, func(i, k int) bool { return boundaries[i].Before(boundaries[k]) })

	start := s.lastRegenAt
	for _, boundary := range append(boundaries, now) {
		if !boundary.After(start) {
			continue
		}
		rate := s.regenPerSecond * s.regenMultiplierLocked(start)
		s.energy += rate * boundary.Sub(start).Seconds()
		if s.energy > float64(s.energyCap) {
			s.energy = float64(s.energyCap)
		}
		start = boundary
	}
	s.lastRegenAt = now
	s.expireBoostersLocked(now)
}

func (s *Store) adoptServerLocked(server ServerSnapshot) {
	s.adoptTuningLocked(server)
	s.balance = server.Balance
	s.energy = float64(server.Energy)
	if s.energy > float64(s.energyCap) {
		s.energy = float64(s.energyCap)
	}
	if s.energy < 0 {
		s.energy = 0
	}
}

func (s *Store) adoptTuningLocked(server ServerSnapshot) {
	if server.EnergyCap > 0 {
		s.energyCap = server.EnergyCap
	}
	if server.RegenPerSecond >= 0 {
		s.regenPerSecond = server.RegenPerSecond
	}
	if server.TapValue > 0 {
		s.tapValue = server.TapValue
	}
	if server.TapCost > 0 {
		s.tapCost = server.TapCost
	}
	if server.Level > 0 {
		s.level = server.Level
	}
}

func (s *Store) effectiveTapValueLocked(now time.Time) int64 {
	value := float64(s.tapValue) * s.tapMultiplierLocked(now)
	return int64(math.Round(value))
}

func (s *Store) tapMultiplierLocked(now time.Time) float64 {
	mult := 1.0
	for _, b := range s.boosters {
		if b.Target == TargetTapValue && b.Active(now) {
			mult *= b.Multiplier
		}
	}
	return mult
}

// regenMultiplierLocked evaluates the regen multiplier product as of the
// given instant, which may lie in the past during piecewise integration.
func (s *Store) regenMultiplierLocked(at time.Time) float64 {
	mult := 1.0
	for _, b := range s.boosters {
		if b.Target == TargetRegenRate && at.Before(b.ExpiresAt) && !at.Before(b.ActivatedAt) {
			mult *= b.Multiplier
		}
	}
	return mult
}

func (s *Store) snapshotLocked(now time.Time) Snapshot {
	deltas, taps := s.pending.counts()
	snap := Snapshot{
		Balance:           s.balance,
		Energy:            int(math.Floor(s.energy)),
		EnergyCap:         s.energyCap,
		RegenPerSecond:    s.regenPerSecond,
		EffectiveRegen:    s.regenPerSecond * s.regenMultiplierLocked(now),
		TapValue:          s.tapValue,
		EffectiveTapValue: s.effectiveTapValueLocked(now),
		TapCost:           s.tapCost,
		Level:             s.level,
		PendingDeltas:     deltas,
		PendingTaps:       taps,
		DailyBoosterUses:  s.dailyUses,
		NextDailyBoostAt:  s.nextDailyAt,
		LastServerSyncAt:  s.lastSyncAt,
		LastMutationAt:    s.lastMutation,
	}
	for _, b := range s.boosters {
		if !b.Active(now) {
			continue
		}
		snap.Boosters = append(snap.Boosters, BoosterView{
			Type:        b.Type,
			Multiplier:  b.Multiplier,
			Target:      b.Target,
			ExpiresAt:   b.ExpiresAt,
			RemainingMS: b.ExpiresAt.Sub(now).Milliseconds(),
		})
	}
	return snap
}

func (s *Store) actorLocked() logging.EntityRef {
	return logging.EntityRef{ID: s.playerID, Kind: logging.EntityKindPlayer}
}

func (s *Store) noteConflictLocked(seq uint64, field string, displayed, merged int64) {
	s.addMetricLocked(metricReconcileConflicts, 1)
	gameplay.ReconcileConflict(context.Background(), s.pub, seq, s.actorLocked(), gameplay.ReconcileConflictPayload{
		Field:     field,
		Displayed: displayed,
		Merged:    merged,
	}, nil)
}

func (s *Store) persistDeltaLocked(delta PendingDelta) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveDelta(delta); err != nil && s.logger != nil {
		s.logger.Printf("pending journal write failed seq=%d: %v", delta.Seq, err)
	}
}

func (s *Store) deleteJournalThroughLocked(seq uint64) {
	if s.journal == nil {
		return
	}
	if err := s.journal.DeleteThrough(seq); err != nil && s.logger != nil {
		s.logger.Printf("pending journal prune failed seq=%d: %v", seq, err)
	}
}

func (s *Store) addMetricLocked(key string, delta uint64) {
	if s.metrics == nil {
		return
	}
	s.metrics.Add(key, delta)
}

func (s *Store) storePendingGaugesLocked() {
	if s.metrics == nil {
		return
	}
	deltas, taps := s.pending.counts()
	s.metrics.Store(metricPendingDeltas, uint64(deltas))
	s.metrics.Store(metricPendingTaps, uint64(taps))
}
