package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"coinfall/client/internal/game"
	"coinfall/client/internal/telemetry"
	"coinfall/client/logging"
	"coinfall/client/logging/network"
)

const (
	metricFlushesTotal       = "sync_flushes_total"
	metricFlushFailures      = "sync_flush_failures_total"
	metricFlushRejections    = "sync_flush_rejections_total"
	metricConsecutiveFails   = "sync_consecutive_failures"
	metricOfflineTransitions = "sync_offline_transitions_total"
)

// Backend performs the sync round-trip. The api client satisfies it. On
// game.ErrSyncRejected the returned snapshot is still authoritative.
type Backend interface {
	PushDeltas(ctx context.Context, batch game.Batch) (game.ServerSnapshot, error)
}

// Config tunes the flush triggers and retry policy.
type Config struct {
	// Debounce is the maximum age of the oldest unflushed delta before a
	// flush fires on its own.
	Debounce time.Duration
	// DeltaThreshold flushes once this many pending deltas accumulate.
	DeltaThreshold int
	// TapThreshold flushes once this many pending taps accumulate.
	TapThreshold int
	// Poll is the scheduler's trigger evaluation cadence.
	Poll time.Duration
	// RetryBase and RetryMax bound the exponential backoff after failures.
	RetryBase time.Duration
	RetryMax  time.Duration
	// OfflineAfter raises the offline flag after this many consecutive
	// failures. Accumulation continues regardless.
	OfflineAfter int
}

// DefaultConfig mirrors the cadence the production web view uses.
func DefaultConfig() Config {
	return Config{
		Debounce:       3 * time.Second,
		DeltaThreshold: 16,
		TapThreshold:   200,
		Poll:           250 * time.Millisecond,
		RetryBase:      time.Second,
		RetryMax:       30 * time.Second,
		OfflineAfter:   3,
	}
}

// Flags are the connectivity signals the presentation layer renders. They are
// non-fatal state, never thrown errors.
type Flags struct {
	Offline     bool `json:"offline"`
	NeedsReauth bool `json:"needsReauth"`
}

// Syncer batches pending deltas into bounded round-trips. One goroutine owns
// the round-trip, so at most one request is ever in flight; triggers landing
// mid-flight queue deltas for the next round instead of interleaving.
type Syncer struct {
	store   *game.Store
	backend Backend
	cfg     Config
	clock   logging.Clock
	pub     logging.Publisher
	metrics telemetry.Metrics
	logger  telemetry.Logger
	actor   logging.EntityRef

	mu          sync.Mutex
	consecutive int
	nextRetryAt time.Time
	flags       Flags

	flushCh chan struct{}
}

// New wires a syncer over the store and backend.
func New(store *game.Store, backend Backend, cfg Config, clock logging.Clock, pub logging.Publisher, metrics telemetry.Metrics, logger telemetry.Logger, playerID string) *Syncer {
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 250 * time.Millisecond
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &Syncer{
		store:   store,
		backend: backend,
		cfg:     cfg,
		clock:   clock,
		pub:     pub,
		metrics: metrics,
		logger:  logger,
		actor:   logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		flushCh: make(chan struct{}, 1),
	}
}

// Run drives the scheduler until the context is cancelled. A final explicit
// flush is attempted on the way out so navigation away drains the buffer.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.TryFlush(flushCtx, true)
			cancel()
			return
		case <-s.flushCh:
			s.TryFlush(ctx, true)
		case <-ticker.C:
			if s.due() {
				s.TryFlush(ctx, false)
			}
		}
	}
}

// Flush requests an explicit flush (navigation away, visibility hidden).
// Non-blocking: if a round-trip is in flight the request coalesces into the
// next round.
func (s *Syncer) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// Flags reports the current connectivity signals.
func (s *Syncer) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Resume clears the reauth pause after a fresh token is installed on the
// backend client. Buffered deltas are flushed on the next trigger.
func (s *Syncer) Resume() {
	s.mu.Lock()
	s.flags.NeedsReauth = false
	s.consecutive = 0
	s.nextRetryAt = time.Time{}
	s.mu.Unlock()
	s.Flush()
}

// due evaluates the scheduled triggers: debounce age, delta count, tap count.
func (s *Syncer) due() bool {
	s.mu.Lock()
	paused := s.flags.NeedsReauth
	retryAt := s.nextRetryAt
	s.mu.Unlock()
	if paused {
		return false
	}
	now := s.clock.Now()
	if !retryAt.IsZero() && now.Before(retryAt) {
		return false
	}
	deltas, taps := s.store.PendingCounts()
	if deltas == 0 {
		return false
	}
	if s.cfg.DeltaThreshold > 0 && deltas >= s.cfg.DeltaThreshold {
		return true
	}
	if s.cfg.TapThreshold > 0 && taps >= s.cfg.TapThreshold {
		return true
	}
	if oldest, ok := s.store.OldestPendingAt(); ok && s.cfg.Debounce > 0 {
		return !now.Before(oldest.Add(s.cfg.Debounce))
	}
	return false
}

// TryFlush performs at most one round-trip. force bypasses the retry backoff
// (explicit flushes should not wait out a timer the user cannot see) but
// never the single-flight guarantee. Reports whether a round-trip ran.
func (s *Syncer) TryFlush(ctx context.Context, force bool) bool {
	s.mu.Lock()
	if s.flags.NeedsReauth {
		s.mu.Unlock()
		return false
	}
	if !force && !s.nextRetryAt.IsZero() && s.clock.Now().Before(s.nextRetryAt) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	batch, ok := s.store.BeginFlush()
	if !ok {
		return false
	}

	network.FlushDispatched(ctx, s.pub, batch.HighestSeq, s.actor, network.FlushPayload{
		BatchID:    batch.ID,
		Taps:       batch.Taps,
		Deltas:     len(batch.Deltas),
		HighestSeq: batch.HighestSeq,
	}, nil)

	snapshot, err := s.backend.PushDeltas(ctx, batch)
	switch {
	case err == nil:
		s.completeFlush(ctx, batch, snapshot)
	case errors.Is(err, game.ErrSyncRejected):
		s.rejectFlush(ctx, batch, snapshot, err)
	case errors.Is(err, game.ErrAuthExpired):
		s.pauseForReauth(ctx, batch)
	default:
		s.failFlush(ctx, batch, err)
	}
	return true
}

func (s *Syncer) completeFlush(ctx context.Context, batch game.Batch, snapshot game.ServerSnapshot) {
	s.store.CompleteFlush(batch, snapshot)
	s.addMetric(metricFlushesTotal, 1)

	s.mu.Lock()
	s.consecutive = 0
	s.nextRetryAt = time.Time{}
	wasOffline := s.flags.Offline
	s.flags.Offline = false
	s.mu.Unlock()
	s.storeMetric(metricConsecutiveFails, 0)

	network.FlushConfirmed(ctx, s.pub, batch.HighestSeq, s.actor, network.FlushPayload{
		BatchID:    batch.ID,
		Taps:       batch.Taps,
		Deltas:     len(batch.Deltas),
		HighestSeq: batch.HighestSeq,
	}, nil)
	if wasOffline {
		network.ConnectivityChanged(ctx, s.pub, false, s.actor, nil)
	}
}

func (s *Syncer) rejectFlush(ctx context.Context, batch game.Batch, snapshot game.ServerSnapshot, err error) {
	s.store.RejectFlush(batch, snapshot, err.Error())
	s.addMetric(metricFlushRejections, 1)

	s.mu.Lock()
	s.consecutive = 0
	s.nextRetryAt = time.Time{}
	s.mu.Unlock()

	network.FlushRejected(ctx, s.pub, batch.HighestSeq, s.actor, network.FlushPayload{
		BatchID:    batch.ID,
		Taps:       batch.Taps,
		Deltas:     len(batch.Deltas),
		HighestSeq: batch.HighestSeq,
	}, map[string]any{"reason": err.Error()})
}

func (s *Syncer) pauseForReauth(ctx context.Context, batch game.Batch) {
	s.store.FailFlush(batch)

	s.mu.Lock()
	s.flags.NeedsReauth = true
	s.mu.Unlock()

	network.AuthExpired(ctx, s.pub, s.actor, nil)
	if s.logger != nil {
		s.logger.Printf("sync paused awaiting reauth, batch %s retained", batch.ID)
	}
}

func (s *Syncer) failFlush(ctx context.Context, batch game.Batch, err error) {
	s.store.FailFlush(batch)
	s.addMetric(metricFlushFailures, 1)

	s.mu.Lock()
	s.consecutive++
	consecutive := s.consecutive
	delay := s.backoff(consecutive)
	s.nextRetryAt = s.clock.Now().Add(delay)
	crossed := s.cfg.OfflineAfter > 0 && consecutive >= s.cfg.OfflineAfter && !s.flags.Offline
	if crossed {
		s.flags.Offline = true
	}
	s.mu.Unlock()
	s.storeMetric(metricConsecutiveFails, uint64(consecutive))

	network.FlushFailed(ctx, s.pub, batch.HighestSeq, s.actor, network.FlushFailurePayload{
		BatchID:     batch.ID,
		Consecutive: consecutive,
		NextRetryMS: delay.Milliseconds(),
		Reason:      err.Error(),
	}, nil)
	if crossed {
		s.addMetric(metricOfflineTransitions, 1)
		network.ConnectivityChanged(ctx, s.pub, true, s.actor, nil)
	}
}

// backoff doubles the base delay per consecutive failure, capped at RetryMax.
func (s *Syncer) backoff(consecutive int) time.Duration {
	if consecutive < 1 {
		consecutive = 1
	}
	delay := s.cfg.RetryBase
	for i := 1; i < consecutive; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMax {
			return s.cfg.RetryMax
		}
	}
	if delay > s.cfg.RetryMax {
		delay = s.cfg.RetryMax
	}
	return delay
}

func (s *Syncer) addMetric(key string, delta uint64) {
	if s.metrics != nil {
		s.metrics.Add(key, delta)
	}
}

func (s *Syncer) storeMetric(key string, value uint64) {
	if s.metrics != nil {
		s.metrics.Store(key, value)
	}
}
