package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinfall/client/internal/api"
	"coinfall/client/internal/catalog"
	"coinfall/client/internal/game"
	"coinfall/client/internal/syncer"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeBackend struct {
	authResult  api.AuthResult
	authErr     error
	authCalls   int
	state       game.ServerSnapshot
	stateErr    error
	buyState    game.ServerSnapshot
	buyErr      error
	boughtTypes []string
	daily       api.DailyBoosterResult
	dailyErr    error
}

func (b *fakeBackend) Authenticate(context.Context, api.TelegramIdentity) (api.AuthResult, error) {
	b.authCalls++
	return b.authResult, b.authErr
}

func (b *fakeBackend) FetchState(context.Context) (game.ServerSnapshot, error) {
	return b.state, b.stateErr
}

func (b *fakeBackend) BuyBooster(_ context.Context, boosterType string) (game.ServerSnapshot, error) {
	b.boughtTypes = append(b.boughtTypes, boosterType)
	return b.buyState, b.buyErr
}

func (b *fakeBackend) UseDailyBooster(context.Context) (api.DailyBoosterResult, error) {
	return b.daily, b.dailyErr
}

type fakeScheduler struct {
	flushes int
	resumes int
	flags   syncer.Flags
}

func (s *fakeScheduler) Flush()              { s.flushes++ }
func (s *fakeScheduler) Resume()             { s.resumes++ }
func (s *fakeScheduler) Flags() syncer.Flags { return s.flags }

type fakeJournal struct {
	deltas []game.PendingDelta
	err    error
}

func (j *fakeJournal) LoadDeltas() ([]game.PendingDelta, error) { return j.deltas, j.err }

func serverSnapshot(now time.Time, balance int64, energy int) game.ServerSnapshot {
	return game.ServerSnapshot{
		Balance:        balance,
		Energy:         energy,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        1,
		Level:          1,
		SyncedAt:       now,
	}
}

func newTestSession(t *testing.T, backend *fakeBackend, journal JournalReader, sched Scheduler) (*Session, *game.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := game.NewStore(game.Config{
		PlayerID:       "player-1",
		TapCost:        1,
		TapValue:       1,
		EnergyCap:      100,
		RegenPerSecond: 1,
		Clock:          clock,
	})
	shop, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	s := New(Config{
		Store:     store,
		Backend:   backend,
		Catalog:   shop,
		Journal:   journal,
		Scheduler: sched,
		Identity:  api.TelegramIdentity{TelegramID: 42, FirstName: "Test"},
	})
	return s, store, clock
}

func TestBootstrapSeedsStateAndReplaysJournal(t *testing.T) {
	backend := &fakeBackend{
		authResult: api.AuthResult{Token: "tok", FirstLogin: true},
	}
	sched := &fakeScheduler{}
	journal := &fakeJournal{deltas: []game.PendingDelta{
		{Seq: 1, Taps: 2, CoinsEarned: 2, EnergySpent: 2},
		{Seq: 2, Taps: 3, CoinsEarned: 3, EnergySpent: 3},
	}}
	s, store, clock := newTestSession(t, backend, journal, sched)
	backend.state = serverSnapshot(clock.now, 10, 80)

	first, err := s.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !first {
		t.Fatalf("expected first login flag")
	}
	snap := store.Snapshot()
	if snap.Balance != 15 {
		t.Fatalf("expected replayed balance 15, got %d", snap.Balance)
	}
	if snap.Energy != 75 {
		t.Fatalf("expected replayed energy 75, got %d", snap.Energy)
	}
	if sched.flushes != 1 {
		t.Fatalf("expected flush requested for replayed deltas, got %d", sched.flushes)
	}
}

func TestBootstrapToleratesBrokenJournal(t *testing.T) {
	backend := &fakeBackend{}
	s, store, clock := newTestSession(t, backend, &fakeJournal{err: errors.New("disk gone")}, &fakeScheduler{})
	backend.state = serverSnapshot(clock.now, 10, 80)

	if _, err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("expected bootstrap to survive journal failure: %v", err)
	}
	if snap := store.Snapshot(); snap.Balance != 10 || snap.Energy != 80 {
		t.Fatalf("expected clean seed, got balance=%d energy=%d", snap.Balance, snap.Energy)
	}
}

func TestBuyBoosterValidatesLocallyBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{}
	s, store, clock := newTestSession(t, backend, nil, &fakeScheduler{})
	store.Seed(serverSnapshot(clock.now, 10, 100), nil)

	if _, err := s.BuyBooster(context.Background(), "no_such_booster"); !errors.Is(err, ErrUnknownBooster) {
		t.Fatalf("expected ErrUnknownBooster, got %v", err)
	}
	if _, err := s.BuyBooster(context.Background(), "turbo_tap"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(backend.boughtTypes) != 0 {
		t.Fatalf("expected no round-trip for locally rejected purchases")
	}
}

func TestBuyBoosterAppliesPurchaseResponse(t *testing.T) {
	backend := &fakeBackend{}
	s, store, clock := newTestSession(t, backend, nil, &fakeScheduler{})
	store.Seed(serverSnapshot(clock.now, 1000, 100), nil)

	expires := clock.now.Add(10 * time.Minute)
	purchase := serverSnapshot(clock.now, 500, 100)
	purchase.Boosters = []game.Booster{{
		Type:        "turbo_tap",
		Multiplier:  2,
		Target:      game.TargetTapValue,
		ActivatedAt: clock.now,
		ExpiresAt:   expires,
	}}
	backend.buyState = purchase

	view, err := s.BuyBooster(context.Background(), "turbo_tap")
	if err != nil {
		t.Fatalf("buy booster: %v", err)
	}
	if view.Balance != 500 {
		t.Fatalf("expected balance to drop to 500 after purchase, got %d", view.Balance)
	}
	if len(view.Boosters) != 1 || view.Boosters[0].Type != "turbo_tap" {
		t.Fatalf("expected active turbo_tap booster, got %+v", view.Boosters)
	}
	if snap, err := store.Tap(); err != nil || snap.Balance != 502 {
		t.Fatalf("expected boosted tap to earn 2, got balance=%d err=%v", snap.Balance, err)
	}
}

func TestUseDailyBoosterRefillsEnergy(t *testing.T) {
	backend := &fakeBackend{}
	s, store, clock := newTestSession(t, backend, nil, &fakeScheduler{})
	store.Seed(serverSnapshot(clock.now, 0, 5), nil)
	backend.daily = api.DailyBoosterResult{
		CurrentEnergy:    100,
		DailyBoosterUses: 2,
		NextAvailableAt:  clock.now.Add(24 * time.Hour),
	}

	view, err := s.UseDailyBooster(context.Background())
	if err != nil {
		t.Fatalf("daily booster: %v", err)
	}
	if view.Energy != 100 {
		t.Fatalf("expected full energy, got %d", view.Energy)
	}
	if view.DailyBoosterUses != 2 {
		t.Fatalf("expected uses 2, got %d", view.DailyBoosterUses)
	}
}

func TestReauthenticateResumesScheduler(t *testing.T) {
	backend := &fakeBackend{}
	sched := &fakeScheduler{flags: syncer.Flags{NeedsReauth: true}}
	s, _, _ := newTestSession(t, backend, nil, sched)

	if err := s.Reauthenticate(context.Background()); err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}
	if backend.authCalls != 1 {
		t.Fatalf("expected auth round-trip, got %d", backend.authCalls)
	}
	if sched.resumes != 1 {
		t.Fatalf("expected scheduler resume, got %d", sched.resumes)
	}
}

func TestViewCarriesConnectivityFlags(t *testing.T) {
	backend := &fakeBackend{}
	sched := &fakeScheduler{flags: syncer.Flags{Offline: true}}
	s, store, clock := newTestSession(t, backend, nil, sched)
	store.Seed(serverSnapshot(clock.now, 0, 100), nil)

	if view := s.View(); !view.Offline {
		t.Fatalf("expected offline flag surfaced in view")
	}
}
