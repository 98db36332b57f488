package game

import (
	"testing"
	"time"
)

func TestTapBoostersStackMultiplicatively(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	store.ApplyServer(ServerSnapshot{
		Balance:        0,
		Energy:         100,
		EnergyCap:      100,
		RegenPerSecond: 1,
		TapValue:       1,
		TapCost:        5,
		Boosters: []Booster{
			{Type: "turbo_tap", Multiplier: 2, Target: TargetTapValue, ActivatedAt: now, ExpiresAt: now.Add(time.Minute)},
			{Type: "mega_tap", Multiplier: 3, Target: TargetTapValue, ActivatedAt: now, ExpiresAt: now.Add(time.Minute)},
		},
	})

	snap, err := store.Tap()
	if err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	if snap.Balance != 6 {
		t.Fatalf("expected 2x3 boosted tap to earn 6, got %d", snap.Balance)
	}
	if snap.EffectiveTapValue != 6 {
		t.Fatalf("expected effective tap value 6, got %d", snap.EffectiveTapValue)
	}
}

func TestSameTypeReactivationExtendsExpiry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	first := Booster{Type: "turbo_tap", Multiplier: 2, Target: TargetTapValue, ActivatedAt: now, ExpiresAt: now.Add(30 * time.Second)}
	store.ApplyServer(ServerSnapshot{Energy: 100, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5, Boosters: []Booster{first}})

	later := first
	later.ExpiresAt = now.Add(90 * time.Second)
	store.ApplyServer(ServerSnapshot{Energy: 100, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5, Boosters: []Booster{later}})

	snap := store.Snapshot()
	if len(snap.Boosters) != 1 {
		t.Fatalf("expected a single booster after reactivation, got %d", len(snap.Boosters))
	}
	if !snap.Boosters[0].ExpiresAt.Equal(later.ExpiresAt) {
		t.Fatalf("expected expiry extended to %v, got %v", later.ExpiresAt, snap.Boosters[0].ExpiresAt)
	}
	if snap.EffectiveTapValue != 2 {
		t.Fatalf("expected multiplier unchanged at 2, got effective %d", snap.EffectiveTapValue)
	}
}

func TestBoosterExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	store.ApplyServer(ServerSnapshot{Energy: 100, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5, Boosters: []Booster{
		{Type: "turbo_tap", Multiplier: 2, Target: TargetTapValue, ActivatedAt: now, ExpiresAt: now.Add(10 * time.Second)},
	}})

	clock.Advance(11 * time.Second)
	snap := store.Snapshot()
	if len(snap.Boosters) != 0 {
		t.Fatalf("expected booster expired, still have %d", len(snap.Boosters))
	}
	if snap.EffectiveTapValue != 1 {
		t.Fatalf("expected base tap value after expiry, got %d", snap.EffectiveTapValue)
	}
}

func TestRegenBoosterIntegratesPiecewiseAcrossExpiry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	// Drain 50 energy, then double regen for the first 10 of 20 elapsed
	// seconds: expect 10*2 + 10*1 = 30 regenerated.
	for i := 0; i < 10; i++ {
		if _, err := store.Tap(); err != nil {
			t.Fatalf("tap failed: %v", err)
		}
	}
	store.ApplyServer(ServerSnapshot{Energy: 50, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5, Boosters: []Booster{
		{Type: "energy_flow", Multiplier: 2, Target: TargetRegenRate, ActivatedAt: now, ExpiresAt: now.Add(10 * time.Second)},
	}})

	clock.Advance(20 * time.Second)
	snap := store.Snapshot()
	if snap.Energy != 80 {
		t.Fatalf("expected energy 80 after piecewise regen, got %d", snap.Energy)
	}
	if len(snap.Boosters) != 0 {
		t.Fatalf("expected regen booster expired, still have %d", len(snap.Boosters))
	}
}

func TestServerSyncDeactivatesMissingBoosters(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	if _, err := store.Tap(); err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	store.ApplyServer(ServerSnapshot{Energy: 95, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5, Boosters: []Booster{
		{Type: "turbo_tap", Multiplier: 2, Target: TargetTapValue, ActivatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}})

	batch, ok := store.BeginFlush()
	if !ok {
		t.Fatalf("expected flushable batch")
	}
	// Sync response omits the booster: the server list wins.
	store.CompleteFlush(batch, ServerSnapshot{Balance: 1, Energy: 95, EnergyCap: 100, RegenPerSecond: 1, TapValue: 1, TapCost: 5})

	snap := store.Snapshot()
	if len(snap.Boosters) != 0 {
		t.Fatalf("expected booster deactivated by sync, still have %d", len(snap.Boosters))
	}
}
