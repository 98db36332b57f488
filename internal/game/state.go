package game

import "time"

// BoosterTarget names the stat a booster multiplies.
type BoosterTarget string

const (
	TargetTapValue  BoosterTarget = "tap_value"
	TargetRegenRate BoosterTarget = "regen_rate"
)

// Booster is a server-confirmed, time-boxed multiplier. Distinct types stack
// multiplicatively; reactivating a type extends its expiry instead of
// stacking, mirroring the backend's documented semantics.
type Booster struct {
	Type        string
	Multiplier  float64
	Target      BoosterTarget
	ActivatedAt time.Time
	ExpiresAt   time.Time
}

// Active reports whether the booster still applies at the given instant.
func (b Booster) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// PendingDelta is a locally-applied, not-yet-server-confirmed mutation. Seq is
// assigned monotonically at creation and is the only identity the resolver
// uses; values are never compared.
type PendingDelta struct {
	Seq         uint64
	Taps        int
	CoinsEarned int64
	EnergySpent int
	ClientTime  time.Time
}

// ServerSnapshot is the authoritative player state a backend response carries.
// The api package converts wire payloads into this shape.
type ServerSnapshot struct {
	Balance        int64
	Energy         int
	EnergyCap      int
	RegenPerSecond float64
	TapValue       int64
	TapCost        int
	Level          int
	Boosters       []Booster
	SyncedAt       time.Time
}

// BoosterView is the render-facing projection of an active booster.
type BoosterView struct {
	Type        string        `json:"type"`
	Multiplier  float64       `json:"multiplier"`
	Target      BoosterTarget `json:"target"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	RemainingMS int64         `json:"remainingMs"`
}

// Snapshot is a consistent copy of the client's current belief about the
// player. The render layer only ever sees values read together under the
// store lock, so a tap can never produce a torn balance/energy pair.
type Snapshot struct {
	Balance           int64         `json:"balance"`
	Energy            int           `json:"energy"`
	EnergyCap         int           `json:"energyCap"`
	RegenPerSecond    float64       `json:"regenPerSecond"`
	EffectiveRegen    float64       `json:"effectiveRegen"`
	TapValue          int64         `json:"tapValue"`
	EffectiveTapValue int64         `json:"effectiveTapValue"`
	TapCost           int           `json:"tapCost"`
	Level             int           `json:"level"`
	Boosters          []BoosterView `json:"boosters,omitempty"`
	PendingDeltas     int           `json:"pendingDeltas"`
	PendingTaps       int           `json:"pendingTaps"`
	DailyBoosterUses  int           `json:"dailyBoosterUses"`
	NextDailyBoostAt  time.Time     `json:"nextDailyBoostAt,omitzero"`
	LastServerSyncAt  time.Time     `json:"lastServerSyncAt,omitzero"`
	LastMutationAt    time.Time     `json:"lastMutationAt,omitzero"`
}

// Batch is the frozen copy of pending deltas included in one sync round-trip.
type Batch struct {
	ID          string
	Deltas      []PendingDelta
	HighestSeq  uint64
	Taps        int
	CoinsEarned int64
	EnergySpent int
}
