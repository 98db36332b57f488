package api

import (
	"time"

	"coinfall/client/internal/game"
)

// TelegramIdentity is the Telegram-supplied payload the caller hands over for
// authentication. Parsing init data is the embedding shell's job, not ours.
type TelegramIdentity struct {
	TelegramID int64  `json:"telegram_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username,omitempty"`
	ReferredBy string `json:"referred_by,omitempty"`
}

// AuthResult carries the bearer token the sync requests require.
type AuthResult struct {
	Token      string `json:"token"`
	FirstLogin bool   `json:"first_login"`
}

// DailyBoosterResult mirrors the use-daily-booster response.
type DailyBoosterResult struct {
	CurrentEnergy    int       `json:"current_energy"`
	DailyBoosterUses int       `json:"daily_booster_uses"`
	NextAvailableAt  time.Time `json:"next_available_at"`
}

type deltaPayload struct {
	Seq         uint64 `json:"seq"`
	Taps        int    `json:"taps"`
	CoinsEarned int64  `json:"coins_earned"`
	EnergySpent int    `json:"energy_spent"`
	ClientTS    int64  `json:"client_ts"`
}

type syncRequest struct {
	BatchID string         `json:"batch_id"`
	Deltas  []deltaPayload `json:"deltas"`
}

type userPayload struct {
	Balance        int64   `json:"balance"`
	Energy         int     `json:"energy"`
	EnergyCap      int     `json:"energy_cap"`
	RegenPerSecond float64 `json:"regen_per_second"`
	TapValue       int64   `json:"tap_value"`
	TapCost        int     `json:"tap_cost"`
	Level          int     `json:"level"`
}

type boosterPayload struct {
	Type        string  `json:"type"`
	Multiplier  float64 `json:"multiplier"`
	Target      string  `json:"target"`
	ActivatedAt int64   `json:"activated_at"`
	ExpiresAt   int64   `json:"expires_at"`
}

type syncResponse struct {
	User         userPayload      `json:"user"`
	Boosters     []boosterPayload `json:"boosters"`
	SyncedAt     int64            `json:"synced_at,omitempty"`
	Rejected     bool             `json:"rejected,omitempty"`
	RejectReason string           `json:"reject_reason,omitempty"`
}

type authResponse struct {
	Token      string `json:"token"`
	FirstLogin bool   `json:"first_login"`
}

type buyBoosterRequest struct {
	BoosterType string `json:"booster_type"`
}

type dailyBoosterResponse struct {
	CurrentEnergy    int    `json:"current_energy"`
	DailyBoosterUses int    `json:"daily_booster_uses"`
	NextAvailableAt  string `json:"next_available_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r syncResponse) snapshot() game.ServerSnapshot {
	snap := game.ServerSnapshot{
		Balance:        r.User.Balance,
		Energy:         r.User.Energy,
		EnergyCap:      r.User.EnergyCap,
		RegenPerSecond: r.User.RegenPerSecond,
		TapValue:       r.User.TapValue,
		TapCost:        r.User.TapCost,
		Level:          r.User.Level,
	}
	if r.SyncedAt > 0 {
		snap.SyncedAt = time.Unix(r.SyncedAt, 0)
	}
	for _, b := range r.Boosters {
		snap.Boosters = append(snap.Boosters, game.Booster{
			Type:        b.Type,
			Multiplier:  b.Multiplier,
			Target:      game.BoosterTarget(b.Target),
			ActivatedAt: time.Unix(b.ActivatedAt, 0),
			ExpiresAt:   time.Unix(b.ExpiresAt, 0),
		})
	}
	return snap
}
