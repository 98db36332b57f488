package gameplay

import (
	"context"

	"coinfall/client/logging"
)

const (
	// EventTapBlocked is emitted when a tap is refused for lack of energy.
	EventTapBlocked logging.EventType = "gameplay.tap_blocked"
	// EventDeltaCoalesced is emitted when taps fold into a pending delta.
	EventDeltaCoalesced logging.EventType = "gameplay.delta_coalesced"
	// EventReconcileConflict is emitted when a server merge would regress a
	// displayed value and the higher local value is kept instead.
	EventReconcileConflict logging.EventType = "gameplay.reconcile_conflict"
	// EventAuthoritativeReset is emitted when a rejected batch forces the
	// server snapshot to replace local state wholesale.
	EventAuthoritativeReset logging.EventType = "gameplay.authoritative_reset"
)

// TapBlockedPayload describes the refused tap.
type TapBlockedPayload struct {
	Energy  int `json:"energy"`
	TapCost int `json:"tapCost"`
}

// DeltaCoalescedPayload describes the pending delta the tap folded into.
type DeltaCoalescedPayload struct {
	Taps        int   `json:"taps"`
	CoinsEarned int64 `json:"coinsEarned"`
	EnergySpent int   `json:"energySpent"`
}

// ReconcileConflictPayload captures the values involved in an anti-regression
// merge decision.
type ReconcileConflictPayload struct {
	Field     string `json:"field"`
	Displayed int64  `json:"displayed"`
	Merged    int64  `json:"merged"`
}

// AuthoritativeResetPayload records how many unconfirmed deltas were dropped.
type AuthoritativeResetPayload struct {
	DroppedDeltas int    `json:"droppedDeltas"`
	Reason        string `json:"reason,omitempty"`
}

// TapBlocked publishes a debug event for an energy-starved tap.
func TapBlocked(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload TapBlockedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventTapBlocked,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ReconcileConflict publishes a warning when the merge keeps a higher local
// value to avoid a visible regression.
func ReconcileConflict(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload ReconcileConflictPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventReconcileConflict,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// AuthoritativeReset publishes a warning for a server-forced state reset.
func AuthoritativeReset(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload AuthoritativeResetPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAuthoritativeReset,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
