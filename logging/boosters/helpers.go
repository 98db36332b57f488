package boosters

import (
	"context"

	"coinfall/client/logging"
)

const (
	// EventActivated is emitted when the server confirms a booster activation.
	EventActivated logging.EventType = "boosters.activated"
	// EventExtended is emitted when reactivating a booster pushes its expiry out.
	EventExtended logging.EventType = "boosters.extended"
	// EventExpired is emitted when a booster lapses during a lazy expiry sweep.
	EventExpired logging.EventType = "boosters.expired"
	// EventDeactivated is emitted when a sync reports a booster inactive early.
	EventDeactivated logging.EventType = "boosters.deactivated"
)

// LifecyclePayload describes the booster involved in a transition.
type LifecyclePayload struct {
	Type       string  `json:"type"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Target     string  `json:"target,omitempty"`
	ExpiresAt  int64   `json:"expiresAt,omitempty"`
}

// Activated publishes an info event for a confirmed activation.
func Activated(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventActivated, logging.SeverityInfo, actor, payload, extra)
}

// Extended publishes an info event for a same-type reactivation.
func Extended(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventExtended, logging.SeverityInfo, actor, payload, extra)
}

// Expired publishes a debug event for a lapsed booster.
func Expired(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventExpired, logging.SeverityDebug, actor, payload, extra)
}

// Deactivated publishes a debug event for a server-reported early removal.
func Deactivated(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventDeactivated, logging.SeverityDebug, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, actor logging.EntityRef, payload LifecyclePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryBoosters,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
