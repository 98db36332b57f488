package network

import (
	"context"

	"coinfall/client/logging"
)

const (
	// EventFlushDispatched is emitted when a delta batch leaves for the backend.
	EventFlushDispatched logging.EventType = "network.flush_dispatched"
	// EventFlushConfirmed is emitted when the backend acknowledges a batch.
	EventFlushConfirmed logging.EventType = "network.flush_confirmed"
	// EventFlushFailed is emitted when a flush attempt fails and will be retried.
	EventFlushFailed logging.EventType = "network.flush_failed"
	// EventFlushRejected is emitted when the backend refuses a batch outright.
	EventFlushRejected logging.EventType = "network.flush_rejected"
	// EventWentOffline is emitted when consecutive failures cross the offline threshold.
	EventWentOffline logging.EventType = "network.went_offline"
	// EventBackOnline is emitted when a flush succeeds after the offline flag was raised.
	EventBackOnline logging.EventType = "network.back_online"
	// EventAuthExpired is emitted when the backend reports an invalid bearer token.
	EventAuthExpired logging.EventType = "network.auth_expired"
)

// FlushPayload describes a dispatched or acknowledged delta batch.
type FlushPayload struct {
	BatchID    string `json:"batchId"`
	Taps       int    `json:"taps"`
	Deltas     int    `json:"deltas"`
	HighestSeq uint64 `json:"highestSeq"`
}

// FlushFailurePayload describes a failed attempt and the scheduled retry.
type FlushFailurePayload struct {
	BatchID     string `json:"batchId"`
	Consecutive int    `json:"consecutive"`
	NextRetryMS int64  `json:"nextRetryMs"`
	Reason      string `json:"reason,omitempty"`
}

// FlushDispatched publishes a debug event for an outgoing batch.
func FlushDispatched(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlushPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFlushDispatched,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FlushConfirmed publishes an info event for an acknowledged batch.
func FlushConfirmed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlushPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFlushConfirmed,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FlushFailed publishes a warning for a retriable flush failure.
func FlushFailed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlushFailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFlushFailed,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FlushRejected publishes an error event for a server-refused batch.
func FlushRejected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload FlushPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFlushRejected,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ConnectivityChanged publishes the offline/online transitions.
func ConnectivityChanged(ctx context.Context, pub logging.Publisher, offline bool, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	eventType := EventBackOnline
	severity := logging.SeverityInfo
	if offline {
		eventType = EventWentOffline
		severity = logging.SeverityWarn
	}
	event := logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// AuthExpired publishes a warning that syncing paused pending a new token.
func AuthExpired(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAuthExpired,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
