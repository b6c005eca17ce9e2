package booking

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Realtime event names. A booking emits both so subscribers can pick
// their granularity; create/delete only emit EventSlotsUpdated.
const (
	EventSlotsUpdated = "slots_updated"
	EventSlotBooked   = "slot_booked"
)

// Stream event types (envelope.event_type).
const (
	StreamSlotBooked   = "SlotBooked"
	StreamSlotsUpdated = "SlotsUpdated"
)

const (
	ActionBooked  = "booked"
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // slot id
	Payload       json.RawMessage `json:"payload"`
}

// SlotChange is the payload of every slot event, realtime and stream.
type SlotChange struct {
	ShopOwnerID   string    `json:"shop_owner_id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	SlotID        string    `json:"slot_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Available     bool      `json:"available"`
}

type traceKey struct{}

func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}
