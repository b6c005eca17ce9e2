package booking

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel is the realtime fan-out to a shop's connected clients.
// Publish reports how many subscribers received the message.
type Channel interface {
	Publish(ctx context.Context, room, event string, payload any) (int64, error)
}

// Stream is the durable event log. Emit must not block; it reports
// whether the event was accepted.
type Stream interface {
	Emit(topic string, key []byte, eventType string, value []byte) bool
}

// Publisher implements Notifier. Delivery problems are logged and
// swallowed so a committed booking is never affected by them.
type Publisher struct {
	channel Channel
	stream  Stream
	log     *zap.Logger
	service string
	timeout time.Duration
	now     func() time.Time
}

func NewPublisher(channel Channel, stream Stream, log *zap.Logger, service string, timeout time.Duration) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		channel: channel,
		stream:  stream,
		log:     log,
		service: service,
		timeout: timeout,
		now:     time.Now,
	}
}

func (p *Publisher) PublishSlotChange(ctx context.Context, shopOwnerID string, change SlotChange) {
	change.ShopOwnerID = shopOwnerID
	if change.Timestamp.IsZero() {
		change.Timestamp = p.now().UTC()
	}

	// detached: a client hanging up right after booking must not drop the event
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	p.broadcast(pctx, change)
	p.emit(pctx, change)
}

func (p *Publisher) broadcast(ctx context.Context, change SlotChange) {
	if p.channel == nil {
		return
	}
	room := RoomKey(change.ShopOwnerID)
	events := []string{EventSlotsUpdated}
	if change.Action == ActionBooked {
		events = append(events, EventSlotBooked)
	}
	for _, ev := range events {
		n, err := p.channel.Publish(ctx, room, ev, change)
		if err != nil {
			p.log.Warn("realtime publish failed",
				zap.String("room", room), zap.String("event", ev), zap.Error(err))
			continue
		}
		if n == 0 {
			p.log.Debug("no subscribers", zap.String("room", room), zap.String("event", ev))
		}
	}
}

func (p *Publisher) emit(ctx context.Context, change SlotChange) {
	if p.stream == nil {
		return
	}
	topic, eventType := TopicSlotsUpdated, StreamSlotsUpdated
	if change.Action == ActionBooked {
		topic, eventType = TopicSlotBooked, StreamSlotBooked
	}

	payload, err := json.Marshal(change)
	if err != nil {
		p.log.Warn("encode slot change", zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    change.Timestamp,
		Producer:      p.service,
		TraceID:       TraceID(ctx),
		CorrelationID: change.SlotID,
		Payload:       payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("encode envelope", zap.Error(err))
		return
	}
	if !p.stream.Emit(topic, PartitionKey(change.ShopOwnerID), eventType, b) {
		p.log.Warn("event stream full, dropped event",
			zap.String("topic", topic), zap.String("event_id", env.EventID))
	}
}
