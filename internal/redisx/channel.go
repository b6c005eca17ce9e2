package redisx

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Message is what travels through a room.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is the realtime fan-out over Redis Pub/Sub. Each shop room is a
// Redis channel; every API instance's subscribers see every publish.
type Channel struct {
	rdb *redis.Client
}

func NewChannel(rdb *redis.Client) *Channel { return &Channel{rdb: rdb} }

// Publish returns the number of subscribers that got the message. Zero
// subscribers is not an error.
func (c *Channel) Publish(ctx context.Context, room, event string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return 0, err
	}
	return c.rdb.Publish(ctx, room, b).Result()
}

type Subscription struct {
	C  <-chan Message
	ps *redis.PubSub
}

func (s *Subscription) Close() error { return s.ps.Close() }

// Subscribe joins room. Messages stop when ctx ends or Close is called.
func (c *Channel) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	ps := c.rdb.Subscribe(ctx, room)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &Subscription{C: out, ps: ps}, nil
}
