package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	kafkax "github.com/ariefcatur/go-salon-booking/internal/kafka"
	"github.com/ariefcatur/go-salon-booking/internal/redisx"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Entry is one line of a shop's recent-bookings feed.
type Entry struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	SlotID        string    `json:"slot_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	BookedAt      time.Time `json:"booked_at"`
}

type Feed struct {
	Bookings int64   `json:"bookings"`
	Recent   []Entry `json:"recent"`
}

// DedupNamespace prefixes the consumer's dedup keys: dedup:activity:<event_id>.
const DedupNamespace = "activity"

// Service projects booking events into per-shop Redis structures.
// ServiceName overrides DedupNamespace when set.
type Service struct {
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

func (s *Service) namespace() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	return DedupNamespace
}

// HandleSlotBooked is installed as the consumer handler.
func (s *Service) HandleSlotBooked(ctx context.Context, m kafkago.Message) error {
	var env booking.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Log.Warn("skip undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != booking.StreamSlotBooked {
		return nil
	}

	change, err := kafkax.UnwrapPayload[booking.SlotChange](env.Payload)
	if err != nil {
		s.Log.Warn("skip bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// SETNX claims the event; a redelivery finds the key and stops here
	dkey := fmt.Sprintf(redisx.KeyDedup, s.namespace(), env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	entry, err := json.Marshal(Entry{
		EventID:       env.EventID,
		AppointmentID: change.AppointmentID,
		SlotID:        change.SlotID,
		Start:         change.Start,
		End:           change.End,
		BookedAt:      change.Timestamp,
	})
	if err != nil {
		return err
	}

	feedKey := fmt.Sprintf(redisx.KeyActivityFeed, change.ShopOwnerID)
	_, err = s.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, feedKey, entry)
		p.LTrim(ctx, feedKey, 0, redisx.ActivityFeedSize-1)
		p.Incr(ctx, fmt.Sprintf(redisx.KeyBookingCount, change.ShopOwnerID))
		return nil
	})
	if err != nil {
		// let the redelivery try again
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	s.Log.Debug("activity recorded",
		zap.String("shop_owner_id", change.ShopOwnerID),
		zap.String("event_id", env.EventID),
	)
	return nil
}

// Reader serves the feed to the API.
type Reader struct {
	Redis *redis.Client
}

func (r *Reader) Feed(ctx context.Context, shopOwnerID string, limit int) (Feed, error) {
	if limit <= 0 || limit > redisx.ActivityFeedSize {
		limit = redisx.ActivityFeedSize
	}
	raw, err := r.Redis.LRange(ctx, fmt.Sprintf(redisx.KeyActivityFeed, shopOwnerID), 0, int64(limit-1)).Result()
	if err != nil {
		return Feed{}, err
	}
	count, err := r.Redis.Get(ctx, fmt.Sprintf(redisx.KeyBookingCount, shopOwnerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Feed{}, err
	}

	feed := Feed{Bookings: count, Recent: make([]Entry, 0, len(raw))}
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		feed.Recent = append(feed.Recent, e)
	}
	return feed, nil
}
