package booking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier receives slot changes after they are committed.
// Implementations must not fail the caller.
type Notifier interface {
	PublishSlotChange(ctx context.Context, shopOwnerID string, change SlotChange)
}

type Service struct {
	store    Store
	notifier Notifier
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithStoreTimeout bounds every store call made by one operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, notifier Notifier, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		log:      log,
		timeout:  3 * time.Second,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BookSlot reserves timeSlotID for user. The availability flip and the
// appointment insert commit together in the store, so of N concurrent
// callers exactly one wins and the rest get ErrSlotUnavailable. A
// transient error leaves the outcome to the store: either both writes
// happened or neither did.
func (s *Service) BookSlot(ctx context.Context, user UserInfo, shopOwnerID, timeSlotID string) (BookingResult, error) {
	user = normalizeUser(user)
	if err := validateStruct(user); err != nil {
		return BookingResult{}, err
	}
	shopOwnerID = strings.TrimSpace(shopOwnerID)
	timeSlotID = strings.TrimSpace(timeSlotID)
	if shopOwnerID == "" {
		return BookingResult{}, invalid("shop_owner_id", "is required")
	}
	if timeSlotID == "" {
		return BookingResult{}, invalid("time_slot_id", "is required")
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slot, err := s.store.FindSlot(sctx, timeSlotID)
	if err != nil {
		return BookingResult{}, classify(err)
	}
	if slot.ShopOwnerID != shopOwnerID {
		return BookingResult{}, ErrSlotNotFound
	}
	if !slot.Available {
		return BookingResult{}, ErrSlotUnavailable
	}

	now := s.now().UTC()
	appt := Appointment{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		UserName:    user.Name,
		UserEmail:   user.Email,
		UserPhone:   user.Phone,
		ShopOwnerID: shopOwnerID,
		TimeSlotID:  slot.ID,
		SlotStart:   slot.Start,
		SlotEnd:     slot.End,
		Status:      AppointmentBooked,
		CreatedAt:   now,
	}
	if err := s.store.BookSlot(sctx, appt); err != nil {
		return BookingResult{}, classify(err)
	}

	change := SlotChange{
		ShopOwnerID:   shopOwnerID,
		Timestamp:     now,
		Action:        ActionBooked,
		SlotID:        slot.ID,
		AppointmentID: appt.ID,
		Start:         slot.Start,
		End:           slot.End,
		Available:     false,
	}
	s.log.Info("slot booked",
		zap.String("shop_owner_id", shopOwnerID),
		zap.String("slot_id", slot.ID),
		zap.String("appointment_id", appt.ID),
	)
	s.notify(ctx, change)
	return BookingResult{Appointment: appt, Event: change}, nil
}

func (s *Service) ListAvailableSlots(ctx context.Context, shopOwnerID string) ([]TimeSlot, error) {
	shopOwnerID = strings.TrimSpace(shopOwnerID)
	if shopOwnerID == "" {
		return nil, invalid("shop_owner_id", "is required")
	}
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slots, err := s.store.ListSlots(sctx, shopOwnerID, true)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]TimeSlot, 0, len(slots))
	for _, sl := range slots {
		if sl.Available {
			out = append(out, sl)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *Service) CreateSlot(ctx context.Context, shopOwnerID string, start, end time.Time) (TimeSlot, error) {
	shopOwnerID = strings.TrimSpace(shopOwnerID)
	if shopOwnerID == "" {
		return TimeSlot{}, invalid("shop_owner_id", "is required")
	}
	if start.IsZero() {
		return TimeSlot{}, invalid("start", "is required")
	}
	if !start.Before(end) {
		return TimeSlot{}, invalid("end", "must be after start")
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.GetShop(sctx, shopOwnerID); err != nil {
		return TimeSlot{}, classify(err)
	}

	slot := TimeSlot{
		ID:          uuid.NewString(),
		ShopOwnerID: shopOwnerID,
		Start:       start.UTC(),
		End:         end.UTC(),
		Available:   true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateSlot(sctx, slot); err != nil {
		return TimeSlot{}, classify(err)
	}
	s.notify(ctx, SlotChange{
		ShopOwnerID: shopOwnerID,
		Timestamp:   slot.CreatedAt,
		Action:      ActionCreated,
		SlotID:      slot.ID,
		Start:       slot.Start,
		End:         slot.End,
		Available:   true,
	})
	return slot, nil
}

func (s *Service) DeleteSlot(ctx context.Context, shopOwnerID, slotID string) error {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slot, err := s.store.FindSlot(sctx, slotID)
	if err != nil {
		return classify(err)
	}
	if slot.ShopOwnerID != shopOwnerID {
		return ErrSlotNotFound
	}
	if err := s.store.DeleteSlot(sctx, shopOwnerID, slotID); err != nil {
		return classify(err)
	}
	s.notify(ctx, SlotChange{
		ShopOwnerID: shopOwnerID,
		Timestamp:   s.now().UTC(),
		Action:      ActionDeleted,
		SlotID:      slot.ID,
		Start:       slot.Start,
		End:         slot.End,
		Available:   false,
	})
	return nil
}

func (s *Service) RegisterShop(ctx context.Context, shop Shop) (Shop, error) {
	shop.OwnerID = strings.TrimSpace(shop.OwnerID)
	shop.Name = strings.TrimSpace(shop.Name)
	if err := validateStruct(shop); err != nil {
		return Shop{}, err
	}
	shop.ID = uuid.NewString()
	shop.CreatedAt = s.now().UTC()
	if shop.Services == nil {
		shop.Services = []ServiceItem{}
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.CreateShop(sctx, shop); err != nil {
		return Shop{}, classify(err)
	}
	return shop, nil
}

func (s *Service) GetShop(ctx context.Context, ownerID string) (Shop, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	shop, err := s.store.GetShop(sctx, ownerID)
	return shop, classify(err)
}

func (s *Service) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	appt, err := s.store.GetAppointment(sctx, id)
	return appt, classify(err)
}

func (s *Service) ListAppointments(ctx context.Context, shopOwnerID string) ([]Appointment, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	appts, err := s.store.ListAppointments(sctx, shopOwnerID)
	if err != nil {
		return nil, classify(err)
	}
	return appts, nil
}

func (s *Service) notify(ctx context.Context, change SlotChange) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishSlotChange(ctx, change.ShopOwnerID, change)
}

func sortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].ID < slots[j].ID
	})
}

// IsNotFound reports any of the "unknown reference" errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrAppointmentNotFound)
}
