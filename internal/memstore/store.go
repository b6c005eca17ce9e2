// Package memstore is an in-process booking.Store for development runs
// and tests. A single mutex makes every method one atomic step.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
)

type Store struct {
	mu           sync.Mutex
	shops        map[string]booking.Shop // by owner id
	slots        map[string]booking.TimeSlot
	appointments map[string]booking.Appointment
	bySlot       map[string]string // slot id -> appointment id
}

func New() *Store {
	return &Store{
		shops:        map[string]booking.Shop{},
		slots:        map[string]booking.TimeSlot{},
		appointments: map[string]booking.Appointment{},
		bySlot:       map[string]string{},
	}
}

var _ booking.Store = (*Store)(nil)

func (s *Store) CreateShop(ctx context.Context, shop booking.Shop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shops[shop.OwnerID]; ok {
		return booking.ErrShopExists
	}
	s.shops[shop.OwnerID] = shop
	return nil
}

func (s *Store) GetShop(ctx context.Context, ownerID string) (booking.Shop, error) {
	if err := ctx.Err(); err != nil {
		return booking.Shop{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	shop, ok := s.shops[ownerID]
	if !ok {
		return booking.Shop{}, booking.ErrShopNotFound
	}
	return shop, nil
}

func (s *Store) FindSlot(ctx context.Context, id string) (booking.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return booking.TimeSlot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return booking.TimeSlot{}, booking.ErrSlotNotFound
	}
	return slot, nil
}

func (s *Store) ListSlots(ctx context.Context, shopOwnerID string, onlyAvailable bool) ([]booking.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]booking.TimeSlot, 0)
	for _, slot := range s.slots {
		if slot.ShopOwnerID != shopOwnerID {
			continue
		}
		if onlyAvailable && !slot.Available {
			continue
		}
		out = append(out, slot)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot booking.TimeSlot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.slots {
		if other.ShopOwnerID == slot.ShopOwnerID && other.Overlaps(slot.Start, slot.End) {
			return booking.ErrSlotOverlap
		}
	}
	s.slots[slot.ID] = slot
	return nil
}

func (s *Store) DeleteSlot(ctx context.Context, shopOwnerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok || slot.ShopOwnerID != shopOwnerID {
		return booking.ErrSlotNotFound
	}
	if !slot.Available {
		return booking.ErrSlotUnavailable
	}
	delete(s.slots, id)
	return nil
}

func (s *Store) SetAvailability(ctx context.Context, id string, expected, next bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setAvailability(id, expected, next), nil
}

func (s *Store) setAvailability(id string, expected, next bool) bool {
	slot, ok := s.slots[id]
	if !ok || slot.Available != expected {
		return false
	}
	slot.Available = next
	s.slots[id] = slot
	return true
}

func (s *Store) InsertAppointment(ctx context.Context, appt booking.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAppointment(appt)
}

func (s *Store) insertAppointment(appt booking.Appointment) error {
	if _, taken := s.bySlot[appt.TimeSlotID]; taken {
		return booking.ErrSlotUnavailable
	}
	s.appointments[appt.ID] = appt
	s.bySlot[appt.TimeSlotID] = appt.ID
	return nil
}

// BookSlot flips the slot and stores the appointment under one lock hold.
func (s *Store) BookSlot(ctx context.Context, appt booking.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[appt.TimeSlotID]; !ok {
		return booking.ErrSlotNotFound
	}
	if _, taken := s.bySlot[appt.TimeSlotID]; taken {
		return booking.ErrSlotUnavailable
	}
	if !s.setAvailability(appt.TimeSlotID, true, false) {
		return booking.ErrSlotUnavailable
	}
	return s.insertAppointment(appt)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (booking.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return booking.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return booking.Appointment{}, booking.ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, shopOwnerID string) ([]booking.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]booking.Appointment, 0)
	for _, a := range s.appointments {
		if a.ShopOwnerID == shopOwnerID {
			out = append(out, a)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppointmentsForSlot counts appointments referencing slotID.
func (s *Store) AppointmentsForSlot(slotID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appointments {
		if a.TimeSlotID == slotID {
			n++
		}
	}
	return n
}
