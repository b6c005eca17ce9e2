package booking

import "context"

// SlotStore owns TimeSlot records.
type SlotStore interface {
	// FindSlot returns ErrSlotNotFound for unknown ids.
	FindSlot(ctx context.Context, id string) (TimeSlot, error)
	// ListSlots is ordered by start ascending, then id.
	ListSlots(ctx context.Context, shopOwnerID string, onlyAvailable bool) ([]TimeSlot, error)
	// CreateSlot yields ErrSlotOverlap when the interval intersects another
	// slot of the same shop. The check and the insert are one atomic step.
	CreateSlot(ctx context.Context, slot TimeSlot) error
	// DeleteSlot removes an available slot. A booked slot yields
	// ErrSlotUnavailable, an unknown one ErrSlotNotFound.
	DeleteSlot(ctx context.Context, shopOwnerID, id string) error
	// SetAvailability sets available=next only if it currently equals
	// expected, as one atomic write. It reports whether the write happened.
	SetAvailability(ctx context.Context, id string, expected, next bool) (bool, error)
}

type AppointmentStore interface {
	// InsertAppointment yields ErrSlotUnavailable when the slot is
	// already referenced by another appointment.
	InsertAppointment(ctx context.Context, appt Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// ListAppointments is ordered newest first.
	ListAppointments(ctx context.Context, shopOwnerID string) ([]Appointment, error)
}

// Booker commits a booking: the slot flips from available to booked and
// the appointment is stored, or neither happens. A slot that is no longer
// available yields ErrSlotUnavailable, an unknown one ErrSlotNotFound.
type Booker interface {
	BookSlot(ctx context.Context, appt Appointment) error
}

type ShopStore interface {
	// CreateShop yields ErrShopExists when the owner already has a shop.
	CreateShop(ctx context.Context, shop Shop) error
	GetShop(ctx context.Context, ownerID string) (Shop, error)
}

type Store interface {
	SlotStore
	AppointmentStore
	ShopStore
	Booker
}
