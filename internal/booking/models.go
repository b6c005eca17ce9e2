package booking

import "time"

const AppointmentBooked = "BOOKED"

type Address struct {
	Street string `json:"street" bson:"street"`
	City   string `json:"city" bson:"city" validate:"required"`
	State  string `json:"state" bson:"state"`
	Zip    string `json:"zip" bson:"zip"`
}

// ServiceItem is one entry of a shop's price list.
type ServiceItem struct {
	Name       string `json:"name" bson:"name" validate:"required"`
	PriceCents int    `json:"price_cents" bson:"price_cents" validate:"gte=0"`
}

// Shop is keyed by its owner: one shop per owner.
type Shop struct {
	ID        string        `json:"id" bson:"_id"`
	OwnerID   string        `json:"owner_id" bson:"owner_id" validate:"required"`
	Name      string        `json:"name" bson:"name" validate:"required"`
	Address   Address       `json:"address" bson:"address"`
	Services  []ServiceItem `json:"services" bson:"services" validate:"dive"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

type TimeSlot struct {
	ID          string    `json:"id" bson:"_id"`
	ShopOwnerID string    `json:"shop_owner_id" bson:"shop_owner_id"`
	Start       time.Time `json:"start" bson:"start"`
	End         time.Time `json:"end" bson:"end"`
	Available   bool      `json:"available" bson:"available"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

type Appointment struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	UserName    string    `json:"user_name" bson:"user_name"`
	UserEmail   string    `json:"user_email" bson:"user_email"`
	UserPhone   string    `json:"user_phone" bson:"user_phone"`
	ShopOwnerID string    `json:"shop_owner_id" bson:"shop_owner_id"`
	TimeSlotID  string    `json:"time_slot_id" bson:"time_slot_id"`
	SlotStart   time.Time `json:"slot_start" bson:"slot_start"`
	SlotEnd     time.Time `json:"slot_end" bson:"slot_end"`
	Status      string    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// UserInfo identifies the customer a booking is made for.
type UserInfo struct {
	ID    string `json:"-"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

// BookingResult is what BookSlot hands back to the caller.
type BookingResult struct {
	Appointment Appointment `json:"appointment"`
	Event       SlotChange  `json:"event"`
}
