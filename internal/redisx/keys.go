package redisx

import "time"

const (
	// Booking idempotency: idem:booking:{shop_owner_id}:{user_id}:{key} -> appointment_id
	KeyIdemBooking = "idem:booking:%s:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Recent bookings per shop, newest first: list activity:shop:{shop_owner_id}
	KeyActivityFeed = "activity:shop:%s"

	// Booking counter per shop: stats:shop:{shop_owner_id}:bookings
	KeyBookingCount = "stats:shop:%s:bookings"
)

const ActivityFeedSize = 50

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
