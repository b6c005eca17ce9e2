package booking

const (
	TopicSlotBooked   = "booking.slot.booked"
	TopicSlotsUpdated = "booking.slots.updated"
)

const roomPrefix = "shop:"

// Partition key = shop owner id, so every event of one shop keeps its order.
func PartitionKey(shopOwnerID string) []byte { return []byte(shopOwnerID) }

// RoomKey names the realtime room a shop's clients subscribe to.
func RoomKey(shopOwnerID string) string { return roomPrefix + shopOwnerID }
