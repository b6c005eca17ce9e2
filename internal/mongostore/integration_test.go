package mongostore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when MONGO_TEST_URI points at a replica set, e.g.
// mongodb://localhost:27017/?replicaSet=rs0
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)

	dbName := "booking_test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(dctx)
		_ = client.Disconnect(dctx)
	})

	st := New(client, dbName)
	require.NoError(t, st.EnsureIndexes(ctx))
	return st
}

var nine = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedShop(t *testing.T, st *Store, owner string) {
	t.Helper()
	require.NoError(t, st.CreateShop(context.Background(), booking.Shop{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      "Shop " + owner,
		CreatedAt: time.Now().UTC(),
	}))
}

func newSlot(owner string, start time.Time) booking.TimeSlot {
	return booking.TimeSlot{
		ID:          uuid.NewString(),
		ShopOwnerID: owner,
		Start:       start,
		End:         start.Add(30 * time.Minute),
		Available:   true,
		CreatedAt:   time.Now().UTC(),
	}
}

func newAppointment(slot booking.TimeSlot) booking.Appointment {
	return booking.Appointment{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		UserName:    "Ann",
		UserEmail:   "ann@example.com",
		UserPhone:   "555",
		ShopOwnerID: slot.ShopOwnerID,
		TimeSlotID:  slot.ID,
		SlotStart:   slot.Start,
		SlotEnd:     slot.End,
		Status:      booking.AppointmentBooked,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestBookSlotSingleWinnerAgainstMongo(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedShop(t, st, "X")
	slot := newSlot("X", nine)
	require.NoError(t, st.CreateSlot(ctx, slot))

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.BookSlot(ctx, newAppointment(slot))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, booking.ErrSlotUnavailable)
	}
	assert.Equal(t, 1, won)

	got, err := st.FindSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)

	appts, err := st.ListAppointments(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, appts, 1)

	assert.ErrorIs(t, st.DeleteSlot(ctx, "X", slot.ID), booking.ErrSlotUnavailable)
	assert.ErrorIs(t, st.BookSlot(ctx, newAppointment(newSlot("X", nine))), booking.ErrSlotNotFound)
}

func TestCreateSlotOverlapAgainstMongo(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedShop(t, st, "X")
	seedShop(t, st, "Y")

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.CreateSlot(ctx, newSlot("X", nine))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errors.Is(err, booking.ErrSlotOverlap), "got %v", err)
	}
	assert.Equal(t, 1, created)

	assert.NoError(t, st.CreateSlot(ctx, newSlot("X", nine.Add(30*time.Minute))))
	assert.ErrorIs(t, st.CreateSlot(ctx, newSlot("X", nine.Add(15*time.Minute))), booking.ErrSlotOverlap)
	assert.NoError(t, st.CreateSlot(ctx, newSlot("Y", nine)))
	assert.ErrorIs(t, st.CreateSlot(ctx, newSlot("nobody", nine)), booking.ErrShopNotFound)

	slots, err := st.ListSlots(ctx, "X", false)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}
