package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/ariefcatur/go-salon-booking/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []booking.SlotChange
}

func (n *recordingNotifier) PublishSlotChange(_ context.Context, shopOwnerID string, change booking.SlotChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	change.ShopOwnerID = shopOwnerID
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) all() []booking.SlotChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]booking.SlotChange(nil), n.changes...)
}

var (
	nine  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	alice = booking.UserInfo{Name: "A", Email: "a@x.com", Phone: "1"}
)

func setup(t *testing.T) (*booking.Service, *memstore.Store, *recordingNotifier, booking.TimeSlot) {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	svc := booking.NewService(store, notifier, zap.NewNop())

	_, err := svc.RegisterShop(context.Background(), booking.Shop{
		OwnerID: "X",
		Name:    "Shop X",
		Address: booking.Address{City: "Jakarta"},
	})
	require.NoError(t, err)

	slot, err := svc.CreateSlot(context.Background(), "X", nine, nine.Add(30*time.Minute))
	require.NoError(t, err)
	return svc, store, notifier, slot
}

func TestBookSlotScenario(t *testing.T) {
	svc, store, notifier, slot := setup(t)
	ctx := context.Background()

	res, err := svc.BookSlot(ctx, alice, "X", slot.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, res.Appointment.TimeSlotID)
	assert.Equal(t, "X", res.Appointment.ShopOwnerID)
	assert.Equal(t, booking.AppointmentBooked, res.Appointment.Status)
	assert.Equal(t, booking.ActionBooked, res.Event.Action)
	assert.Equal(t, res.Appointment.ID, res.Event.AppointmentID)

	stored, err := store.FindSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)
	assert.Equal(t, 1, store.AppointmentsForSlot(slot.ID))

	_, err = svc.BookSlot(ctx, alice, "X", slot.ID)
	assert.ErrorIs(t, err, booking.ErrSlotUnavailable)
	assert.Equal(t, 1, store.AppointmentsForSlot(slot.ID))

	changes := notifier.all()
	require.Len(t, changes, 2)
	assert.Equal(t, booking.ActionCreated, changes[0].Action)
	assert.Equal(t, booking.ActionBooked, changes[1].Action)
	assert.Equal(t, "X", changes[1].ShopOwnerID)
}

func TestBookSlotUnknownSlot(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.BookSlot(context.Background(), alice, "X", "does-not-exist")
	assert.ErrorIs(t, err, booking.ErrSlotNotFound)
}

func TestBookSlotWrongShop(t *testing.T) {
	svc, store, _, slot := setup(t)
	_, err := svc.BookSlot(context.Background(), alice, "Y", slot.ID)
	assert.ErrorIs(t, err, booking.ErrSlotNotFound)

	stored, _ := store.FindSlot(context.Background(), slot.ID)
	assert.True(t, stored.Available)
}

func TestBookSlotValidation(t *testing.T) {
	svc, _, notifier, slot := setup(t)
	before := len(notifier.all())

	cases := map[string]struct {
		user  booking.UserInfo
		shop  string
		slot  string
		field string
	}{
		"missing name": {user: booking.UserInfo{Email: "a@x.com", Phone: "1"}, shop: "X", slot: slot.ID, field: "name"},
		"bad email":    {user: booking.UserInfo{Name: "A", Email: "nope", Phone: "1"}, shop: "X", slot: slot.ID, field: "email"},
		"blank phone":  {user: booking.UserInfo{Name: "A", Email: "a@x.com", Phone: "   "}, shop: "X", slot: slot.ID, field: "phone"},
		"missing shop": {user: alice, shop: "", slot: slot.ID, field: "shop_owner_id"},
		"missing slot": {user: alice, shop: "X", slot: " ", field: "time_slot_id"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.BookSlot(context.Background(), tc.user, tc.shop, tc.slot)
			require.ErrorIs(t, err, booking.ErrValidation)
			var verr *booking.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
	assert.Len(t, notifier.all(), before, "rejected requests publish nothing")
}

func TestBookSlotConcurrent(t *testing.T) {
	svc, store, notifier, slot := setup(t)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.BookSlot(context.Background(), alice, "X", slot.ID)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok, unavailable int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, booking.ErrSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, unavailable)
	assert.Equal(t, 1, store.AppointmentsForSlot(slot.ID))

	stored, _ := store.FindSlot(context.Background(), slot.ID)
	assert.False(t, stored.Available)

	booked := 0
	for _, c := range notifier.all() {
		if c.Action == booking.ActionBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked)
}

func TestListAvailableSlots(t *testing.T) {
	svc, _, _, first := setup(t)
	ctx := context.Background()

	late, err := svc.CreateSlot(ctx, "X", nine.Add(2*time.Hour), nine.Add(150*time.Minute))
	require.NoError(t, err)
	early, err := svc.CreateSlot(ctx, "X", nine.Add(-time.Hour), nine.Add(-30*time.Minute))
	require.NoError(t, err)

	_, err = svc.BookSlot(ctx, alice, "X", first.ID)
	require.NoError(t, err)

	slots, err := svc.ListAvailableSlots(ctx, "X")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, early.ID, slots[0].ID)
	assert.Equal(t, late.ID, slots[1].ID)
	for _, s := range slots {
		assert.True(t, s.Available)
	}
}

func TestCreateSlotRules(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateSlot(ctx, "X", nine.Add(time.Hour), nine.Add(time.Hour))
	assert.ErrorIs(t, err, booking.ErrValidation)

	_, err = svc.CreateSlot(ctx, "X", nine.Add(15*time.Minute), nine.Add(45*time.Minute))
	assert.ErrorIs(t, err, booking.ErrSlotOverlap)

	_, err = svc.CreateSlot(ctx, "nobody", nine, nine.Add(time.Hour))
	assert.ErrorIs(t, err, booking.ErrShopNotFound)

	// touching intervals do not overlap
	_, err = svc.CreateSlot(ctx, "X", nine.Add(30*time.Minute), nine.Add(time.Hour))
	assert.NoError(t, err)
}

func TestDeleteSlot(t *testing.T) {
	svc, _, notifier, slot := setup(t)
	ctx := context.Background()

	other, err := svc.CreateSlot(ctx, "X", nine.Add(time.Hour), nine.Add(90*time.Minute))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, alice, "X", slot.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteSlot(ctx, "X", slot.ID), booking.ErrSlotUnavailable)
	assert.ErrorIs(t, svc.DeleteSlot(ctx, "Y", other.ID), booking.ErrSlotNotFound)
	require.NoError(t, svc.DeleteSlot(ctx, "X", other.ID))

	changes := notifier.all()
	assert.Equal(t, booking.ActionDeleted, changes[len(changes)-1].Action)
}

func TestRegisterShop(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.RegisterShop(ctx, booking.Shop{OwnerID: "X", Name: "Again", Address: booking.Address{City: "Bandung"}})
	assert.ErrorIs(t, err, booking.ErrShopExists)

	_, err = svc.RegisterShop(ctx, booking.Shop{OwnerID: "Z", Name: "Z", Address: booking.Address{City: "Bandung"},
		Services: []booking.ServiceItem{{Name: "", PriceCents: -1}}})
	var verr *booking.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "services[0].name")
	assert.Contains(t, verr.Fields, "services[0].price_cents")

	shop, err := svc.RegisterShop(ctx, booking.Shop{OwnerID: "Z", Name: "Zed", Address: booking.Address{City: "Bandung"}})
	require.NoError(t, err)
	assert.NotEmpty(t, shop.ID)
	assert.NotNil(t, shop.Services)
}

func TestAppointmentsLookup(t *testing.T) {
	svc, _, _, slot := setup(t)
	ctx := context.Background()

	res, err := svc.BookSlot(ctx, alice, "X", slot.ID)
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.UserEmail)

	list, err := svc.ListAppointments(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.GetAppointment(ctx, "nope")
	assert.True(t, booking.IsNotFound(err))
}

// slowStore blocks FindSlot until the caller's deadline passes.
type slowStore struct{ *memstore.Store }

func (s slowStore) FindSlot(ctx context.Context, _ string) (booking.TimeSlot, error) {
	<-ctx.Done()
	return booking.TimeSlot{}, ctx.Err()
}

func TestBookSlotTimeoutIsTransient(t *testing.T) {
	svc := booking.NewService(slowStore{memstore.New()}, nil, zap.NewNop(), booking.WithStoreTimeout(20*time.Millisecond))
	_, err := svc.BookSlot(context.Background(), alice, "X", "s1")
	require.Error(t, err)
	assert.True(t, booking.IsRetryable(err))
	assert.NotErrorIs(t, err, booking.ErrSlotUnavailable)
}

// lostAck commits the booking and then loses the reply, as a dropped
// connection after COMMIT would.
type lostAck struct{ *memstore.Store }

func (l lostAck) BookSlot(ctx context.Context, appt booking.Appointment) error {
	if err := l.Store.BookSlot(ctx, appt); err != nil {
		return err
	}
	return booking.Transient(errors.New("connection reset"))
}

func TestBookSlotCommittedBeforeLostReplyStaysBooked(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.CreateSlot(ctx, booking.TimeSlot{ID: "s1", ShopOwnerID: "X", Start: nine, End: nine.Add(time.Hour), Available: true}))

	notifier := &recordingNotifier{}
	svc := booking.NewService(lostAck{store}, notifier, zap.NewNop())
	_, err := svc.BookSlot(ctx, alice, "X", "s1")
	assert.True(t, booking.IsRetryable(err))

	// the committed booking is neither undone nor duplicated
	open, err := svc.ListAvailableSlots(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 1, store.AppointmentsForSlot("s1"))
	assert.Empty(t, notifier.all())

	_, err = svc.BookSlot(ctx, alice, "X", "s1")
	assert.ErrorIs(t, err, booking.ErrSlotUnavailable)
	assert.Equal(t, 1, store.AppointmentsForSlot("s1"))
}

func TestCreateSlotConcurrentSameInterval(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	ten := nine.Add(time.Hour)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSlot(ctx, "X", ten, ten.Add(30*time.Minute))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, booking.ErrSlotOverlap)
	}
	assert.Equal(t, 1, created)

	slots, err := svc.ListAvailableSlots(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, slots, 2, "the setup slot plus one at ten")
}

func TestValidationErrorMessage(t *testing.T) {
	err := &booking.ValidationError{Fields: map[string]string{"phone": "is required", "email": "must be a valid email"}}
	assert.Equal(t, "validation failed: email must be a valid email, phone is required", err.Error())
}
