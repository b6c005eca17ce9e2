// Package mongostore keeps shops, slots and appointments in MongoDB.
// Booking and slot creation run in session transactions, so the server
// must be a replica set (a single-node one is enough).
package mongostore

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionShops        = "shops"
	CollectionTimeSlots    = "timeslots"
	CollectionAppointments = "appointments"
)

type Store struct {
	client       *mongo.Client
	shops        *mongo.Collection
	slots        *mongo.Collection
	appointments *mongo.Collection
}

var _ booking.Store = (*Store)(nil)

func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:       client,
		shops:        db.Collection(CollectionShops),
		slots:        db.Collection(CollectionTimeSlots),
		appointments: db.Collection(CollectionAppointments),
	}
}

// Connect dials and pings the server.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the unique indexes the booking invariants rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.shops.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.slots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "shop_owner_id", Value: 1}, {Key: "start", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := s.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "time_slot_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "shop_owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (s *Store) CreateShop(ctx context.Context, shop booking.Shop) error {
	_, err := s.shops.InsertOne(ctx, shop)
	if mongo.IsDuplicateKeyError(err) {
		return booking.ErrShopExists
	}
	return wrap(err)
}

func (s *Store) GetShop(ctx context.Context, ownerID string) (booking.Shop, error) {
	var shop booking.Shop
	err := s.shops.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&shop)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return booking.Shop{}, booking.ErrShopNotFound
	}
	return shop, wrap(err)
}

func (s *Store) FindSlot(ctx context.Context, id string) (booking.TimeSlot, error) {
	var slot booking.TimeSlot
	err := s.slots.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return booking.TimeSlot{}, booking.ErrSlotNotFound
	}
	return slot, wrap(err)
}

func (s *Store) ListSlots(ctx context.Context, shopOwnerID string, onlyAvailable bool) ([]booking.TimeSlot, error) {
	filter := bson.M{"shop_owner_id": shopOwnerID}
	if onlyAvailable {
		filter["available"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.slots.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(err)
	}
	out := []booking.TimeSlot{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// CreateSlot bumps the shop's slot_seq first, so concurrent creates for one
// shop write-conflict and the overlap count runs against committed slots.
func (s *Store) CreateSlot(ctx context.Context, slot booking.TimeSlot) error {
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.shops.UpdateOne(sc,
			bson.M{"owner_id": slot.ShopOwnerID},
			bson.M{"$inc": bson.M{"slot_seq": 1}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return booking.ErrShopNotFound
		}
		n, err := s.slots.CountDocuments(sc, bson.M{
			"shop_owner_id": slot.ShopOwnerID,
			"start":         bson.M{"$lt": slot.End},
			"end":           bson.M{"$gt": slot.Start},
		})
		if err != nil {
			return err
		}
		if n > 0 {
			return booking.ErrSlotOverlap
		}
		_, err = s.slots.InsertOne(sc, slot)
		if mongo.IsDuplicateKeyError(err) {
			return booking.ErrSlotOverlap
		}
		return err
	})
}

func (s *Store) DeleteSlot(ctx context.Context, shopOwnerID, id string) error {
	res, err := s.slots.DeleteOne(ctx, bson.M{"_id": id, "shop_owner_id": shopOwnerID, "available": true})
	if err != nil {
		return wrap(err)
	}
	if res.DeletedCount == 1 {
		return nil
	}
	slot, err := s.FindSlot(ctx, id)
	if err != nil {
		return err
	}
	if slot.ShopOwnerID != shopOwnerID {
		return booking.ErrSlotNotFound
	}
	return booking.ErrSlotUnavailable
}

// SetAvailability matches on the expected flag inside the filter, so the
// check and the write are one document operation.
func (s *Store) SetAvailability(ctx context.Context, id string, expected, next bool) (bool, error) {
	res, err := s.slots.UpdateOne(ctx,
		bson.M{"_id": id, "available": expected},
		bson.M{"$set": bson.M{"available": next}},
	)
	if err != nil {
		return false, wrap(err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) InsertAppointment(ctx context.Context, appt booking.Appointment) error {
	_, err := s.appointments.InsertOne(ctx, appt)
	if mongo.IsDuplicateKeyError(err) {
		return booking.ErrSlotUnavailable
	}
	return wrap(err)
}

// BookSlot flips the slot and inserts the appointment in one transaction.
// A concurrent booker hits a write conflict on the slot document, and the
// driver retries it until it sees available=false.
func (s *Store) BookSlot(ctx context.Context, appt booking.Appointment) error {
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.slots.UpdateOne(sc,
			bson.M{"_id": appt.TimeSlotID, "available": true},
			bson.M{"$set": bson.M{"available": false}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			n, err := s.slots.CountDocuments(sc, bson.M{"_id": appt.TimeSlotID})
			if err != nil {
				return err
			}
			if n == 0 {
				return booking.ErrSlotNotFound
			}
			return booking.ErrSlotUnavailable
		}
		_, err = s.appointments.InsertOne(sc, appt)
		if mongo.IsDuplicateKeyError(err) {
			return booking.ErrSlotUnavailable
		}
		return err
	})
}

func (s *Store) GetAppointment(ctx context.Context, id string) (booking.Appointment, error) {
	var appt booking.Appointment
	err := s.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&appt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return booking.Appointment{}, booking.ErrAppointmentNotFound
	}
	return appt, wrap(err)
}

func (s *Store) ListAppointments(ctx context.Context, shopOwnerID string) ([]booking.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.appointments.Find(ctx, bson.M{"shop_owner_id": shopOwnerID}, opts)
	if err != nil {
		return nil, wrap(err)
	}
	out := []booking.Appointment{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// inTransaction runs fn in a session transaction. Driver errors from fn are
// returned unwrapped so WithTransaction can read their retry labels.
func (s *Store) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return wrap(err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return wrap(err)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return booking.Transient(err)
	}
	return err
}
