package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeInvalidText        = "22P02"
)

type Store struct{ DB *pgxpool.Pool }

// execer is satisfied by both the pool and a pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ booking.Store = (*Store)(nil)

func (s *Store) CreateShop(ctx context.Context, shop booking.Shop) error {
	services, err := json.Marshal(shop.Services)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO shops(id, owner_id, name, street, city, state, zip, services, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		shop.ID, shop.OwnerID, shop.Name,
		shop.Address.Street, shop.Address.City, shop.Address.State, shop.Address.Zip,
		services, shop.CreatedAt,
	)
	if isCode(err, codeUniqueViolation) {
		return booking.ErrShopExists
	}
	return wrap(err)
}

func (s *Store) GetShop(ctx context.Context, ownerID string) (booking.Shop, error) {
	var sh booking.Shop
	var services []byte
	err := s.DB.QueryRow(ctx, `
		SELECT id::text, owner_id, name, street, city, state, zip, services, created_at
		FROM shops WHERE owner_id=$1`, ownerID).Scan(
		&sh.ID, &sh.OwnerID, &sh.Name,
		&sh.Address.Street, &sh.Address.City, &sh.Address.State, &sh.Address.Zip,
		&services, &sh.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Shop{}, booking.ErrShopNotFound
	}
	if err != nil {
		return booking.Shop{}, wrap(err)
	}
	if err := json.Unmarshal(services, &sh.Services); err != nil {
		return booking.Shop{}, err
	}
	return sh, nil
}

func (s *Store) FindSlot(ctx context.Context, id string) (booking.TimeSlot, error) {
	var sl booking.TimeSlot
	err := s.DB.QueryRow(ctx, `
		SELECT id::text, shop_owner_id, start_time, end_time, available, created_at
		FROM time_slots WHERE id=$1`, id).Scan(
		&sl.ID, &sl.ShopOwnerID, &sl.Start, &sl.End, &sl.Available, &sl.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) || isCode(err, codeInvalidText) {
		return booking.TimeSlot{}, booking.ErrSlotNotFound
	}
	if err != nil {
		return booking.TimeSlot{}, wrap(err)
	}
	return sl, nil
}

func (s *Store) ListSlots(ctx context.Context, shopOwnerID string, onlyAvailable bool) ([]booking.TimeSlot, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, shop_owner_id, start_time, end_time, available, created_at
		FROM time_slots
		WHERE shop_owner_id=$1 AND ($2 = FALSE OR available)
		ORDER BY start_time ASC, id ASC`, shopOwnerID, onlyAvailable)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	out := []booking.TimeSlot{}
	for rows.Next() {
		var sl booking.TimeSlot
		if err := rows.Scan(&sl.ID, &sl.ShopOwnerID, &sl.Start, &sl.End, &sl.Available, &sl.CreatedAt); err != nil {
			return nil, wrap(err)
		}
		out = append(out, sl)
	}
	return out, wrap(rows.Err())
}

func (s *Store) CreateSlot(ctx context.Context, slot booking.TimeSlot) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO time_slots(id, shop_owner_id, start_time, end_time, available, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		slot.ID, slot.ShopOwnerID, slot.Start, slot.End, slot.Available, slot.CreatedAt,
	)
	if isCode(err, codeExclusionViolation) {
		return booking.ErrSlotOverlap
	}
	return wrap(err)
}

func (s *Store) DeleteSlot(ctx context.Context, shopOwnerID, id string) error {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM time_slots WHERE id=$1 AND shop_owner_id=$2 AND available`, id, shopOwnerID)
	if isCode(err, codeInvalidText) {
		return booking.ErrSlotNotFound
	}
	if err != nil {
		return wrap(err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// tell "gone" apart from "booked"
	sl, err := s.FindSlot(ctx, id)
	if err != nil {
		return err
	}
	if sl.ShopOwnerID != shopOwnerID {
		return booking.ErrSlotNotFound
	}
	return booking.ErrSlotUnavailable
}

// SetAvailability is the compare-and-swap on the availability flag: the
// WHERE clause carries the expected value, so only one of any number of
// concurrent callers can match the row.
func (s *Store) SetAvailability(ctx context.Context, id string, expected, next bool) (bool, error) {
	return setAvailability(ctx, s.DB, id, expected, next)
}

func setAvailability(ctx context.Context, q execer, id string, expected, next bool) (bool, error) {
	ct, err := q.Exec(ctx, `
		UPDATE time_slots SET available=$3, updated_at=now()
		WHERE id=$1 AND available=$2`, id, expected, next)
	if isCode(err, codeInvalidText) {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) InsertAppointment(ctx context.Context, a booking.Appointment) error {
	return insertAppointment(ctx, s.DB, a)
}

func insertAppointment(ctx context.Context, q execer, a booking.Appointment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO appointments(id, user_id, user_name, user_email, user_phone, shop_owner_id,
			time_slot_id, slot_start, slot_end, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UserID, a.UserName, a.UserEmail, a.UserPhone, a.ShopOwnerID,
		a.TimeSlotID, a.SlotStart, a.SlotEnd, a.Status, a.CreatedAt,
	)
	if isCode(err, codeUniqueViolation) {
		return booking.ErrSlotUnavailable
	}
	return wrap(err)
}

// BookSlot flips the slot and inserts the appointment in one transaction.
// The conditional UPDATE row-locks the slot, so concurrent callers queue
// behind the winner and then match zero rows.
func (s *Store) BookSlot(ctx context.Context, a booking.Appointment) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback(ctx)

	ok, err := setAvailability(ctx, tx, a.TimeSlotID, true, false)
	if err != nil {
		return err
	}
	if !ok {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM time_slots WHERE id=$1)`, a.TimeSlotID).Scan(&exists)
		if isCode(err, codeInvalidText) {
			return booking.ErrSlotNotFound
		}
		if err != nil {
			return wrap(err)
		}
		if !exists {
			return booking.ErrSlotNotFound
		}
		return booking.ErrSlotUnavailable
	}
	if err := insertAppointment(ctx, tx, a); err != nil {
		return err
	}
	return wrap(tx.Commit(ctx))
}

const appointmentColumns = `id::text, user_id, user_name, user_email, user_phone, shop_owner_id,
	time_slot_id::text, slot_start, slot_end, status, created_at`

func scanAppointment(row pgx.Row) (booking.Appointment, error) {
	var a booking.Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.UserEmail, &a.UserPhone, &a.ShopOwnerID,
		&a.TimeSlotID, &a.SlotStart, &a.SlotEnd, &a.Status, &a.CreatedAt)
	return a, err
}

func (s *Store) GetAppointment(ctx context.Context, id string) (booking.Appointment, error) {
	a, err := scanAppointment(s.DB.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) || isCode(err, codeInvalidText) {
		return booking.Appointment{}, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return booking.Appointment{}, wrap(err)
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, shopOwnerID string) ([]booking.Appointment, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments WHERE shop_owner_id=$1
		ORDER BY created_at DESC, id ASC`, shopOwnerID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	out := []booking.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out = append(out, a)
	}
	return out, wrap(rows.Err())
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// wrap marks connection-level failures as transient.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return booking.Transient(err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P0x: server shutting down
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" || pgErr.Code == "57P03"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
