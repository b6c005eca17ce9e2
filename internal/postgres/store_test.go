package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapClassifiesConnectionErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := wrap(tc.err)
			if tc.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tc.transient, booking.IsRetryable(got))
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})
	assert.True(t, isCode(err, codeUniqueViolation))
	assert.False(t, isCode(err, codeInvalidText))
	assert.False(t, isCode(errors.New("x"), codeUniqueViolation))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS time_slots")
	assert.Contains(t, schema, "time_slot_id   UUID NOT NULL UNIQUE")
}

func TestSchemaRejectsOverlappingSlots(t *testing.T) {
	assert.Contains(t, schema, "CREATE EXTENSION IF NOT EXISTS btree_gist")
	assert.Contains(t, schema, "EXCLUDE USING gist (shop_owner_id WITH =, tstzrange(start_time, end_time) WITH &&)")
}
