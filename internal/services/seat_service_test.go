package services

import (
	"context"
	"testing"
	"time"

	"tickethub/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatHoldService_HoldSeats(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("hold:ev1:s1", "sess-a", 5*time.Minute).SetVal(true)
	mock.ExpectSetNX("hold:ev1:s2", "sess-a", 5*time.Minute).SetVal(true)

	err := svc.HoldSeats(ctx, "ev1", []string{"s1", "s2"}, "sess-a")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatHoldService_HoldSeats_ConflictRollsBack(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("hold:ev1:s1", "sess-a", 5*time.Minute).SetVal(true)
	mock.ExpectSetNX("hold:ev1:s2", "sess-a", 5*time.Minute).SetVal(false)
	mock.ExpectGet("hold:ev1:s2").SetVal("sess-b")
	// s1 is given back after s2 is lost
	mock.ExpectDel("hold:ev1:s1").SetVal(1)

	err := svc.HoldSeats(ctx, "ev1", []string{"s1", "s2"}, "sess-a")
	require.ErrorIs(t, err, status.ErrSeatUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatHoldService_HoldSeats_ReholdRefreshesTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("hold:ev1:s1", "sess-a", 5*time.Minute).SetVal(false)
	mock.ExpectGet("hold:ev1:s1").SetVal("sess-a")
	mock.ExpectExpire("hold:ev1:s1", 5*time.Minute).SetVal(true)

	err := svc.HoldSeats(ctx, "ev1", []string{"s1"}, "sess-a")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatHoldService_VerifyHolds(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectGet("hold:ev1:s1").SetVal("sess-a")
	require.NoError(t, svc.VerifyHolds(ctx, "ev1", []string{"s1"}, "sess-a"))

	mock.ExpectGet("hold:ev1:s1").RedisNil()
	err := svc.VerifyHolds(ctx, "ev1", []string{"s1"}, "sess-a")
	assert.ErrorIs(t, err, status.ErrSeatUnavailable)

	mock.ExpectGet("hold:ev1:s1").SetVal("sess-b")
	err = svc.VerifyHolds(ctx, "ev1", []string{"s1"}, "sess-a")
	assert.ErrorIs(t, err, status.ErrSeatUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatHoldService_ReleaseHolds_OnlyOwn(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectGet("hold:ev1:s1").SetVal("sess-a")
	mock.ExpectDel("hold:ev1:s1").SetVal(1)
	// s2 belongs to another session and must survive
	mock.ExpectGet("hold:ev1:s2").SetVal("sess-b")

	svc.ReleaseHolds(ctx, "ev1", []string{"s1", "s2"}, "sess-a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatHoldService_HoldAvailability(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := NewSeatHoldService(db, 5*time.Minute)
	ctx := context.Background()

	mock.ExpectGet("hold:ev1:s1").RedisNil()
	mock.ExpectGet("hold:ev1:s2").SetVal("sess-a")
	mock.ExpectGet("hold:ev1:s3").SetVal("sess-b")

	availability, err := svc.HoldAvailability(ctx, "ev1", []string{"s1", "s2", "s3"}, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"s1": "available",
		"s2": "held_by_you",
		"s3": "held",
	}, availability)
	assert.NoError(t, mock.ExpectationsWereMet())
}
