package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tickethub/internal/status"

	"github.com/redis/go-redis/v9"
)

// SeatHoldService keeps short-lived checkout holds in Redis so a seat a
// buyer is looking at cannot be grabbed mid-checkout. Holds are advisory:
// the durable seat state lives in the database and is only committed by
// ReservationService inside a sale transaction.
type SeatHoldService struct {
	Redis   *redis.Client
	holdTTL time.Duration
}

func NewSeatHoldService(redisClient *redis.Client, holdTTL time.Duration) *SeatHoldService {
	return &SeatHoldService{Redis: redisClient, holdTTL: holdTTL}
}

func holdKey(eventID, seatID string) string {
	return fmt.Sprintf("hold:%s:%s", eventID, seatID)
}

// HoldSeats acquires holds on all requested seats for one session, or on
// none of them. Each hold is a SETNX with the configured TTL; losing any
// seat rolls back the ones already taken in this call.
func (s *SeatHoldService) HoldSeats(ctx context.Context, eventID string, seatIDs []string, sessionID string) error {
	taken := make([]string, 0, len(seatIDs))

	for _, seatID := range seatIDs {
		ok, err := s.Redis.SetNX(ctx, holdKey(eventID, seatID), sessionID, s.holdTTL).Result()
		if err != nil {
			s.releaseKeys(ctx, eventID, taken)
			return fmt.Errorf("hold seat %s: %w", seatID, err)
		}
		if !ok {
			// Re-holding your own seat refreshes the TTL instead of failing.
			holder, getErr := s.Redis.Get(ctx, holdKey(eventID, seatID)).Result()
			if getErr == nil && holder == sessionID {
				s.Redis.Expire(ctx, holdKey(eventID, seatID), s.holdTTL)
				continue
			}
			s.releaseKeys(ctx, eventID, taken)
			return fmt.Errorf("%w: seat %s", status.ErrSeatUnavailable, seatID)
		}
		taken = append(taken, seatID)
	}

	return nil
}

// ReleaseHolds drops a session's holds on the given seats. Holds owned by
// other sessions are left untouched.
func (s *SeatHoldService) ReleaseHolds(ctx context.Context, eventID string, seatIDs []string, sessionID string) {
	for _, seatID := range seatIDs {
		holder, err := s.Redis.Get(ctx, holdKey(eventID, seatID)).Result()
		if err != nil {
			continue
		}
		if holder != sessionID {
			continue
		}
		if err := s.Redis.Del(ctx, holdKey(eventID, seatID)).Err(); err != nil {
			slog.Error("failed to release seat hold", "event_id", eventID, "seat_id", seatID, "error", err)
		}
	}
}

// VerifyHolds checks that every seat is currently held by the given
// session. Called just before the purchase transaction so an expired hold
// surfaces as a seat conflict instead of a silent overwrite.
func (s *SeatHoldService) VerifyHolds(ctx context.Context, eventID string, seatIDs []string, sessionID string) error {
	for _, seatID := range seatIDs {
		holder, err := s.Redis.Get(ctx, holdKey(eventID, seatID)).Result()
		if err == redis.Nil {
			return fmt.Errorf("%w: hold on seat %s expired", status.ErrSeatUnavailable, seatID)
		}
		if err != nil {
			return fmt.Errorf("verify hold %s: %w", seatID, err)
		}
		if holder != sessionID {
			return fmt.Errorf("%w: seat %s held by another session", status.ErrSeatUnavailable, seatID)
		}
	}
	return nil
}

// HoldAvailability reports the hold state of each seat: "available",
// "held" or "held_by_you".
func (s *SeatHoldService) HoldAvailability(ctx context.Context, eventID string, seatIDs []string, sessionID string) (map[string]string, error) {
	availability := make(map[string]string, len(seatIDs))

	for _, seatID := range seatIDs {
		holder, err := s.Redis.Get(ctx, holdKey(eventID, seatID)).Result()
		switch {
		case err == redis.Nil:
			availability[seatID] = "available"
		case err != nil:
			return nil, fmt.Errorf("hold availability %s: %w", seatID, err)
		case holder == sessionID:
			availability[seatID] = "held_by_you"
		default:
			availability[seatID] = "held"
		}
	}

	return availability, nil
}

func (s *SeatHoldService) releaseKeys(ctx context.Context, eventID string, seatIDs []string) {
	for _, seatID := range seatIDs {
		if err := s.Redis.Del(ctx, holdKey(eventID, seatID)).Err(); err != nil {
			slog.Error("failed to roll back seat hold", "event_id", eventID, "seat_id", seatID, "error", err)
		}
	}
}
