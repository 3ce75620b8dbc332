package services

import (
	"fmt"

	"tickethub/internal/status"
	"tickethub/models"
	"tickethub/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// ReservationService owns the atomic check-then-commit over ticket type
// counters and seat rows. All mutations of sold counters and seat status go
// through this service, inside the caller's transaction, so two concurrent
// purchase attempts can never both observe sufficient availability and both
// commit.
type ReservationService struct {
	app core.App
}

func NewReservationService(app core.App) *ReservationService {
	return &ReservationService{app: app}
}

// Availability is a read snapshot; it can be stale by the time a commit is
// attempted, which is why Reserve re-checks inside the transaction.
type Availability struct {
	EventID        string `json:"event_id"`
	TicketTypeID   string `json:"ticket_type_id"`
	TypeAvailable  int    `json:"type_available"`
	EventAvailable int    `json:"event_available"`
}

// CanCommit reports whether the requested quantity fits both limits.
func (a *Availability) CanCommit(requested int) bool {
	return requested > 0 && requested <= a.TypeAvailable && requested <= a.EventAvailable
}

// CheckAvailability computes the available quantity for a ticket type and
// its event without committing anything.
func (s *ReservationService) CheckAvailability(eventID, ticketTypeID string) (*Availability, error) {
	event, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s", status.ErrNotFound, eventID)
	}

	tt, err := s.app.FindRecordById("ticket_types", ticketTypeID)
	if err != nil || tt.GetString("event_id") != eventID {
		return nil, fmt.Errorf("%w: ticket type %s", status.ErrNotFound, ticketTypeID)
	}

	eventSold, err := s.sumSold(s.app, eventID)
	if err != nil {
		return nil, err
	}

	return &Availability{
		EventID:        eventID,
		TicketTypeID:   ticketTypeID,
		TypeAvailable:  tt.GetInt("quantity") - tt.GetInt("sold"),
		EventAvailable: event.GetInt("total_capacity") - eventSold,
	}, nil
}

// Reserve commits the requested quantity inside txApp's transaction. The
// sold counter is advanced with a guarded conditional UPDATE; a guard that
// matches zero rows means another writer got there first and the commit is
// rejected. The event-level capacity sum is re-checked after the increment,
// still inside the transaction, so an over-capacity commit rolls back.
func (s *ReservationService) Reserve(txApp core.App, eventID, ticketTypeID string, quantity int, seatIDs []string, holderID string) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve: quantity must be positive, got %d", quantity)
	}

	event, err := txApp.FindRecordById("events", eventID)
	if err != nil {
		return fmt.Errorf("%w: event %s", status.ErrNotFound, eventID)
	}

	// Only published events sell. Draft and cancelled events keep their
	// inventory untouchable no matter what the client sends.
	if st := models.EventStatus(event.GetString("status")); st != models.EventPublished {
		monitoring.TrackReservationRejection("event_not_on_sale")
		return fmt.Errorf("%w: event %s is %s", status.ErrEventNotOnSale, eventID, st)
	}

	tt, err := txApp.FindRecordById("ticket_types", ticketTypeID)
	if err != nil || tt.GetString("event_id") != eventID {
		return fmt.Errorf("%w: ticket type %s", status.ErrNotFound, ticketTypeID)
	}

	res, err := txApp.DB().
		NewQuery("UPDATE ticket_types SET sold = sold + {:q} WHERE id = {:id} AND sold + {:q} <= quantity").
		Bind(dbx.Params{"q": quantity, "id": ticketTypeID}).
		Execute()
	if err != nil {
		return fmt.Errorf("reserve: sold guard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		monitoring.TrackReservationRejection("ticket_type_capacity")
		return status.ErrInsufficientInventory
	}

	eventSold, err := s.sumSold(txApp, eventID)
	if err != nil {
		return err
	}
	if eventSold > event.GetInt("total_capacity") {
		monitoring.TrackReservationRejection("event_capacity")
		return status.ErrInsufficientInventory
	}

	for _, seatID := range seatIDs {
		if err := s.reserveSeat(txApp, eventID, seatID, holderID); err != nil {
			return err
		}
	}

	return nil
}

// Release reverses a reservation: decrements sold by quantity (never below
// zero) and returns the given seats to available.
func (s *ReservationService) Release(txApp core.App, ticketTypeID string, quantity int, seatIDs []string) error {
	res, err := txApp.DB().
		NewQuery("UPDATE ticket_types SET sold = sold - {:q} WHERE id = {:id} AND sold - {:q} >= 0").
		Bind(dbx.Params{"q": quantity, "id": ticketTypeID}).
		Execute()
	if err != nil {
		return fmt.Errorf("release: sold guard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Releasing more than was sold means the ledger and counters have
		// diverged; refuse rather than go negative.
		return fmt.Errorf("release: sold counter for %s would go negative", ticketTypeID)
	}

	for _, seatID := range seatIDs {
		if err := s.releaseSeat(txApp, seatID); err != nil {
			return err
		}
	}

	return nil
}

// OccupySeats flips reserved seats to occupied once their sale completes.
func (s *ReservationService) OccupySeats(txApp core.App, seatIDs []string, holderID string) error {
	for _, seatID := range seatIDs {
		res, err := txApp.DB().
			NewQuery("UPDATE seats SET status = 'occupied', occupied_at = {:now} WHERE id = {:id} AND status = 'reserved' AND holder_id = {:holder}").
			Bind(dbx.Params{"id": seatID, "holder": holderID, "now": types.NowDateTime().String()}).
			Execute()
		if err != nil {
			return fmt.Errorf("occupy seat %s: %w", seatID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: seat %s is not reserved by this sale", status.ErrSeatUnavailable, seatID)
		}
	}
	return nil
}

func (s *ReservationService) reserveSeat(txApp core.App, eventID, seatID, holderID string) error {
	res, err := txApp.DB().
		NewQuery("UPDATE seats SET status = 'reserved', holder_id = {:holder}, reserved_at = {:now} WHERE id = {:id} AND event_id = {:event} AND status = 'available'").
		Bind(dbx.Params{"id": seatID, "event": eventID, "holder": holderID, "now": types.NowDateTime().String()}).
		Execute()
	if err != nil {
		return fmt.Errorf("reserve seat %s: %w", seatID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		monitoring.TrackReservationRejection("seat_unavailable")

		// Distinguish a missing seat from a held one for the caller.
		if _, findErr := txApp.FindRecordById("seats", seatID); findErr != nil {
			return fmt.Errorf("%w: seat %s", status.ErrNotFound, seatID)
		}
		return fmt.Errorf("%w: seat %s", status.ErrSeatUnavailable, seatID)
	}
	return nil
}

func (s *ReservationService) releaseSeat(txApp core.App, seatID string) error {
	_, err := txApp.DB().
		NewQuery("UPDATE seats SET status = 'available', holder_id = '', reserved_at = '', occupied_at = '' WHERE id = {:id} AND status IN ('reserved', 'occupied')").
		Bind(dbx.Params{"id": seatID}).
		Execute()
	if err != nil {
		return fmt.Errorf("release seat %s: %w", seatID, err)
	}
	return nil
}

func (s *ReservationService) sumSold(app core.App, eventID string) (int, error) {
	var row struct {
		Total int `db:"total"`
	}
	err := app.DB().
		NewQuery("SELECT COALESCE(SUM(sold), 0) AS total FROM ticket_types WHERE event_id = {:event}").
		Bind(dbx.Params{"event": eventID}).
		One(&row)
	if err != nil {
		return 0, fmt.Errorf("sum sold for event %s: %w", eventID, err)
	}
	return row.Total, nil
}
