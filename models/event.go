package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

type Event struct {
	ID            string      `db:"id" json:"id"`
	Name          string      `db:"name" json:"name"`
	Venue         string      `db:"venue" json:"venue"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       time.Time   `json:"end_time"`
	TotalCapacity int         `db:"total_capacity" json:"total_capacity"`
	Status        EventStatus `db:"status" json:"status"`
}

type TicketType struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `db:"currency" json:"currency"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Sold      int             `db:"sold" json:"sold"`
	Status    string          `db:"status" json:"status"`
}

// Available returns how many units can still be committed for this type.
func (t TicketType) Available() int {
	return t.Quantity - t.Sold
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatReserved  SeatStatus = "reserved"
	SeatOccupied  SeatStatus = "occupied"
)

// seatTransitions: available -> reserved -> occupied, with release back to
// available from either held state.
var seatTransitions = map[SeatStatus][]SeatStatus{
	SeatAvailable: {SeatReserved},
	SeatReserved:  {SeatOccupied, SeatAvailable},
	SeatOccupied:  {SeatAvailable},
}

func (from SeatStatus) CanTransition(to SeatStatus) bool {
	for _, allowed := range seatTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Seat struct {
	ID       string     `db:"id" json:"id"`
	EventID  string     `db:"event_id" json:"event_id"`
	Section  string     `db:"section" json:"section"`
	Row      string     `db:"row" json:"row"`
	Number   int        `db:"number" json:"number"`
	Status   SeatStatus `db:"status" json:"status"`
	HolderID string     `db:"holder_id" json:"holder_id,omitempty"`
}
