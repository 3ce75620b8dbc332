package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

type Ticket struct {
	ID       string       `db:"id" json:"id"`
	SaleID   string       `db:"sale_id" json:"sale_id"`
	EventID  string       `db:"event_id" json:"event_id"`
	SeatID   string       `db:"seat_id" json:"seat_id,omitempty"`
	Code     string       `db:"code" json:"code"`
	QR       string       `db:"qr_payload" json:"qr_payload"`
	Status   TicketStatus `db:"status" json:"status"`
	IssuedAt time.Time    `json:"issued_at"`
	UsedAt   *time.Time   `json:"used_at,omitempty"`
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentDeclined PaymentStatus = "declined"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment mirrors the payment half of a sale for audit purposes. The raw
// gateway response is stored opaque and never parsed outside the adapter
// that produced it.
type Payment struct {
	ID          string          `db:"id" json:"id"`
	SaleID      string          `db:"sale_id" json:"sale_id"`
	Gateway     string          `db:"gateway" json:"gateway"`
	GatewayTxID string          `db:"gateway_tx_id" json:"gateway_tx_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Status      PaymentStatus   `db:"status" json:"status"`
	RawResponse string          `db:"raw_response" json:"raw_response,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}
