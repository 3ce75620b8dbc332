package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the closed set of sale lifecycle states.
type SaleStatus string

const (
	SalePending   SaleStatus = "pending"
	SaleCompleted SaleStatus = "completed"
	SaleFailed    SaleStatus = "failed"
	SaleCancelled SaleStatus = "cancelled"
	SaleAbandoned SaleStatus = "abandoned"
)

// TransactionType distinguishes why a sale row exists.
type TransactionType string

const (
	TxDirectSale     TransactionType = "direct_sale"
	TxPaymentAttempt TransactionType = "payment_attempt"
	TxCartAbandon    TransactionType = "cart_abandonment"
)

// saleTransitions is the only authority on which status changes are legal.
// completed and cancelled are terminal.
var saleTransitions = map[SaleStatus][]SaleStatus{
	SalePending:   {SaleCompleted, SaleFailed, SaleAbandoned},
	SaleCompleted: {SaleCancelled},
	SaleFailed:    {},
	SaleCancelled: {},
	SaleAbandoned: {},
}

// CanTransition reports whether from -> to is in the transition table.
func (from SaleStatus) CanTransition(to SaleStatus) bool {
	for _, allowed := range saleTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s SaleStatus) IsTerminal() bool {
	return s == SaleCompleted || s == SaleCancelled
}

// Valid reports whether s is a member of the closed status set.
func (s SaleStatus) Valid() bool {
	_, ok := saleTransitions[s]
	return ok
}

type Sale struct {
	ID            string          `db:"id" json:"id"`
	EventID       string          `db:"event_id" json:"event_id"`
	TicketTypeID  string          `db:"ticket_type_id" json:"ticket_type_id"`
	SeatIDs       []string        `json:"seat_ids,omitempty"`
	BuyerName     string          `db:"buyer_name" json:"buyer_name"`
	BuyerEmail    string          `db:"buyer_email" json:"buyer_email"`
	BuyerPhone    string          `db:"buyer_phone" json:"buyer_phone"`
	Quantity      int             `db:"quantity" json:"quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `db:"currency" json:"currency"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        SaleStatus      `db:"status" json:"status"`
	Type          TransactionType `db:"transaction_type" json:"transaction_type"`
	GatewayTxID   string          `db:"gateway_tx_id" json:"gateway_tx_id,omitempty"`
	Reason        string          `db:"reason" json:"reason,omitempty"`
	SessionID     string          `db:"session_id" json:"session_id,omitempty"`
	ClientIP      string          `db:"client_ip" json:"client_ip,omitempty"`
	UserAgent     string          `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
