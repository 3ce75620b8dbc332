package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound              = errors.New("status: referenced entity not found")
	ErrInsufficientInventory = errors.New("inventory: not enough tickets remaining")
	ErrEventNotOnSale        = errors.New("inventory: event is not open for sale")
	ErrSeatUnavailable       = errors.New("inventory: one or more seats are not available")
	ErrAmountMismatch        = errors.New("payment: authorized amount does not match price * quantity")
	ErrInvalidTransition     = errors.New("sale: invalid status transition")
	ErrSignatureInvalid      = errors.New("webhook: signature verification failed")
	ErrNotAuthorized         = errors.New("sale: requester is not the buyer or an administrator")
	ErrAlreadyCancelled      = errors.New("sale: sale is already in a terminal status")
	ErrGatewayUnavailable    = errors.New("gateway: provider temporarily unavailable")
)

// Transaction is the normalized shape every gateway notification is
// translated into before it touches the sale ledger. Provider-specific
// payload quirks stay inside the provider packages.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	SaleID        string          `json:"sale_id"`
	Status        string          `json:"status"` // approved, declined
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Payer         string          `json:"payer,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	RawPayload    string          `json:"raw_payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
