package gateway

import (
	"context"

	"tickethub/internal/status"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway implementation.
type Provider string

const (
	// ProviderStripePay is a card-style gateway that authorizes
	// synchronously: the call itself returns approved or declined.
	ProviderStripePay Provider = "stripepay"

	// ProviderPSEBank is a redirect/bank-debit gateway: authorize returns
	// pending and the final state arrives later through a notification.
	ProviderPSEBank Provider = "psebank"
)

// Outcome is the result of an authorization attempt.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomePending  Outcome = "pending"
	OutcomeDeclined Outcome = "declined"
)

// AuthorizeRequest carries everything a provider needs to charge a sale.
// The sale id doubles as the idempotency key on the provider side.
type AuthorizeRequest struct {
	SaleID     string          `json:"sale_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	PayerName  string          `json:"payer_name"`
	PayerEmail string          `json:"payer_email"`
	PayerPhone string          `json:"payer_phone"`
}

type AuthorizeResult struct {
	TransactionID string  `json:"transaction_id"`
	Outcome       Outcome `json:"outcome"`

	// RedirectURL and QRCode are only set by async providers.
	RedirectURL string `json:"redirect_url,omitempty"`
	QRCode      string `json:"qr_code,omitempty"`

	// RawResponse is the provider's response body, stored for audit.
	RawResponse string `json:"raw_response,omitempty"`
}

// Gateway is the common interface every payment provider adapter satisfies.
type Gateway interface {
	// Provider returns the gateway provider type.
	Provider() Provider

	// Authorize attempts to charge the given sale.
	Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error)

	// VerifyNotification authenticates an inbound webhook payload and
	// normalizes it into a status.Transaction. It returns
	// status.ErrSignatureInvalid when the signature does not match.
	VerifyNotification(body []byte, signature string) (*status.Transaction, error)

	// CheckTransaction queries the provider for a transaction's state.
	CheckTransaction(ctx context.Context, transactionID string) (*status.Transaction, error)

	// SetTransactionChannel sets the channel for providers that push
	// asynchronous confirmations (no-op for synchronous providers).
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any provider connections.
	Close(ctx context.Context) error
}

// Factory creates gateway instances based on provider type.
type Factory interface {
	CreateGateway(ctx context.Context, provider Provider, config any) (Gateway, error)
	GetSupportedProviders() []Provider
}
