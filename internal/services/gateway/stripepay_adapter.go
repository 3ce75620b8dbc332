package gateway

import (
	"context"
	"fmt"
	"time"

	"tickethub/internal/services/gateway/stripepay"
	"tickethub/internal/status"
	"tickethub/monitoring"
	"tickethub/utils"
)

// StripePayAdapter wraps the StripePay client to conform to Gateway.
type StripePayAdapter struct {
	client  *stripepay.StripePay
	breaker *utils.CircuitBreaker
}

// NewStripePayAdapter creates a new StripePay adapter.
func NewStripePayAdapter(ctx context.Context, config *stripepay.Config) (*StripePayAdapter, error) {
	client, err := stripepay.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripepay client: %w", err)
	}

	return &StripePayAdapter{
		client:  client,
		breaker: utils.NewCircuitBreaker("stripepay"),
	}, nil
}

// Provider returns the gateway provider type.
func (a *StripePayAdapter) Provider() Provider {
	return ProviderStripePay
}

// Authorize submits a charge. Declines are a normal outcome, not an error;
// only transport failures and an open breaker surface as
// ErrGatewayUnavailable.
func (a *StripePayAdapter) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	form := &stripepay.ChargeForm{
		Reference:  req.SaleID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		PayerName:  req.PayerName,
		PayerEmail: req.PayerEmail,
	}

	start := time.Now()
	res, err := a.breaker.Execute(ctx, func() (any, error) {
		return a.client.Authorize(ctx, form)
	})
	if err != nil {
		monitoring.TrackGatewayCall(string(ProviderStripePay), "error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}

	charge := res.(*stripepay.ChargeResult)

	outcome := OutcomeDeclined
	if charge.Outcome == "APPROVED" {
		outcome = OutcomeApproved
	}
	monitoring.TrackGatewayCall(string(ProviderStripePay), string(outcome), time.Since(start))

	return &AuthorizeResult{
		TransactionID: charge.ChargeID,
		Outcome:       outcome,
		RawResponse:   charge.Raw,
	}, nil
}

// VerifyNotification authenticates and normalizes a webhook payload.
func (a *StripePayAdapter) VerifyNotification(body []byte, signature string) (*status.Transaction, error) {
	return a.client.VerifyNotification(body, signature)
}

// CheckTransaction checks the status of a transaction.
func (a *StripePayAdapter) CheckTransaction(ctx context.Context, transactionID string) (*status.Transaction, error) {
	res, err := a.breaker.Execute(ctx, func() (any, error) {
		return a.client.CheckTransaction(ctx, transactionID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}
	return res.(*status.Transaction), nil
}

// SetTransactionChannel is a no-op: StripePay resolves synchronously and
// has no push notification channel.
func (a *StripePayAdapter) SetTransactionChannel(ch chan *status.Transaction) {
}

// Close gracefully closes any connections.
func (a *StripePayAdapter) Close(ctx context.Context) error {
	return nil
}
