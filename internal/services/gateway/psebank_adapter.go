package gateway

import (
	"context"
	"fmt"
	"time"

	"tickethub/internal/services/gateway/psebank"
	"tickethub/internal/status"
	"tickethub/monitoring"
	"tickethub/utils"
)

// PSEBankAdapter wraps the PSEBank client to conform to Gateway.
type PSEBankAdapter struct {
	client  *psebank.PSEBank
	breaker *utils.CircuitBreaker
}

// NewPSEBankAdapter creates a new PSEBank adapter.
func NewPSEBankAdapter(ctx context.Context, config *psebank.Config) (*PSEBankAdapter, error) {
	client, err := psebank.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create psebank client: %w", err)
	}

	return &PSEBankAdapter{
		client:  client,
		breaker: utils.NewCircuitBreaker("psebank"),
	}, nil
}

// Provider returns the gateway provider type.
func (a *PSEBankAdapter) Provider() Provider {
	return ProviderPSEBank
}

// Authorize registers a debit with the bank. The outcome is always pending;
// the sale stays pending until a notification resolves it.
func (a *PSEBankAdapter) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	form := &psebank.DebitForm{
		Reference:  req.SaleID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		PayerEmail: req.PayerEmail,
		PayerPhone: req.PayerPhone,
	}

	start := time.Now()
	res, err := a.breaker.Execute(ctx, func() (any, error) {
		return a.client.CreateDebit(ctx, form)
	})
	if err != nil {
		monitoring.TrackGatewayCall(string(ProviderPSEBank), "error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}

	debit := res.(*psebank.DebitResult)
	monitoring.TrackGatewayCall(string(ProviderPSEBank), string(OutcomePending), time.Since(start))

	return &AuthorizeResult{
		TransactionID: debit.DebitID,
		Outcome:       OutcomePending,
		RedirectURL:   debit.RedirectURL,
		QRCode:        debit.EmvCode,
		RawResponse:   debit.Raw,
	}, nil
}

// VerifyNotification authenticates and normalizes a webhook payload.
func (a *PSEBankAdapter) VerifyNotification(body []byte, signature string) (*status.Transaction, error) {
	return a.client.VerifyNotification(body, signature)
}

// CheckTransaction checks the status of a transaction.
func (a *PSEBankAdapter) CheckTransaction(ctx context.Context, transactionID string) (*status.Transaction, error) {
	res, err := a.breaker.Execute(ctx, func() (any, error) {
		return a.client.CheckTransaction(ctx, transactionID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}
	return res.(*status.Transaction), nil
}

// SetTransactionChannel sets the channel for PubNub-pushed confirmations.
func (a *PSEBankAdapter) SetTransactionChannel(ch chan *status.Transaction) {
	a.client.SetTranChannel(ch)
}

// Close gracefully closes any connections.
func (a *PSEBankAdapter) Close(ctx context.Context) error {
	return nil
}
