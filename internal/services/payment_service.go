package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tickethub/internal/services/gateway"
	"tickethub/internal/status"
	"tickethub/models"
	"tickethub/monitoring"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// authorizeCacheTTL bounds how long a cached authorization outcome is
// replayed to client retries.
const authorizeCacheTTL = 24 * time.Hour

// PaymentService orchestrates checkout: it reserves inventory through the
// sale ledger, invokes the right gateway, and reconciles asynchronous
// confirmations (HTTP webhooks and PubNub pushes) back onto the ledger.
type PaymentService struct {
	app      core.App
	Redis    *redis.Client
	sales    *SaleService
	gateways *gateway.Registry
}

func NewPaymentService(app core.App, redisClient *redis.Client, sales *SaleService, gateways *gateway.Registry) *PaymentService {
	return &PaymentService{
		app:      app,
		Redis:    redisClient,
		sales:    sales,
		gateways: gateways,
	}
}

type CheckoutResult struct {
	SaleID      string            `json:"sale_id"`
	Status      models.SaleStatus `json:"status"`
	Outcome     gateway.Outcome   `json:"outcome"`
	TotalAmount string            `json:"total_amount"`
	Currency    string            `json:"currency"`

	// Set for redirect/async methods only.
	RedirectURL string `json:"redirect_url,omitempty"`
	QRCode      string `json:"qr_code,omitempty"`

	// Set when the sale failed before or during authorization.
	Reason string `json:"reason,omitempty"`
}

// Checkout runs the full purchase attempt. Inventory is committed before
// the gateway call and stays committed while the sale is pending; declines
// release it through the ledger's failure transition.
func (s *PaymentService) Checkout(ctx context.Context, req *CreateSaleRequest) (*CheckoutResult, error) {
	gw, err := s.gateways.ByMethod(req.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	sale, err := s.sales.CreateSale(req)
	if err != nil {
		return nil, err
	}

	authReq := &gateway.AuthorizeRequest{
		SaleID:     sale.Id,
		Amount:     decimal.RequireFromString(sale.GetString("total_amount")),
		Currency:   sale.GetString("currency"),
		Method:     req.PaymentMethod,
		Reference:  sale.Id,
		PayerName:  req.BuyerName,
		PayerEmail: req.BuyerEmail,
		PayerPhone: req.BuyerPhone,
	}

	result, err := s.authorize(ctx, gw, authReq)
	if err != nil {
		// The gateway never saw the charge or is unreachable: release the
		// committed inventory and surface the failure.
		if _, failErr := s.sales.Fail(sale.Id, "gateway_unavailable"); failErr != nil {
			slog.Error("failed to fail sale after gateway error", "sale_id", sale.Id, "error", failErr)
		}
		return nil, err
	}

	if err := s.recordPayment(sale, gw.Provider(), result); err != nil {
		slog.Error("failed to record payment", "sale_id", sale.Id, "error", err)
	}

	out := &CheckoutResult{
		SaleID:      sale.Id,
		Outcome:     result.Outcome,
		TotalAmount: sale.GetString("total_amount"),
		Currency:    sale.GetString("currency"),
		RedirectURL: result.RedirectURL,
		QRCode:      result.QRCode,
	}

	switch result.Outcome {
	case gateway.OutcomeApproved:
		if _, err := s.sales.Complete(sale.Id, result.TransactionID); err != nil {
			return nil, err
		}
		out.Status = models.SaleCompleted

	case gateway.OutcomeDeclined:
		if _, err := s.sales.Fail(sale.Id, "gateway_declined"); err != nil {
			return nil, err
		}
		out.Status = models.SaleFailed
		out.Reason = "payment declined"

	case gateway.OutcomePending:
		// Record the provider transaction id so the reconciler can map the
		// eventual notification back to this sale. The write targets that
		// single column: a confirmation that lands between authorize and
		// this point must not be reverted by a stale full-record save.
		if err := s.sales.AttachGatewayTx(sale.Id, result.TransactionID); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		out.Status = models.SalePending
	}

	return out, nil
}

// authorize wraps the gateway call with a Redis-backed idempotency cache
// keyed by sale id: a client retry replays the original outcome instead of
// charging twice.
func (s *PaymentService) authorize(ctx context.Context, gw gateway.Gateway, req *gateway.AuthorizeRequest) (*gateway.AuthorizeResult, error) {
	cacheKey := fmt.Sprintf("authorize:%s", req.SaleID)

	if cached, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
		var result gateway.AuthorizeResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Info("authorize replayed from cache", "sale_id", req.SaleID)
			return &result, nil
		}
	}

	result, err := gw.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		s.Redis.SetNX(ctx, cacheKey, data, authorizeCacheTTL)
	}

	return result, nil
}

// HandleWebhook verifies, normalizes and applies one inbound gateway
// notification. Replays and races with the synchronous path resolve to
// no-ops through the ledger's compare-and-set.
func (s *PaymentService) HandleWebhook(provider gateway.Provider, body []byte, signature string) (*status.Transaction, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		monitoring.TrackWebhook(string(provider), "unknown_provider")
		return nil, fmt.Errorf("webhook: %w", err)
	}

	tran, err := gw.VerifyNotification(body, signature)
	if err != nil {
		monitoring.TrackWebhook(string(provider), "signature_invalid")
		return nil, err
	}

	if err := s.reconcile(provider, tran); err != nil {
		return tran, err
	}
	return tran, nil
}

// ProcessTransactions consumes provider-pushed confirmations (the PubNub
// path) and applies them through the same reconciler as HTTP webhooks.
func (s *PaymentService) ProcessTransactions(ctx context.Context, provider gateway.Provider, ch chan *status.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case tran := <-ch:
			if err := s.reconcile(provider, tran); err != nil {
				slog.Error("failed to reconcile pushed transaction",
					"provider", provider,
					"transaction_id", tran.TransactionID,
					"error", err,
				)
			}
		}
	}
}

// reconcile maps a normalized transaction to its sale and applies the
// resulting ledger transition exactly once.
func (s *PaymentService) reconcile(provider gateway.Provider, tran *status.Transaction) error {
	sale, err := s.resolveSale(tran)
	if err != nil {
		monitoring.TrackWebhook(string(provider), "unknown_transaction")
		return err
	}

	// A notification whose amount disagrees with the ledger is reported,
	// never applied.
	total := decimal.RequireFromString(sale.GetString("total_amount"))
	if !tran.Amount.IsZero() && !tran.Amount.Equal(total) {
		monitoring.TrackWebhook(string(provider), "amount_mismatch")
		return fmt.Errorf("%w: notification %s, sale %s", status.ErrAmountMismatch, tran.Amount, total)
	}

	var applied bool
	switch tran.Status {
	case "approved":
		applied, err = s.sales.Complete(sale.Id, tran.TransactionID)
	case "declined":
		applied, err = s.sales.Fail(sale.Id, "gateway_declined")
	default:
		monitoring.TrackWebhook(string(provider), "invalid_status")
		return fmt.Errorf("%w: notification status %q", status.ErrInvalidTransition, tran.Status)
	}
	if err != nil {
		monitoring.TrackWebhook(string(provider), "error")
		return err
	}

	if applied {
		monitoring.TrackWebhook(string(provider), "applied")
		s.storeRawNotification(sale.Id, tran)
	} else {
		// Replay or a race lost against the synchronous path.
		monitoring.TrackWebhook(string(provider), "replay")
		slog.Info("notification replay ignored",
			"provider", provider,
			"sale_id", sale.Id,
			"transaction_id", tran.TransactionID,
		)
	}

	return nil
}

func (s *PaymentService) resolveSale(tran *status.Transaction) (*core.Record, error) {
	if tran.SaleID != "" {
		if sale, err := s.app.FindRecordById("sales", tran.SaleID); err == nil {
			return sale, nil
		}
	}
	return s.sales.FindByGatewayTx(tran.TransactionID)
}

// recordPayment writes the payment audit row for a sale, including the
// provider's raw response body.
func (s *PaymentService) recordPayment(sale *core.Record, provider gateway.Provider, result *gateway.AuthorizeResult) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return fmt.Errorf("payments collection: %w", err)
	}

	payment := core.NewRecord(collection)
	payment.Set("sale_id", sale.Id)
	payment.Set("gateway", string(provider))
	payment.Set("gateway_tx_id", result.TransactionID)
	payment.Set("amount", sale.GetString("total_amount"))
	payment.Set("currency", sale.GetString("currency"))
	payment.Set("status", string(models.PaymentPending))
	payment.Set("raw_response", result.RawResponse)

	return s.app.Save(payment)
}

// storeRawNotification appends the raw webhook payload to the sale's
// payment row for the audit trail.
func (s *PaymentService) storeRawNotification(saleID string, tran *status.Transaction) {
	if tran.RawPayload == "" {
		return
	}
	payment, err := s.app.FindFirstRecordByFilter(
		"payments",
		"sale_id = {:saleId}",
		map[string]any{"saleId": saleID},
	)
	if err != nil {
		return
	}
	payment.Set("raw_response", tran.RawPayload)
	if err := s.app.Save(payment); err != nil {
		slog.Error("failed to store raw notification", "sale_id", saleID, "error", err)
	}
}
