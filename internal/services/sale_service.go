package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tickethub/internal/status"
	"tickethub/models"
	"tickethub/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// SaleService is the sale ledger: it creates pending sales and owns the
// single transition choke point every caller (synchronous authorization,
// webhook reconciliation, sweep, cancellation) goes through. Transitions
// are applied with a compare-and-set on the status column inside a
// transaction, so concurrent attempts on the same sale serialize and only
// the winner's side effects run.
type SaleService struct {
	app          core.App
	reservations *ReservationService
	tickets      *TicketService
	notifier     Notifier
	adminKeyHash string
}

func NewSaleService(app core.App, reservations *ReservationService, tickets *TicketService, notifier Notifier, adminKeyHash string) *SaleService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SaleService{
		app:          app,
		reservations: reservations,
		tickets:      tickets,
		notifier:     notifier,
		adminKeyHash: adminKeyHash,
	}
}

type CreateSaleRequest struct {
	EventID       string   `json:"event_id"`
	TicketTypeID  string   `json:"ticket_type_id"`
	SeatIDs       []string `json:"seat_ids"`
	Quantity      int      `json:"quantity"`
	BuyerName     string   `json:"buyer_name"`
	BuyerEmail    string   `json:"buyer_email"`
	BuyerPhone    string   `json:"buyer_phone"`
	PaymentMethod string   `json:"payment_method"`

	// ExpectedTotal is the total the client displayed to the buyer. When
	// set it must equal unit price * quantity exactly.
	ExpectedTotal string `json:"expected_total,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// CreateSale reserves inventory and records a pending sale in one
// transaction. If any part fails nothing is committed, so a rejected
// reservation never leaves a dangling sale row.
func (s *SaleService) CreateSale(req *CreateSaleRequest) (*core.Record, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("create sale: quantity must be positive, got %d", req.Quantity)
	}
	if len(req.SeatIDs) > 0 && len(req.SeatIDs) != req.Quantity {
		return nil, fmt.Errorf("create sale: %d seats for quantity %d", len(req.SeatIDs), req.Quantity)
	}

	event, err := s.app.FindRecordById("events", req.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s", status.ErrNotFound, req.EventID)
	}

	tt, err := s.app.FindRecordById("ticket_types", req.TicketTypeID)
	if err != nil || tt.GetString("event_id") != req.EventID {
		return nil, fmt.Errorf("%w: ticket type %s", status.ErrNotFound, req.TicketTypeID)
	}

	unitPrice, err := decimal.NewFromString(tt.GetString("price"))
	if err != nil {
		return nil, fmt.Errorf("create sale: price for %s: %w", req.TicketTypeID, err)
	}
	total := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

	if req.ExpectedTotal != "" {
		expected, err := decimal.NewFromString(req.ExpectedTotal)
		if err != nil || !expected.Equal(total) {
			return nil, status.ErrAmountMismatch
		}
	}

	var sale *core.Record
	err = s.app.RunInTransaction(func(txApp core.App) error {
		collection, err := txApp.FindCollectionByNameOrId("sales")
		if err != nil {
			return fmt.Errorf("create sale: sales collection: %w", err)
		}

		sale = core.NewRecord(collection)
		sale.Set("event_id", req.EventID)
		sale.Set("ticket_type_id", req.TicketTypeID)
		sale.Set("buyer_name", req.BuyerName)
		sale.Set("buyer_email", req.BuyerEmail)
		sale.Set("buyer_phone", req.BuyerPhone)
		sale.Set("quantity", req.Quantity)
		sale.Set("total_amount", total.String())
		sale.Set("currency", event.GetString("currency"))
		sale.Set("payment_method", req.PaymentMethod)
		sale.Set("status", string(models.SalePending))
		sale.Set("transaction_type", string(models.TxPaymentAttempt))
		sale.Set("session_id", req.SessionID)
		sale.Set("client_ip", req.ClientIP)
		sale.Set("user_agent", req.UserAgent)
		if len(req.SeatIDs) > 0 {
			seats, _ := json.Marshal(req.SeatIDs)
			sale.Set("seat_ids", string(seats))
		}

		if err := txApp.Save(sale); err != nil {
			return fmt.Errorf("create sale: save: %w", err)
		}

		return s.reservations.Reserve(txApp, req.EventID, req.TicketTypeID, req.Quantity, req.SeatIDs, sale.Id)
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackSaleTransition(string(models.SalePending), req.PaymentMethod)
	return sale, nil
}

// Complete drives a pending sale to completed and mints its tickets. The
// bool reports whether this call won the transition; a false return with a
// nil error is the idempotent no-op every replayed confirmation takes.
func (s *SaleService) Complete(saleID, gatewayTxID string) (bool, error) {
	return s.transition(saleID, models.SalePending, models.SaleCompleted, "", func(txApp core.App, sale *core.Record) error {
		if gatewayTxID != "" {
			sale.Set("gateway_tx_id", gatewayTxID)
		}
		sale.Set("completed_at", types.NowDateTime())
		if err := txApp.Save(sale); err != nil {
			return fmt.Errorf("complete: save sale: %w", err)
		}

		if seatIDs := seatIDsOf(sale); len(seatIDs) > 0 {
			if err := s.reservations.OccupySeats(txApp, seatIDs, sale.Id); err != nil {
				return err
			}
		}

		if _, err := s.tickets.IssueForSale(txApp, sale); err != nil {
			return err
		}

		return s.setPaymentStatus(txApp, sale.Id, models.PaymentApproved)
	})
}

// Fail drives a pending sale to failed and releases its inventory.
func (s *SaleService) Fail(saleID, reason string) (bool, error) {
	return s.transition(saleID, models.SalePending, models.SaleFailed, reason, func(txApp core.App, sale *core.Record) error {
		if err := s.releaseInventory(txApp, sale); err != nil {
			return err
		}
		return s.setPaymentStatus(txApp, sale.Id, models.PaymentDeclined)
	})
}

// Abandon drives a pending sale to abandoned (tracked separately from
// failed for analytics) and releases its inventory.
func (s *SaleService) Abandon(saleID, reason string) (bool, error) {
	return s.transition(saleID, models.SalePending, models.SaleAbandoned, reason, func(txApp core.App, sale *core.Record) error {
		sale.Set("transaction_type", string(models.TxCartAbandon))
		if err := txApp.Save(sale); err != nil {
			return fmt.Errorf("abandon: save sale: %w", err)
		}
		return s.releaseInventory(txApp, sale)
	})
}

// Requester identifies who is asking for a cancellation.
type Requester struct {
	Email    string
	AdminKey string
}

// IsAdmin verifies the admin key against the configured bcrypt hash.
func (r Requester) IsAdmin(adminKeyHash string) bool {
	if r.AdminKey == "" || adminKeyHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(adminKeyHash), []byte(r.AdminKey)) == nil
}

// Cancel reverses a completed sale: releases inventory, frees seats and
// invalidates the sale's tickets. Only the buyer or an administrator may
// cancel. The gateway-side refund is handled out of band by the published
// event's consumer.
func (s *SaleService) Cancel(saleID, reason string, requester Requester) (bool, error) {
	sale, err := s.app.FindRecordById("sales", saleID)
	if err != nil {
		return false, fmt.Errorf("%w: sale %s", status.ErrNotFound, saleID)
	}

	if !requester.IsAdmin(s.adminKeyHash) && sale.GetString("buyer_email") != requester.Email {
		return false, status.ErrNotAuthorized
	}

	current := models.SaleStatus(sale.GetString("status"))
	if current == models.SaleCancelled {
		return false, status.ErrAlreadyCancelled
	}

	// A pending sale is withdrawn rather than refunded.
	if current == models.SalePending {
		return s.Abandon(saleID, reason)
	}

	applied, err := s.transition(saleID, models.SaleCompleted, models.SaleCancelled, reason, func(txApp core.App, sale *core.Record) error {
		sale.Set("cancelled_at", types.NowDateTime())
		if err := txApp.Save(sale); err != nil {
			return fmt.Errorf("cancel: save sale: %w", err)
		}
		if err := s.releaseInventory(txApp, sale); err != nil {
			return err
		}
		if err := s.tickets.CancelForSale(txApp, sale.Id); err != nil {
			return err
		}
		return s.setPaymentStatus(txApp, sale.Id, models.PaymentRefunded)
	})
	if err != nil {
		return applied, err
	}
	if !applied {
		// Lost a race with another cancellation.
		return false, status.ErrAlreadyCancelled
	}
	return true, nil
}

// GetSale returns a sale with its tickets.
func (s *SaleService) GetSale(saleID string) (*core.Record, []*core.Record, error) {
	sale, err := s.app.FindRecordById("sales", saleID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sale %s", status.ErrNotFound, saleID)
	}

	tickets, err := s.app.FindRecordsByFilter(
		"tickets",
		"sale_id = {:saleId}",
		"-created",
		0,
		0,
		dbx.Params{"saleId": saleID},
	)
	if err != nil {
		tickets = nil
	}

	return sale, tickets, nil
}

// AttachGatewayTx records the provider transaction id on a sale. Only the
// gateway_tx_id column is written; a confirmation that has already moved
// the sale through the transition path keeps its status.
func (s *SaleService) AttachGatewayTx(saleID, gatewayTxID string) error {
	_, err := s.app.DB().
		NewQuery("UPDATE sales SET gateway_tx_id = {:tx} WHERE id = {:id}").
		Bind(dbx.Params{"tx": gatewayTxID, "id": saleID}).
		Execute()
	if err != nil {
		return fmt.Errorf("attach gateway tx: %w", err)
	}
	return nil
}

// FindByGatewayTx resolves a sale from a gateway transaction id, first via
// the sale row itself and then via the payments audit table.
func (s *SaleService) FindByGatewayTx(gatewayTxID string) (*core.Record, error) {
	sale, err := s.app.FindFirstRecordByFilter(
		"sales",
		"gateway_tx_id = {:tx}",
		dbx.Params{"tx": gatewayTxID},
	)
	if err == nil {
		return sale, nil
	}

	payment, err := s.app.FindFirstRecordByFilter(
		"payments",
		"gateway_tx_id = {:tx}",
		dbx.Params{"tx": gatewayTxID},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway transaction %s", status.ErrNotFound, gatewayTxID)
	}

	return s.app.FindRecordById("sales", payment.GetString("sale_id"))
}

// ExpirePendingSales abandons sales that stayed pending beyond ttl with no
// confirming or failing notification, releasing their inventory so a
// silent gateway cannot starve the event.
func (s *SaleService) ExpirePendingSales(ttl time.Duration) (int, error) {
	cutoff := types.NowDateTime().Time().Add(-ttl)

	stale, err := s.app.FindRecordsByFilter(
		"sales",
		"status = 'pending' && created < {:cutoff}",
		"created",
		200,
		0,
		dbx.Params{"cutoff": cutoff.UTC().Format("2006-01-02 15:04:05.000Z")},
	)
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}

	expired := 0
	for _, sale := range stale {
		applied, err := s.Abandon(sale.Id, "payment_timeout")
		if err != nil {
			slog.Error("failed to expire pending sale", "sale_id", sale.Id, "error", err)
			continue
		}
		if applied {
			expired++
		}
	}

	return expired, nil
}

// RunPendingSweep periodically expires stale pending sales until ctx is
// cancelled.
func (s *SaleService) RunPendingSweep(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.ExpirePendingSales(ttl)
			if err != nil {
				slog.Error("pending sale sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				slog.Info("pending sale sweep", "expired", expired)
			}
		}
	}
}

// transition applies from -> to with a compare-and-set on the status
// column. Zero rows affected means another caller already moved the sale
// on; that is reported as applied=false with no error and no side effects,
// which is what makes webhook replays and authorization races harmless.
func (s *SaleService) transition(saleID string, from, to models.SaleStatus, reason string, sideEffects func(txApp core.App, sale *core.Record) error) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, from, to)
	}

	applied := false
	err := s.app.RunInTransaction(func(txApp core.App) error {
		res, err := txApp.DB().
			NewQuery("UPDATE sales SET status = {:to}, failure_reason = {:reason} WHERE id = {:id} AND status = {:from}").
			Bind(dbx.Params{"to": string(to), "reason": reason, "id": saleID, "from": string(from)}).
			Execute()
		if err != nil {
			return fmt.Errorf("transition %s -> %s: %w", from, to, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true

		sale, err := txApp.FindRecordById("sales", saleID)
		if err != nil {
			return fmt.Errorf("%w: sale %s", status.ErrNotFound, saleID)
		}

		if sideEffects != nil {
			return sideEffects(txApp, sale)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		sale, findErr := s.app.FindRecordById("sales", saleID)
		method := ""
		if findErr == nil {
			method = sale.GetString("payment_method")
		}
		monitoring.TrackSaleTransition(string(to), method)
		s.notifier.PublishSaleEvent("sale_"+string(to), map[string]any{
			"sale_id": saleID,
			"reason":  reason,
		})
		slog.Info("sale transition", "sale_id", saleID, "from", from, "to", to, "reason", reason)
	}

	return applied, nil
}

// releaseInventory returns a sale's committed quantity and seats.
func (s *SaleService) releaseInventory(txApp core.App, sale *core.Record) error {
	return s.reservations.Release(txApp, sale.GetString("ticket_type_id"), sale.GetInt("quantity"), seatIDsOf(sale))
}

// setPaymentStatus mirrors the sale outcome onto the payment audit row, if
// one was recorded.
func (s *SaleService) setPaymentStatus(txApp core.App, saleID string, st models.PaymentStatus) error {
	_, err := txApp.DB().
		NewQuery("UPDATE payments SET status = {:status}, processed_at = {:now} WHERE sale_id = {:saleId}").
		Bind(dbx.Params{"status": string(st), "now": types.NowDateTime().String(), "saleId": saleID}).
		Execute()
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	return nil
}
