package handlers

import (
	"errors"
	"net/http"

	"tickethub/internal/services"
	"tickethub/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SaleHandler struct {
	app      *pocketbase.PocketBase
	sales    *services.SaleService
	payments *services.PaymentService
	holds    *services.SeatHoldService
}

func NewSaleHandler(app *pocketbase.PocketBase, sales *services.SaleService, payments *services.PaymentService, holds *services.SeatHoldService) *SaleHandler {
	return &SaleHandler{
		app:      app,
		sales:    sales,
		payments: payments,
		holds:    holds,
	}
}

// Checkout - reserve inventory, create the sale and authorize payment
func (h *SaleHandler) Checkout(e *core.RequestEvent) error {
	var req services.CreateSaleRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	req.ClientIP = e.RealIP()
	req.UserAgent = e.Request.UserAgent()

	ctx := e.Request.Context()

	// Seats picked during browsing must still be held by this session.
	if len(req.SeatIDs) > 0 && req.SessionID != "" {
		if err := h.holds.VerifyHolds(ctx, req.EventID, req.SeatIDs, req.SessionID); err != nil {
			return saleError(err)
		}
	}

	result, err := h.payments.Checkout(ctx, &req)
	if err != nil {
		return saleError(err)
	}

	// The durable seat rows now carry the reservation; the checkout holds
	// have done their job.
	if len(req.SeatIDs) > 0 && req.SessionID != "" {
		h.holds.ReleaseHolds(ctx, req.EventID, req.SeatIDs, req.SessionID)
	}

	return e.JSON(http.StatusOK, result)
}

// GetSale - sale status plus issued tickets
func (h *SaleHandler) GetSale(e *core.RequestEvent) error {
	saleID := e.Request.PathValue("saleId")

	sale, tickets, err := h.sales.GetSale(saleID)
	if err != nil {
		return saleError(err)
	}

	ticketData := make([]map[string]any, len(tickets))
	for i, t := range tickets {
		ticketData[i] = map[string]any{
			"id":         t.Id,
			"code":       t.GetString("code"),
			"status":     t.GetString("status"),
			"seat_id":    t.GetString("seat_id"),
			"qr_payload": t.GetString("qr_payload"),
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"id":             sale.Id,
		"status":         sale.GetString("status"),
		"event_id":       sale.GetString("event_id"),
		"ticket_type_id": sale.GetString("ticket_type_id"),
		"quantity":       sale.GetInt("quantity"),
		"total_amount":   sale.GetString("total_amount"),
		"currency":       sale.GetString("currency"),
		"payment_method": sale.GetString("payment_method"),
		"created":        sale.GetDateTime("created"),
		"completed_at":   sale.GetDateTime("completed_at"),
		"tickets":        ticketData,
	})
}

// CancelSale - buyer or admin cancellation, with refund for completed sales
func (h *SaleHandler) CancelSale(e *core.RequestEvent) error {
	saleID := e.Request.PathValue("saleId")

	var req struct {
		Reason   string `json:"reason"`
		Email    string `json:"email"`
		AdminKey string `json:"admin_key"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Reason == "" {
		req.Reason = "buyer_request"
	}

	requester := services.Requester{Email: req.Email, AdminKey: req.AdminKey}
	if e.Auth != nil && requester.Email == "" {
		requester.Email = e.Auth.Email()
	}

	applied, err := h.sales.Cancel(saleID, req.Reason, requester)
	if err != nil {
		return saleError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"sale_id":   saleID,
		"cancelled": applied,
	})
}

// saleError maps service errors onto HTTP responses.
func saleError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrInsufficientInventory):
		return apis.NewApiError(http.StatusConflict, "Not enough tickets remaining", err)
	case errors.Is(err, status.ErrEventNotOnSale):
		return apis.NewApiError(http.StatusConflict, "Event is not on sale", err)
	case errors.Is(err, status.ErrSeatUnavailable):
		return apis.NewApiError(http.StatusConflict, "One or more seats are no longer available", err)
	case errors.Is(err, status.ErrAmountMismatch):
		return apis.NewBadRequestError("Displayed total does not match the current price", err)
	case errors.Is(err, status.ErrNotAuthorized):
		return apis.NewForbiddenError("Not authorized for this sale", err)
	case errors.Is(err, status.ErrAlreadyCancelled):
		return apis.NewApiError(http.StatusConflict, "Sale is already cancelled", err)
	case errors.Is(err, status.ErrInvalidTransition):
		return apis.NewApiError(http.StatusConflict, "Sale is not in a cancellable state", err)
	case errors.Is(err, status.ErrGatewayUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Payment provider is unavailable, please retry", err)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}
