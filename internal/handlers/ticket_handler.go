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

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{app: app, tickets: tickets}
}

// RefreshQR - regenerate a ticket's QR payload (placeholder flips to live
// near the event start)
func (h *TicketHandler) RefreshQR(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	qr, err := h.tickets.RefreshQR(ticketID)
	if err != nil {
		return saleError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":  ticketID,
		"qr_payload": qr,
	})
}

// CheckIn - validate a scanned QR and mark the ticket used
func (h *TicketHandler) CheckIn(e *core.RequestEvent) error {
	var req struct {
		QRPayload string `json:"qr_payload"`
		Code      string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	code := req.Code
	if req.QRPayload != "" {
		payload, err := h.tickets.DecodeQRPayload(req.QRPayload)
		if err != nil {
			return apis.NewForbiddenError("QR signature is invalid", err)
		}
		if payload.Mode != "live" {
			return apis.NewBadRequestError("QR is a placeholder, refresh it at the venue", nil)
		}
		code = payload.Code
	}
	if code == "" {
		return apis.NewBadRequestError("qr_payload or code is required", nil)
	}

	ticket, err := h.tickets.CheckIn(code)
	if err != nil {
		if errors.Is(err, status.ErrInvalidTransition) {
			return apis.NewApiError(http.StatusConflict, "Ticket was already used or cancelled", err)
		}
		return saleError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticket.Id,
		"status":    ticket.GetString("status"),
		"used_at":   ticket.GetDateTime("used_at"),
	})
}
