package handlers

import (
	"net/http"

	"tickethub/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SeatHandler struct {
	app          *pocketbase.PocketBase
	reservations *services.ReservationService
	holds        *services.SeatHoldService
}

func NewSeatHandler(app *pocketbase.PocketBase, reservations *services.ReservationService, holds *services.SeatHoldService) *SeatHandler {
	return &SeatHandler{
		app:          app,
		reservations: reservations,
		holds:        holds,
	}
}

// CheckAvailability - remaining quantity for a ticket type and its event
func (h *SeatHandler) CheckAvailability(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	ticketTypeID := e.Request.PathValue("ticketTypeId")

	availability, err := h.reservations.CheckAvailability(eventID, ticketTypeID)
	if err != nil {
		return saleError(err)
	}

	return e.JSON(http.StatusOK, availability)
}

// GetSeats - seat map for an event, merged with live checkout holds
func (h *SeatHandler) GetSeats(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	sessionID := e.Request.URL.Query().Get("session_id")

	seats, err := h.app.FindRecordsByFilter(
		"seats",
		"event_id = {:eventId}",
		"row,number",
		0,
		0,
		map[string]any{"eventId": eventID},
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to load seats", err)
	}

	seatIDs := make([]string, len(seats))
	for i, seat := range seats {
		seatIDs[i] = seat.Id
	}
	heldState, err := h.holds.HoldAvailability(e.Request.Context(), eventID, seatIDs, sessionID)
	if err != nil {
		return apis.NewBadRequestError("Failed to load seat holds", err)
	}

	seatData := make([]map[string]any, len(seats))
	for i, seat := range seats {
		st := seat.GetString("status")
		if st == "available" && heldState[seat.Id] != "available" {
			st = heldState[seat.Id]
		}
		seatData[i] = map[string]any{
			"id":      seat.Id,
			"row":     seat.GetString("row"),
			"number":  seat.GetInt("number"),
			"section": seat.GetString("section"),
			"status":  st,
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"seats":    seatData,
	})
}

// HoldSeats - take checkout holds on a set of seats for a session
func (h *SeatHandler) HoldSeats(e *core.RequestEvent) error {
	var req struct {
		EventID   string   `json:"event_id"`
		SeatIDs   []string `json:"seat_ids"`
		SessionID string   `json:"session_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.SessionID == "" || len(req.SeatIDs) == 0 {
		return apis.NewBadRequestError("session_id and seat_ids are required", nil)
	}

	if err := h.holds.HoldSeats(e.Request.Context(), req.EventID, req.SeatIDs, req.SessionID); err != nil {
		return saleError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"held": req.SeatIDs})
}

// ReleaseSeats - give back checkout holds before they expire
func (h *SeatHandler) ReleaseSeats(e *core.RequestEvent) error {
	var req struct {
		EventID   string   `json:"event_id"`
		SeatIDs   []string `json:"seat_ids"`
		SessionID string   `json:"session_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	h.holds.ReleaseHolds(e.Request.Context(), req.EventID, req.SeatIDs, req.SessionID)
	return e.JSON(http.StatusOK, map[string]any{"released": req.SeatIDs})
}
