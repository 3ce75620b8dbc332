package handlers

import (
	"net/http"

	"tickethub/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	app          *pocketbase.PocketBase
	sales        *services.SaleService
	adminKeyHash string
	sweep        func() (int, error)
}

func NewAdminHandler(app *pocketbase.PocketBase, sales *services.SaleService, adminKeyHash string, sweep func() (int, error)) *AdminHandler {
	return &AdminHandler{
		app:          app,
		sales:        sales,
		adminKeyHash: adminKeyHash,
		sweep:        sweep,
	}
}

func (h *AdminHandler) authorize(e *core.RequestEvent) error {
	req := services.Requester{AdminKey: e.Request.Header.Get("X-Admin-Key")}
	if !req.IsAdmin(h.adminKeyHash) {
		return apis.NewForbiddenError("Admin key required", nil)
	}
	return nil
}

// PendingSales - sales stuck in pending, oldest first
func (h *AdminHandler) PendingSales(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	sales, err := h.app.FindRecordsByFilter(
		"sales",
		"status = 'pending'",
		"created",
		100,
		0,
		nil,
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to load pending sales", err)
	}

	data := make([]map[string]any, len(sales))
	for i, sale := range sales {
		data[i] = map[string]any{
			"id":             sale.Id,
			"event_id":       sale.GetString("event_id"),
			"quantity":       sale.GetInt("quantity"),
			"total_amount":   sale.GetString("total_amount"),
			"payment_method": sale.GetString("payment_method"),
			"gateway_tx_id":  sale.GetString("gateway_tx_id"),
			"created":        sale.GetDateTime("created"),
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"count": len(sales),
		"sales": data,
	})
}

// ForceSweep - expire timed-out pending sales now instead of waiting for
// the background ticker
func (h *AdminHandler) ForceSweep(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	expired, err := h.sweep()
	if err != nil {
		return apis.NewBadRequestError("Sweep failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"expired": expired})
}
