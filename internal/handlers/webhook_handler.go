package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tickethub/internal/services"
	"tickethub/internal/services/gateway"
	"tickethub/internal/status"
	"tickethub/security"

	"github.com/labstack/echo/v5"
)

// maxWebhookBody caps notification payload size.
const maxWebhookBody = 1 << 20

// WebhookHandler terminates provider HTTP notifications on a standalone
// listener, separate from the buyer-facing API, so provider traffic can be
// firewalled independently.
type WebhookHandler struct {
	payments *services.PaymentService
	limiter  *security.RateLimiter
}

func NewWebhookHandler(payments *services.PaymentService, limiter *security.RateLimiter) *WebhookHandler {
	return &WebhookHandler{payments: payments, limiter: limiter}
}

// Router builds the echo instance for the webhook listener.
func (h *WebhookHandler) Router() *echo.Echo {
	e := echo.New()

	hooks := e.Group("/hooks")
	if h.limiter != nil {
		hooks.Use(h.limiter.WebhookRateLimit())
	}
	hooks.POST("/:provider", h.Receive)

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return e
}

// Receive handles one provider notification. Authentication failures are
// 403, unknown transactions 404; replays are 200 so providers stop
// retrying.
func (h *WebhookHandler) Receive(c echo.Context) error {
	provider := gateway.Provider(c.PathParam("provider"))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}
	signature := c.Request().Header.Get("X-Signature")

	tran, err := h.payments.HandleWebhook(provider, body, signature)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrSignatureInvalid):
			slog.Warn("webhook rejected: bad signature", "provider", provider, "ip", c.RealIP())
			return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid signature"})
		case errors.Is(err, status.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown transaction"})
		case errors.Is(err, status.ErrAmountMismatch):
			slog.Error("webhook rejected: amount mismatch", "provider", provider, "error", err)
			return c.JSON(http.StatusConflict, map[string]string{"error": "amount mismatch"})
		default:
			slog.Error("webhook processing failed", "provider", provider, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":         "ok",
		"transaction_id": tran.TransactionID,
	})
}
