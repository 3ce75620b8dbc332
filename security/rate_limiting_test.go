package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func webhookEcho(limiter *RateLimiter) *echo.Echo {
	e := echo.New()
	hooks := e.Group("/hooks")
	hooks.Use(limiter.WebhookRateLimit())
	hooks.POST("/:provider", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return e
}

func TestWebhookRateLimit_AllowsUnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	e := webhookEcho(limiter)

	key := "ratelimit:webhook:stripepay:192.0.2.1"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)

	req := httptest.NewRequest(http.MethodPost, "/hooks/stripepay", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRateLimit_BlocksOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	e := webhookEcho(limiter)

	key := "ratelimit:webhook:stripepay:192.0.2.1"
	mock.ExpectIncr(key).SetVal(3)

	req := httptest.NewRequest(http.MethodPost, "/hooks/stripepay", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRateLimit_FailsOpenWhenRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, time.Minute)
	e := webhookEcho(limiter)

	mock.ExpectIncr("ratelimit:webhook:stripepay:192.0.2.1").SetErr(assert.AnError)

	req := httptest.NewRequest(http.MethodPost, "/hooks/stripepay", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
