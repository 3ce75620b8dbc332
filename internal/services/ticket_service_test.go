package services

import (
	"strings"
	"testing"
	"time"

	"tickethub/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketService_QRPayloadRoundTrip(t *testing.T) {
	svc := NewTicketService(nil, "qr-signing-key")

	payload := &QRPayload{
		TicketID: "tk_123",
		Code:     "A1B2C3D4E5F6",
		EventID:  "ev_9",
		IssuedAt: "2026-08-28 10:00:00.000Z",
		Mode:     "live",
	}

	qr, err := svc.BuildQRPayload(payload)
	require.NoError(t, err)

	decoded, err := svc.DecodeQRPayload(qr)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestTicketService_QRPayloadDeterministic(t *testing.T) {
	svc := NewTicketService(nil, "qr-signing-key")

	payload := &QRPayload{TicketID: "tk_1", Code: "ABCDEF", EventID: "ev_1", Mode: "placeholder"}

	first, err := svc.BuildQRPayload(payload)
	require.NoError(t, err)
	second, err := svc.BuildQRPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTicketService_DecodeQRPayload_Rejects(t *testing.T) {
	svc := NewTicketService(nil, "qr-signing-key")

	qr, err := svc.BuildQRPayload(&QRPayload{TicketID: "tk_1", Code: "ABCDEF", EventID: "ev_1", Mode: "live"})
	require.NoError(t, err)

	t.Run("missing separator", func(t *testing.T) {
		_, err := svc.DecodeQRPayload("not-a-qr")
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})

	t.Run("tampered body", func(t *testing.T) {
		i := strings.IndexByte(qr, '.')
		tampered := "x" + qr[1:i] + qr[i:]
		_, err := svc.DecodeQRPayload(tampered)
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewTicketService(nil, "different-key")
		_, err := other.DecodeQRPayload(qr)
		assert.ErrorIs(t, err, status.ErrSignatureInvalid)
	})
}

func TestTicketService_QRMode(t *testing.T) {
	svc := NewTicketService(nil, "key")
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "placeholder", svc.qrMode(now.Add(48*time.Hour), now))
	assert.Equal(t, "live", svc.qrMode(now.Add(23*time.Hour), now))
	assert.Equal(t, "live", svc.qrMode(now.Add(-time.Hour), now))
	// Unknown start time never produces a scannable payload.
	assert.Equal(t, "placeholder", svc.qrMode(time.Time{}, now))
}

func TestAvailability_CanCommit(t *testing.T) {
	a := &Availability{TypeAvailable: 5, EventAvailable: 3}

	assert.True(t, a.CanCommit(1))
	assert.True(t, a.CanCommit(3))
	assert.False(t, a.CanCommit(4), "event capacity is the tighter limit")
	assert.False(t, a.CanCommit(0))
	assert.False(t, a.CanCommit(-2))

	b := &Availability{TypeAvailable: 2, EventAvailable: 10}
	assert.False(t, b.CanCommit(3), "ticket type capacity is the tighter limit")
}
