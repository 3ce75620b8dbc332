package services

import (
	"testing"

	"tickethub/internal/status"
	"tickethub/models"

	_ "tickethub/migrations"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) core.App {
	t.Helper()

	app := core.NewBaseApp(core.BaseAppConfig{DataDir: t.TempDir()})
	require.NoError(t, app.Bootstrap())
	require.NoError(t, app.RunAllMigrations())
	t.Cleanup(func() { _ = app.ResetBootstrapState() })

	return app
}

func newLedger(app core.App) (*SaleService, *ReservationService) {
	reservations := NewReservationService(app)
	tickets := NewTicketService(app, "test-signing-key")
	sales := NewSaleService(app, reservations, tickets, NopNotifier{}, "")
	return sales, reservations
}

func seedEvent(t *testing.T, app core.App, capacity int) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("events")
	require.NoError(t, err)

	event := core.NewRecord(collection)
	event.Set("name", "Night Show")
	event.Set("venue", "Main Hall")
	event.Set("status", string(models.EventPublished))
	event.Set("total_capacity", capacity)
	event.Set("currency", "USD")
	require.NoError(t, app.Save(event))

	return event
}

func seedTicketType(t *testing.T, app core.App, eventID string, quantity int) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("ticket_types")
	require.NoError(t, err)

	tt := core.NewRecord(collection)
	tt.Set("event_id", eventID)
	tt.Set("name", "General Admission")
	tt.Set("price", "50.00")
	tt.Set("quantity", quantity)
	tt.Set("sold", 0)
	require.NoError(t, app.Save(tt))

	return tt
}

func soldCount(t *testing.T, app core.App, ticketTypeID string) int {
	t.Helper()

	tt, err := app.FindRecordById("ticket_types", ticketTypeID)
	require.NoError(t, err)
	return tt.GetInt("sold")
}

func reserveTx(app core.App, reservations *ReservationService, eventID, typeID string, quantity int, holder string) error {
	return app.RunInTransaction(func(txApp core.App) error {
		return reservations.Reserve(txApp, eventID, typeID, quantity, nil, holder)
	})
}

func TestReserveRejectsTicketTypeOversell(t *testing.T) {
	app := newTestApp(t)
	_, reservations := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 2)

	require.NoError(t, reserveTx(app, reservations, event.Id, tt.Id, 2, "holder-1"))

	err := reserveTx(app, reservations, event.Id, tt.Id, 1, "holder-2")
	require.ErrorIs(t, err, status.ErrInsufficientInventory)

	assert.Equal(t, 2, soldCount(t, app, tt.Id))
}

func TestReserveRejectsEventCapacityOversell(t *testing.T) {
	app := newTestApp(t)
	_, reservations := newLedger(app)

	// The type alone would allow 5, the event caps the total at 2.
	event := seedEvent(t, app, 2)
	tt := seedTicketType(t, app, event.Id, 5)

	require.NoError(t, reserveTx(app, reservations, event.Id, tt.Id, 2, "holder-1"))

	err := reserveTx(app, reservations, event.Id, tt.Id, 1, "holder-2")
	require.ErrorIs(t, err, status.ErrInsufficientInventory)

	// The rejected increment rolled back with its transaction.
	assert.Equal(t, 2, soldCount(t, app, tt.Id))
}

func TestReserveRejectsUnpublishedEvent(t *testing.T) {
	app := newTestApp(t)
	_, reservations := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	event.Set("status", string(models.EventDraft))
	require.NoError(t, app.Save(event))

	err := reserveTx(app, reservations, event.Id, tt.Id, 1, "holder-1")
	require.ErrorIs(t, err, status.ErrEventNotOnSale)
	assert.Equal(t, 0, soldCount(t, app, tt.Id))

	event.Set("status", string(models.EventCancelled))
	require.NoError(t, app.Save(event))

	err = reserveTx(app, reservations, event.Id, tt.Id, 1, "holder-2")
	require.ErrorIs(t, err, status.ErrEventNotOnSale)
	assert.Equal(t, 0, soldCount(t, app, tt.Id))
}

func TestCreateSaleRollsBackOnInsufficientInventory(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 2)

	_, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      3,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, status.ErrInsufficientInventory)

	// No dangling sale row survives the rejected reservation.
	count, err := app.CountRecords("sales")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 0, soldCount(t, app, tt.Id))
}

func TestCompleteReplayIsNoOp(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	sale, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      2,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	applied, err := sales.Complete(sale.Id, "tx_100")
	require.NoError(t, err)
	require.True(t, applied)

	// A replayed confirmation reports not-applied and mints nothing.
	applied, err = sales.Complete(sale.Id, "tx_100")
	require.NoError(t, err)
	assert.False(t, applied)

	_, tickets, err := sales.GetSale(sale.Id)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, 2, soldCount(t, app, tt.Id))
}

func TestCompletedSaleIsImmutableToLateOutcomes(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	sale, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      2,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	applied, err := sales.Complete(sale.Id, "tx_200")
	require.NoError(t, err)
	require.True(t, applied)

	// A late decline and a late sweep both lose the compare-and-set.
	applied, err = sales.Fail(sale.Id, "gateway_declined")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = sales.Abandon(sale.Id, "payment_timeout")
	require.NoError(t, err)
	assert.False(t, applied)

	got, _, err := sales.GetSale(sale.Id)
	require.NoError(t, err)
	assert.Equal(t, string(models.SaleCompleted), got.GetString("status"))
	assert.Equal(t, 2, soldCount(t, app, tt.Id))
}

func TestAttachGatewayTxPreservesCompletedStatus(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	sale, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      1,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "pse",
	})
	require.NoError(t, err)

	// The confirmation lands before the checkout path gets around to
	// persisting the provider transaction id.
	applied, err := sales.Complete(sale.Id, "debit_300")
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, sales.AttachGatewayTx(sale.Id, "debit_300"))

	got, _, err := sales.GetSale(sale.Id)
	require.NoError(t, err)
	assert.Equal(t, string(models.SaleCompleted), got.GetString("status"))
	assert.Equal(t, "debit_300", got.GetString("gateway_tx_id"))
	assert.False(t, got.GetDateTime("completed_at").IsZero())

	// The sale stays out of the sweep's reach.
	applied, err = sales.Abandon(sale.Id, "payment_timeout")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, soldCount(t, app, tt.Id))
}

func TestCancelRestoresInventory(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	sale, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      2,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	applied, err := sales.Complete(sale.Id, "tx_400")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 2, soldCount(t, app, tt.Id))

	applied, err = sales.Cancel(sale.Id, "change_of_plans", Requester{Email: "fan@example.com"})
	require.NoError(t, err)
	require.True(t, applied)

	got, tickets, err := sales.GetSale(sale.Id)
	require.NoError(t, err)
	assert.Equal(t, string(models.SaleCancelled), got.GetString("status"))
	assert.Equal(t, 0, soldCount(t, app, tt.Id))
	for _, ticket := range tickets {
		assert.Equal(t, string(models.TicketCancelled), ticket.GetString("status"))
	}

	_, err = sales.Cancel(sale.Id, "change_of_plans", Requester{Email: "fan@example.com"})
	require.ErrorIs(t, err, status.ErrAlreadyCancelled)
}

func TestCancelRejectsStrangers(t *testing.T) {
	app := newTestApp(t)
	sales, _ := newLedger(app)

	event := seedEvent(t, app, 10)
	tt := seedTicketType(t, app, event.Id, 5)

	sale, err := sales.CreateSale(&CreateSaleRequest{
		EventID:       event.Id,
		TicketTypeID:  tt.Id,
		Quantity:      1,
		BuyerEmail:    "fan@example.com",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	_, err = sales.Cancel(sale.Id, "hijack", Requester{Email: "someone-else@example.com"})
	require.ErrorIs(t, err, status.ErrNotAuthorized)
}
