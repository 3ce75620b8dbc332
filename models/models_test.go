package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaleStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SaleStatus
		to      SaleStatus
		allowed bool
	}{
		{"pending to completed", SalePending, SaleCompleted, true},
		{"pending to failed", SalePending, SaleFailed, true},
		{"pending to abandoned", SalePending, SaleAbandoned, true},
		{"completed to cancelled", SaleCompleted, SaleCancelled, true},
		{"completed to pending", SaleCompleted, SalePending, false},
		{"completed to completed", SaleCompleted, SaleCompleted, false},
		{"failed to completed", SaleFailed, SaleCompleted, false},
		{"cancelled anywhere", SaleCancelled, SalePending, false},
		{"abandoned to completed", SaleAbandoned, SaleCompleted, false},
		{"unknown status", SaleStatus("bogus"), SaleCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSaleStatus_IsTerminal(t *testing.T) {
	assert.True(t, SaleCompleted.IsTerminal())
	assert.True(t, SaleCancelled.IsTerminal())
	assert.False(t, SalePending.IsTerminal())
	assert.False(t, SaleFailed.IsTerminal())
	assert.False(t, SaleAbandoned.IsTerminal())
}

func TestSaleStatus_Valid(t *testing.T) {
	for _, s := range []SaleStatus{SalePending, SaleCompleted, SaleFailed, SaleCancelled, SaleAbandoned} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, SaleStatus("refunded").Valid())
	assert.False(t, SaleStatus("").Valid())
}

func TestSeatStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from    SeatStatus
		to      SeatStatus
		allowed bool
	}{
		{SeatAvailable, SeatReserved, true},
		{SeatReserved, SeatOccupied, true},
		{SeatReserved, SeatAvailable, true},
		{SeatOccupied, SeatAvailable, true},
		{SeatAvailable, SeatOccupied, false},
		{SeatOccupied, SeatReserved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTicketType_Available(t *testing.T) {
	tt := TicketType{Quantity: 100, Sold: 37}
	assert.Equal(t, 63, tt.Available())

	soldOut := TicketType{Quantity: 50, Sold: 50}
	assert.Equal(t, 0, soldOut.Available())
}
