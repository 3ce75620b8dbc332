package migrations

import (
	"tickethub/models"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		ticketTypes, err := app.FindCollectionByNameOrId("ticket_types")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("sales")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "event_id",
				Required:     true,
				CollectionId: events.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "ticket_type_id",
				Required:     true,
				CollectionId: ticketTypes.Id,
				MaxSelect:    1,
			},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.JSONField{Name: "seat_ids", MaxSize: 4096},
			&core.TextField{Name: "buyer_name"},
			&core.TextField{Name: "buyer_email"},
			&core.TextField{Name: "buyer_phone"},
			&core.TextField{Name: "payment_method", Required: true},
			&core.TextField{Name: "total_amount", Required: true},
			&core.TextField{Name: "currency", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					string(models.SalePending),
					string(models.SaleCompleted),
					string(models.SaleFailed),
					string(models.SaleCancelled),
					string(models.SaleAbandoned),
				},
			},
			&core.SelectField{
				Name:      "transaction_type",
				MaxSelect: 1,
				Values: []string{
					string(models.TxDirectSale),
					string(models.TxPaymentAttempt),
					string(models.TxCartAbandon),
				},
			},
			&core.TextField{Name: "gateway_tx_id"},
			&core.TextField{Name: "failure_reason"},
			&core.TextField{Name: "session_id"},
			&core.TextField{Name: "client_ip"},
			&core.TextField{Name: "user_agent"},
			&core.DateField{Name: "completed_at"},
			&core.DateField{Name: "cancelled_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_sales_gateway_tx", false, "gateway_tx_id", "")
		collection.AddIndex("idx_sales_status_created", false, "status, created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("sales")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
