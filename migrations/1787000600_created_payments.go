package migrations

import (
	"tickethub/models"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		sales, err := app.FindCollectionByNameOrId("sales")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "sale_id",
				Required:     true,
				CollectionId: sales.Id,
				MaxSelect:    1,
			},
			&core.TextField{Name: "gateway", Required: true},
			&core.TextField{Name: "gateway_tx_id"},
			&core.TextField{Name: "amount", Required: true},
			&core.TextField{Name: "currency", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					string(models.PaymentPending),
					string(models.PaymentApproved),
					string(models.PaymentDeclined),
					string(models.PaymentRefunded),
				},
			},
			&core.JSONField{Name: "raw_response", MaxSize: 65536},
			&core.DateField{Name: "processed_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_payments_sale", false, "sale_id", "")
		collection.AddIndex("idx_payments_gateway_tx", false, "gateway_tx_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
