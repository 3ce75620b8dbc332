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
		sales, err := app.FindCollectionByNameOrId("sales")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "sale_id",
				Required:     true,
				CollectionId: sales.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "event_id",
				Required:     true,
				CollectionId: events.Id,
				MaxSelect:    1,
			},
			&core.TextField{Name: "seat_id"},
			&core.TextField{Name: "code", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					string(models.TicketValid),
					string(models.TicketUsed),
					string(models.TicketCancelled),
				},
			},
			&core.TextField{Name: "qr_payload"},
			&core.DateField{Name: "issued_at"},
			&core.DateField{Name: "used_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_code", true, "code", "")
		collection.AddIndex("idx_tickets_sale", false, "sale_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
