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

		collection := core.NewBaseCollection("seats")

		collection.Fields.Add(
			&core.RelationField{
				Name:          "event_id",
				Required:      true,
				CollectionId:  events.Id,
				MaxSelect:     1,
				CascadeDelete: true,
			},
			&core.TextField{Name: "row", Required: true},
			&core.NumberField{Name: "number", Required: true, OnlyInt: true},
			&core.TextField{Name: "section"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					string(models.SeatAvailable),
					string(models.SeatReserved),
					string(models.SeatOccupied),
				},
			},
			&core.TextField{Name: "holder_id"},
			&core.DateField{Name: "reserved_at"},
			&core.DateField{Name: "occupied_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_seats_event_position", true, "event_id, `row`, number", "")
		collection.AddIndex("idx_seats_event_status", false, "event_id, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("seats")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
