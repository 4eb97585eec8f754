package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "ticket_code", Required: true, Max: 20},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1},
			// Event snapshot taken at purchase time.
			&core.TextField{Name: "event_title", Max: 200},
			&core.DateField{Name: "event_date"},
			&core.TextField{Name: "venue", Max: 200},
			&core.TextField{Name: "location", Max: 200},
			&core.TextField{Name: "organizer_name", Max: 200},
			&core.NumberField{Name: "price"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "cancelled", "used"},
			},
			&core.TextField{Name: "holder_name", Max: 200},
			&core.EmailField{Name: "holder_email"},
			&core.TextField{Name: "holder_phone", Max: 15},
			&core.NumberField{Name: "holder_age", OnlyInt: true},
			&core.TextField{Name: "emergency_contact", Max: 15},
			&core.DateField{Name: "purchased_at"},
			&core.DateField{Name: "cancelled_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_user", false, "user", "")
		collection.AddIndex("idx_tickets_code", true, "ticket_code", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
