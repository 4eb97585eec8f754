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

		collection := core.NewBaseCollection("events")

		collection.Fields.Add(
			&core.TextField{Name: "title", Required: true, Max: 200},
			&core.TextField{Name: "description", Max: 5000},
			&core.RelationField{Name: "organizer", CollectionId: users.Id, MaxSelect: 1},
			&core.TextField{Name: "organizer_name", Max: 200},
			&core.TextField{Name: "category", Max: 100},
			&core.DateField{Name: "start_at", Required: true},
			&core.DateField{Name: "end_at", Required: true},
			&core.TextField{Name: "location", Max: 200},
			&core.TextField{Name: "venue", Max: 200},
			&core.NumberField{Name: "price"},
			&core.NumberField{Name: "capacity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "registered_count", OnlyInt: true},
			&core.URLField{Name: "image_url"},
			&core.JSONField{Name: "tags", MaxSize: 2000},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"draft", "published", "cancelled", "completed"},
			},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_events_status", false, "status", "")
		collection.AddIndex("idx_events_organizer", false, "organizer", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
