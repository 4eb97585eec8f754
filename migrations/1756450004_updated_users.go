package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Adds the profile fields the catalog and recommender read: role drives the
// organizer gates, interests drive the interest-based picks.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.Add(
			&core.SelectField{
				Name:      "role",
				MaxSelect: 1,
				Values:    []string{"user", "organizer"},
			},
			&core.JSONField{Name: "interests", MaxSize: 2000},
			&core.URLField{Name: "avatar_url"},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.RemoveByName("role")
		collection.Fields.RemoveByName("interests")
		collection.Fields.RemoveByName("avatar_url")

		return app.Save(collection)
	})
}
