package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/internal/status"
	"planora/models"
)

func testEvent(id, title, category, location string, price float64, tags ...string) models.Event {
	return models.Event{
		ID:       id,
		Title:    title,
		Category: category,
		Location: location,
		Price:    decimal.NewFromFloat(price),
		Tags:     tags,
		Status:   models.EventPublished,
	}
}

func TestEventService_Reserve_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &EventService{Redis: db}

	mock.ExpectEval(registerScript, []string{"event:registrants:ev1"}, "user1", 100).
		SetVal([]interface{}{"added", int64(5)})

	count, err := svc.Reserve(context.Background(), "ev1", "user1", 100)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventService_Reserve_Duplicate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &EventService{Redis: db}

	mock.ExpectEval(registerScript, []string{"event:registrants:ev1"}, "user1", 100).
		SetVal([]interface{}{"already_registered", int64(5)})

	count, err := svc.Reserve(context.Background(), "ev1", "user1", 100)
	assert.ErrorIs(t, err, status.ErrDuplicateRegistration)
	assert.Equal(t, 5, count)
}

func TestEventService_Reserve_CapacityReached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &EventService{Redis: db}

	mock.ExpectEval(registerScript, []string{"event:registrants:ev1"}, "user2", 5).
		SetVal([]interface{}{"capacity_reached", int64(5)})

	_, err := svc.Reserve(context.Background(), "ev1", "user2", 5)
	assert.ErrorIs(t, err, status.ErrCapacityReached)
}

func TestEventService_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &EventService{Redis: db}

	mock.ExpectSRem("event:registrants:ev1", "user1").SetVal(1)
	mock.ExpectSCard("event:registrants:ev1").SetVal(4)

	count, err := svc.Release(context.Background(), "ev1", "user1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterEvents(t *testing.T) {
	events := []models.Event{
		testEvent("1", "Jazz Night", "music", "Kathmandu", 500, "jazz", "live"),
		testEvent("2", "Tech Meetup", "technology", "Pokhara", 0, "golang"),
		testEvent("3", "Food Festival", "food", "Kathmandu", 300, "street-food"),
	}

	t.Run("query matches title case-insensitively", func(t *testing.T) {
		got := FilterEvents(events, "jazz", "", "")
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].ID)
	})

	t.Run("query matches tags", func(t *testing.T) {
		got := FilterEvents(events, "golang", "", "")
		require.Len(t, got, 1)
		assert.Equal(t, "2", got[0].ID)
	})

	t.Run("category filter is exact", func(t *testing.T) {
		got := FilterEvents(events, "", "Food", "")
		require.Len(t, got, 1)
		assert.Equal(t, "3", got[0].ID)
	})

	t.Run("location filter is substring", func(t *testing.T) {
		got := FilterEvents(events, "", "", "kathmandu")
		assert.Len(t, got, 2)
	})

	t.Run("empty filters return everything", func(t *testing.T) {
		got := FilterEvents(events, "", "", "")
		assert.Len(t, got, 3)
	})

	t.Run("no match returns empty slice", func(t *testing.T) {
		got := FilterEvents(events, "opera", "", "")
		assert.Empty(t, got)
	})
}

func TestRankByInterests(t *testing.T) {
	events := []models.Event{
		testEvent("1", "Jazz Night", "music", "", 500, "jazz"),
		testEvent("2", "Rock Concert", "music", "", 200, "rock"),
		testEvent("3", "Tech Meetup", "technology", "", 0, "golang"),
		testEvent("4", "Food Festival", "food", "", 300),
	}

	t.Run("matches category or tags", func(t *testing.T) {
		got := RankByInterests(events, []string{"Music"}, "")
		assert.Len(t, got, 2)
	})

	t.Run("no interests yields nothing", func(t *testing.T) {
		got := RankByInterests(events, nil, "")
		assert.Empty(t, got)
	})

	t.Run("price sort is non-decreasing", func(t *testing.T) {
		got := RankByInterests(events, []string{"music", "technology", "food"}, "price")
		require.Len(t, got, 4)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i-1].Price.LessThanOrEqual(got[i].Price),
				"price order broken at %d", i)
		}
	})

	t.Run("result is capped", func(t *testing.T) {
		many := make([]models.Event, 0, 10)
		for i := 0; i < 10; i++ {
			many = append(many, testEvent("x", "Show", "music", "", float64(i)))
		}
		got := RankByInterests(many, []string{"music"}, "")
		assert.Len(t, got, MaxRecommendations)
	})
}

func TestValidateEvent(t *testing.T) {
	start := time.Now()
	valid := models.Event{
		Title:    "Jazz Night",
		StartAt:  start,
		EndAt:    start.Add(2 * time.Hour),
		Price:    decimal.NewFromInt(500),
		Capacity: 100,
	}
	assert.NoError(t, validateEvent(&valid))

	missingTitle := valid
	missingTitle.Title = "  "
	assert.Error(t, validateEvent(&missingTitle))

	backwards := valid
	backwards.EndAt = start.Add(-time.Hour)
	assert.Error(t, validateEvent(&backwards))

	negativePrice := valid
	negativePrice.Price = decimal.NewFromInt(-1)
	assert.Error(t, validateEvent(&negativePrice))

	zeroCapacity := valid
	zeroCapacity.Capacity = 0
	assert.Error(t, validateEvent(&zeroCapacity))
}

func TestMergeEvent(t *testing.T) {
	current := testEvent("1", "Jazz Night", "music", "Kathmandu", 500, "jazz")
	current.Capacity = 100

	merged := mergeEvent(current, &models.Event{Title: "Jazz Evening", Capacity: 150})

	assert.Equal(t, "Jazz Evening", merged.Title)
	assert.Equal(t, 150, merged.Capacity)
	assert.Equal(t, "music", merged.Category)
	assert.True(t, merged.Price.Equal(current.Price))
}
