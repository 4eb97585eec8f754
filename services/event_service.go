package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"planora/models"
	"planora/internal/status"
)

// MaxRecommendations caps the personalized feed size.
const MaxRecommendations = 6

type EventService struct {
	app   *pocketbase.PocketBase
	Redis *redis.Client
}

func NewEventService(app *pocketbase.PocketBase, redisClient *redis.Client) *EventService {
	return &EventService{
		app:   app,
		Redis: redisClient,
	}
}

// registerScript reserves one registration slot atomically: duplicate joins
// are a silent no-op and the registrant count can never pass capacity, even
// under concurrent calls.
// KEYS[1] = event registrants set
// ARGV[1] = user id, ARGV[2] = capacity
// Returns {result, count} where result is "added", "already_registered" or
// "capacity_reached".
const registerScript = `
local is_member = redis.call('SISMEMBER', KEYS[1], ARGV[1])
if is_member == 1 then
    return {'already_registered', redis.call('SCARD', KEYS[1])}
end

local count = redis.call('SCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
    return {'capacity_reached', count}
end

redis.call('SADD', KEYS[1], ARGV[1])
return {'added', count + 1}
`

func registrantsKey(eventID string) string {
	return fmt.Sprintf("event:registrants:%s", eventID)
}

// Reserve atomically claims a registration slot for the user. Returns the
// new registrant count.
func (s *EventService) Reserve(ctx context.Context, eventID, userID string, capacity int) (int, error) {
	res, err := s.Redis.Eval(ctx, registerScript, []string{registrantsKey(eventID)}, userID, capacity).Result()
	if err != nil {
		return 0, fmt.Errorf("reserve: redis.Eval: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, fmt.Errorf("reserve: unexpected script reply: %v", res)
	}

	outcome, _ := reply[0].(string)
	count := int(toInt64(reply[1]))

	switch outcome {
	case "added":
		return count, nil
	case "already_registered":
		return count, status.ErrDuplicateRegistration
	case "capacity_reached":
		return count, status.ErrCapacityReached
	default:
		return 0, fmt.Errorf("reserve: unexpected outcome %q", outcome)
	}
}

// Release frees a previously reserved slot (failed or expired payment).
func (s *EventService) Release(ctx context.Context, eventID, userID string) (int, error) {
	key := registrantsKey(eventID)
	if err := s.Redis.SRem(ctx, key, userID).Err(); err != nil {
		return 0, fmt.Errorf("release: redis.SRem: %w", err)
	}

	count, err := s.Redis.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("release: redis.SCard: %w", err)
	}
	return int(count), nil
}

// SyncRegisteredCount mirrors the authoritative Redis registrant count onto
// the event record.
func (s *EventService) SyncRegisteredCount(ctx context.Context, eventID string, count int) error {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return err
	}

	record.Set("registered_count", count)
	return s.app.SaveWithContext(ctx, record)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// CreateEvent validates and stores a new event in draft or published state.
func (s *EventService) CreateEvent(ctx context.Context, ev *models.Event) (*models.Event, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	collection, err := s.app.FindCollectionByNameOrId("events")
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	applyEvent(record, ev)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, err
	}

	saved := recordToEvent(record)
	return &saved, nil
}

// UpdateEvent merges a partial patch into an existing event.
func (s *EventService) UpdateEvent(ctx context.Context, eventID string, patch *models.Event) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, err
	}

	current := recordToEvent(record)
	merged := mergeEvent(current, patch)
	if err := validateEvent(&merged); err != nil {
		return nil, err
	}

	applyEvent(record, &merged)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, err
	}

	saved := recordToEvent(record)
	return &saved, nil
}

// DeleteEvent removes the event and its registration set.
func (s *EventService) DeleteEvent(ctx context.Context, eventID string) error {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return err
	}

	if err := s.app.Delete(record); err != nil {
		return err
	}

	s.Redis.Del(ctx, registrantsKey(eventID))
	return nil
}

// GetEvent fetches a single event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, err
	}

	ev := recordToEvent(record)
	return &ev, nil
}

// ListPublished returns published events, newest first.
func (s *EventService) ListPublished(ctx context.Context, limit, offset int) ([]models.Event, error) {
	records, err := s.app.FindRecordsByFilter(
		"events",
		"status = {:status}",
		"-created",
		limit,
		offset,
		dbx.Params{"status": models.EventPublished},
	)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(records))
	for _, record := range records {
		events = append(events, recordToEvent(record))
	}
	return events, nil
}

// ListByOrganizer returns all events owned by the organizer.
func (s *EventService) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	records, err := s.app.FindRecordsByFilter(
		"events",
		"organizer = {:organizer}",
		"-created",
		0,
		0,
		dbx.Params{"organizer": organizerID},
	)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(records))
	for _, record := range records {
		events = append(events, recordToEvent(record))
	}
	return events, nil
}

// SearchEvents fetches the published catalog and applies the query filters.
func (s *EventService) SearchEvents(ctx context.Context, query, category, location string) ([]models.Event, error) {
	events, err := s.ListPublished(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	return FilterEvents(events, query, category, location), nil
}

// RecommendEvents fetches the published catalog and ranks it against the
// user's interests.
func (s *EventService) RecommendEvents(ctx context.Context, interests []string, sortBy string) ([]models.Event, error) {
	events, err := s.ListPublished(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	return RankByInterests(events, interests, sortBy), nil
}

// FilterEvents does case-insensitive substring matching over
// title/description/tags with optional category and location filters.
func FilterEvents(events []models.Event, query, category, location string) []models.Event {
	matched := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if !ev.MatchesQuery(query) {
			continue
		}
		if category != "" && !strings.EqualFold(ev.Category, category) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(ev.Location), strings.ToLower(location)) {
			continue
		}
		matched = append(matched, ev)
	}
	return matched
}

// RankByInterests keeps events whose tags or category intersect the user's
// interests, capped to MaxRecommendations. With sortBy "price" the result is
// non-decreasing by ticket price; otherwise input order is preserved.
func RankByInterests(events []models.Event, interests []string, sortBy string) []models.Event {
	lowered := make(map[string]bool, len(interests))
	for _, interest := range interests {
		lowered[strings.ToLower(interest)] = true
	}

	matched := make([]models.Event, 0, MaxRecommendations)
	for _, ev := range events {
		if !matchesInterests(&ev, lowered) {
			continue
		}
		matched = append(matched, ev)
	}

	if sortBy == "price" {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Price.LessThan(matched[j].Price)
		})
	}

	if len(matched) > MaxRecommendations {
		matched = matched[:MaxRecommendations]
	}
	return matched
}

func matchesInterests(ev *models.Event, interests map[string]bool) bool {
	if len(interests) == 0 {
		return false
	}
	if interests[strings.ToLower(ev.Category)] {
		return true
	}
	for _, tag := range ev.Tags {
		if interests[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

func validateEvent(ev *models.Event) error {
	if strings.TrimSpace(ev.Title) == "" {
		return errors.New("event: title is required")
	}
	if ev.EndAt.Before(ev.StartAt) {
		return errors.New("event: end date before start date")
	}
	if ev.Price.IsNegative() {
		return errors.New("event: price must not be negative")
	}
	if ev.Capacity <= 0 {
		return errors.New("event: capacity must be positive")
	}
	return nil
}

func mergeEvent(current models.Event, patch *models.Event) models.Event {
	merged := current
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.Description != "" {
		merged.Description = patch.Description
	}
	if patch.Category != "" {
		merged.Category = patch.Category
	}
	if !patch.StartAt.IsZero() {
		merged.StartAt = patch.StartAt
	}
	if !patch.EndAt.IsZero() {
		merged.EndAt = patch.EndAt
	}
	if patch.Location != "" {
		merged.Location = patch.Location
	}
	if patch.Venue != "" {
		merged.Venue = patch.Venue
	}
	if !patch.Price.IsZero() {
		merged.Price = patch.Price
	}
	if patch.Capacity != 0 {
		merged.Capacity = patch.Capacity
	}
	if patch.ImageURL != "" {
		merged.ImageURL = patch.ImageURL
	}
	if patch.Tags != nil {
		merged.Tags = patch.Tags
	}
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	return merged
}

func applyEvent(record *core.Record, ev *models.Event) {
	record.Set("title", ev.Title)
	record.Set("description", ev.Description)
	record.Set("organizer", ev.OrganizerID)
	record.Set("organizer_name", ev.OrganizerName)
	record.Set("category", ev.Category)
	record.Set("start_at", ev.StartAt)
	record.Set("end_at", ev.EndAt)
	record.Set("location", ev.Location)
	record.Set("venue", ev.Venue)
	record.Set("price", ev.Price.InexactFloat64())
	record.Set("capacity", ev.Capacity)
	record.Set("registered_count", ev.RegisteredCount)
	record.Set("image_url", ev.ImageURL)
	record.Set("tags", ev.Tags)
	record.Set("status", ev.Status)
}

func recordToEvent(record *core.Record) models.Event {
	return models.Event{
		ID:              record.Id,
		Title:           record.GetString("title"),
		Description:     record.GetString("description"),
		OrganizerID:     record.GetString("organizer"),
		OrganizerName:   record.GetString("organizer_name"),
		Category:        record.GetString("category"),
		StartAt:         record.GetDateTime("start_at").Time(),
		EndAt:           record.GetDateTime("end_at").Time(),
		Location:        record.GetString("location"),
		Venue:           record.GetString("venue"),
		Price:           decimal.NewFromFloat(record.GetFloat("price")),
		Capacity:        record.GetInt("capacity"),
		RegisteredCount: record.GetInt("registered_count"),
		ImageURL:        record.GetString("image_url"),
		Tags:            record.GetStringSlice("tags"),
		Status:          record.GetString("status"),
	}
}

// Upcoming reports whether the event has not started yet.
func Upcoming(ev *models.Event, now time.Time) bool {
	return ev.StartAt.After(now)
}
