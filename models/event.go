package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventDraft     = "draft"
	EventPublished = "published"
	EventCancelled = "cancelled"
	EventCompleted = "completed"
)

// Event is the single canonical event record. The browser clients
// historically spoke two overlapping shapes (price/capacity/registeredCount
// vs ticketPrice/maxAttendees/currentAttendees); both map onto this one via
// EventDetails.
type Event struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	OrganizerID     string          `json:"organizer_id"`
	OrganizerName   string          `json:"organizer_name,omitempty"`
	Category        string          `json:"category"`
	StartAt         time.Time       `json:"start_at"`
	EndAt           time.Time       `json:"end_at"`
	Location        string          `json:"location"`
	Venue           string          `json:"venue"`
	Price           decimal.Decimal `json:"price"`
	Capacity        int             `json:"capacity"`
	RegisteredCount int             `json:"registered_count"`
	ImageURL        string          `json:"image_url,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Status          string          `json:"status"` // draft, published, cancelled, completed
}

// EventDetails is the legacy API shape still spoken by older clients.
type EventDetails struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	OrganizerName    string          `json:"organizerName,omitempty"`
	Category         string          `json:"category"`
	StartAt          time.Time       `json:"startDate"`
	EndAt            time.Time       `json:"endDate"`
	Location         string          `json:"location"`
	Venue            string          `json:"venue"`
	TicketPrice      decimal.Decimal `json:"ticketPrice"`
	MaxAttendees     int             `json:"maxAttendees"`
	CurrentAttendees int             `json:"currentAttendees"`
	ImageURL         string          `json:"imageUrl,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Status           string          `json:"status"`
}

// ToDetails maps the canonical record onto the legacy field names.
func (e *Event) ToDetails() EventDetails {
	return EventDetails{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		OrganizerName:    e.OrganizerName,
		Category:         e.Category,
		StartAt:          e.StartAt,
		EndAt:            e.EndAt,
		Location:         e.Location,
		Venue:            e.Venue,
		TicketPrice:      e.Price,
		MaxAttendees:     e.Capacity,
		CurrentAttendees: e.RegisteredCount,
		ImageURL:         e.ImageURL,
		Tags:             e.Tags,
		Status:           e.Status,
	}
}

// ToEvent maps a legacy payload back to the canonical record.
func (d *EventDetails) ToEvent() Event {
	return Event{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		OrganizerName:   d.OrganizerName,
		Category:        d.Category,
		StartAt:         d.StartAt,
		EndAt:           d.EndAt,
		Location:        d.Location,
		Venue:           d.Venue,
		Price:           d.TicketPrice,
		Capacity:        d.MaxAttendees,
		RegisteredCount: d.CurrentAttendees,
		ImageURL:        d.ImageURL,
		Tags:            d.Tags,
		Status:          d.Status,
	}
}

// SeatsLeft returns remaining capacity, never negative.
func (e *Event) SeatsLeft() int {
	left := e.Capacity - e.RegisteredCount
	if left < 0 {
		return 0
	}
	return left
}

// MatchesQuery reports whether the event matches a case-insensitive
// substring query over title, description and tags.
func (e *Event) MatchesQuery(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Description), q) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
