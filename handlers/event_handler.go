package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/models"
	"planora/services"
)

type EventHandler struct {
	app       *pocketbase.PocketBase
	events    *services.EventService
	recommend *services.RecommendService
	notifier  *services.NotificationService
}

func NewEventHandler(app *pocketbase.PocketBase, events *services.EventService, recommend *services.RecommendService, notifier *services.NotificationService) *EventHandler {
	return &EventHandler{
		app:       app,
		events:    events,
		recommend: recommend,
		notifier:  notifier,
	}
}

// ListEvents - published catalog, paginated
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(e.Request.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	events, err := h.events.ListPublished(e.Request.Context(), limit, offset)
	if err != nil {
		return apis.NewBadRequestError("Failed to list events", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// GetEvent - single event; ?shape=legacy returns the old client field names
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	ev, err := h.events.GetEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}

	if e.Auth != nil && h.recommend != nil {
		// Views feed the recommender; never block the response on it.
		go h.recommend.TrackInteraction(context.Background(), e.Auth.Id, eventID, "view")
	}

	if e.Request.URL.Query().Get("shape") == "legacy" {
		return e.JSON(http.StatusOK, ev.ToDetails())
	}
	return e.JSON(http.StatusOK, ev)
}

// SearchEvents - q/category/location filters over the published catalog
func (h *EventHandler) SearchEvents(e *core.RequestEvent) error {
	query := e.Request.URL.Query()

	events, err := h.events.SearchEvents(
		e.Request.Context(),
		query.Get("q"),
		query.Get("category"),
		query.Get("location"),
	)
	if err != nil {
		return apis.NewBadRequestError("Search failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// RecommendedEvents - interest-based picks from the user's profile
func (h *EventHandler) RecommendedEvents(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	interests := e.Auth.GetStringSlice("interests")
	sortBy := e.Request.URL.Query().Get("sort")

	events, err := h.events.RecommendEvents(e.Request.Context(), interests, sortBy)
	if err != nil {
		return apis.NewBadRequestError("Failed to build recommendations", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// CreateEvent - organizer only
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	var ev models.Event
	if err := e.BindBody(&ev); err != nil {
		return apis.NewBadRequestError("Invalid event payload", err)
	}

	ev.OrganizerID = e.Auth.Id
	ev.OrganizerName = e.Auth.GetString("name")
	if ev.Status == "" {
		ev.Status = models.EventDraft
	}

	saved, err := h.events.CreateEvent(e.Request.Context(), &ev)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}

	return e.JSON(http.StatusCreated, saved)
}

// UpdateEvent - organizer only, own events
func (h *EventHandler) UpdateEvent(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	eventID := e.Request.PathValue("eventId")
	current, err := h.events.GetEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}
	if current.OrganizerID != e.Auth.Id {
		return apis.NewForbiddenError("Not your event", nil)
	}

	var patch models.Event
	if err := e.BindBody(&patch); err != nil {
		return apis.NewBadRequestError("Invalid event payload", err)
	}

	saved, err := h.events.UpdateEvent(e.Request.Context(), eventID, &patch)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}

	h.notifier.NotifyEventUpdate(e.Request.Context(), eventID, "updated")

	return e.JSON(http.StatusOK, saved)
}

// DeleteEvent - organizer only, own events
func (h *EventHandler) DeleteEvent(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	eventID := e.Request.PathValue("eventId")
	current, err := h.events.GetEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}
	if current.OrganizerID != e.Auth.Id {
		return apis.NewForbiddenError("Not your event", nil)
	}

	if err := h.events.DeleteEvent(e.Request.Context(), eventID); err != nil {
		return apis.NewBadRequestError("Failed to delete event", err)
	}

	h.notifier.NotifyEventUpdate(e.Request.Context(), eventID, "cancelled")

	return e.JSON(http.StatusOK, map[string]any{"deleted": eventID})
}

// MyEvents - the organizer's own events, drafts included
func (h *EventHandler) MyEvents(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	events, err := h.events.ListByOrganizer(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewBadRequestError("Failed to list events", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func requireOrganizer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.GetString("role") != models.RoleOrganizer {
		return apis.NewForbiddenError("Organizer role required", nil)
	}
	return nil
}
