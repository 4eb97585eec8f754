package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"planora/services"
)

type AdminHandler struct {
	app      *pocketbase.PocketBase
	events   *services.EventService
	payments *services.PaymentService
	redis    *redis.Client
}

func NewAdminHandler(app *pocketbase.PocketBase, events *services.EventService, payments *services.PaymentService, redisClient *redis.Client) *AdminHandler {
	return &AdminHandler{
		app:      app,
		events:   events,
		payments: payments,
		redis:    redisClient,
	}
}

// GetDashboard - per-event registration fill plus live payment session counts
func (h *AdminHandler) GetDashboard(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}
	ctx := e.Request.Context()

	events, err := h.events.ListByOrganizer(ctx, e.Auth.Id)
	if err != nil {
		return apis.NewBadRequestError("Failed to load events", err)
	}

	dashboard := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		registrants, _ := h.redis.SCard(ctx, "event:registrants:"+ev.ID).Result()

		fill := 0.0
		if ev.Capacity > 0 {
			fill = float64(registrants) / float64(ev.Capacity)
		}

		dashboard = append(dashboard, map[string]any{
			"event_id":    ev.ID,
			"title":       ev.Title,
			"status":      ev.Status,
			"capacity":    ev.Capacity,
			"registrants": registrants,
			"seats_left":  ev.SeatsLeft(),
			"fill_ratio":  fill,
		})
	}

	sessionKeys, _ := h.redis.Keys(ctx, "payment:*").Result()

	stateCounts := map[string]int{}
	for _, key := range sessionKeys {
		state, err := h.redis.HGet(ctx, key, "state").Result()
		if err != nil {
			continue
		}
		stateCounts[state]++
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": dashboard,
		"payments": map[string]any{
			"active_sessions": len(sessionKeys),
			"by_state":        stateCounts,
		},
	})
}

// GetPaymentSessions - live session list for one of the organizer's events
func (h *AdminHandler) GetPaymentSessions(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}
	ctx := e.Request.Context()

	ev, err := h.events.GetEvent(ctx, eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}
	if ev.OrganizerID != e.Auth.Id {
		return apis.NewForbiddenError("Not your event", nil)
	}

	keys, _ := h.redis.Keys(ctx, "payment:*").Result()

	sessions := []map[string]any{}
	for _, key := range keys {
		fields, err := h.redis.HGetAll(ctx, key).Result()
		if err != nil || fields["event"] != eventID {
			continue
		}
		sessions = append(sessions, map[string]any{
			"transaction_uuid": key[len("payment:"):],
			"state":            fields["state"],
			"user":             fields["user"],
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"sessions": sessions,
		"count":    len(sessions),
	})
}
