package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"planora/internal/status"
	"planora/models"
	"planora/monitoring"
	"planora/services"
)

type RegistrationHandler struct {
	app      *pocketbase.PocketBase
	events   *services.EventService
	payments *services.PaymentService
	tickets  *services.TicketService
	notifier *services.NotificationService
	monitor  *monitoring.Monitor
	validate *validator.Validate
}

func NewRegistrationHandler(
	app *pocketbase.PocketBase,
	events *services.EventService,
	payments *services.PaymentService,
	tickets *services.TicketService,
	notifier *services.NotificationService,
	monitor *monitoring.Monitor,
) *RegistrationHandler {
	return &RegistrationHandler{
		app:      app,
		events:   events,
		payments: payments,
		tickets:  tickets,
		notifier: notifier,
		monitor:  monitor,
		validate: validator.New(),
	}
}

type registerRequest struct {
	Booking  models.BookingDetails `json:"booking"`
	Provider string                `json:"provider,omitempty"`
}

// Register - claim a slot on a published event and open a payment session.
// Free events skip the payment machine and issue the ticket immediately.
func (h *RegistrationHandler) Register(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()
	userID := e.Auth.Id

	var req registerRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid registration payload", err)
	}
	if err := h.validate.Struct(&req.Booking); err != nil {
		return apis.NewBadRequestError("Invalid booking details", err)
	}

	ev, err := h.events.GetEvent(ctx, eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}
	if ev.Status != models.EventPublished {
		return apis.NewBadRequestError(status.ErrEventNotPublished.Error(), nil)
	}

	count, err := h.events.Reserve(ctx, eventID, userID, ev.Capacity)
	switch {
	case errors.Is(err, status.ErrDuplicateRegistration):
		// Joining twice is a no-op, but hand back the existing registration
		// so a lost response does not strand an in-flight payment.
		h.monitor.TrackRegistration(eventID, "duplicate")
		resp := map[string]any{
			"already_registered": true,
			"event_id":           eventID,
		}
		if p := h.latestParticipation(userID, eventID); p != nil {
			resp["registration"] = p
		}
		return e.JSON(http.StatusOK, resp)
	case errors.Is(err, status.ErrCapacityReached):
		h.monitor.TrackRegistration(eventID, "capacity_reached")
		return apis.NewBadRequestError("Event is full", nil)
	case err != nil:
		return apis.NewBadRequestError("Registration failed", err)
	}
	h.monitor.TrackRegistration(eventID, "added")

	if err := h.events.SyncRegisteredCount(ctx, eventID, count); err != nil {
		h.app.Logger().Warn("sync registered count failed", "event", eventID, "error", err)
	}

	record, err := h.createParticipation(e, ev, &req.Booking)
	if err != nil {
		h.events.Release(ctx, eventID, userID)
		return apis.NewBadRequestError("Registration failed", err)
	}

	// Free events complete right here.
	if ev.Price.IsZero() {
		ticket, err := h.tickets.Issue(ctx, userID, ev, req.Booking, ev.Price)
		if err != nil {
			h.events.Release(ctx, eventID, userID)
			return apis.NewBadRequestError("Ticket issue failed", err)
		}
		h.confirmParticipation(e, record.Id)
		h.notifier.NotifyTicketIssued(ctx, userID, ticket)

		return e.JSON(http.StatusCreated, map[string]any{
			"ticket":           ticket,
			"payment_required": false,
		})
	}

	session, err := h.payments.CreateSession(ctx, userID, eventID, record.Id, ev.Price, req.Provider)
	if err != nil {
		h.events.Release(ctx, eventID, userID)
		return apis.NewBadRequestError("Failed to open payment session", err)
	}

	// The stored transaction UUID lets the user resume this session from
	// their registrations after losing this response.
	record.Set("transaction_uuid", session.TransactionUUID)
	if err := h.app.SaveWithContext(ctx, record); err != nil {
		h.app.Logger().Warn("attach transaction to participation failed",
			"participation", record.Id, "error", err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"payment_required": true,
		"session":          session,
	})
}

func (h *RegistrationHandler) createParticipation(e *core.RequestEvent, ev *models.Event, booking *models.BookingDetails) (*core.Record, error) {
	collection, err := h.app.FindCollectionByNameOrId("participations")
	if err != nil {
		return nil, err
	}

	rawBooking, err := json.Marshal(booking)
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	record.Set("user", e.Auth.Id)
	record.Set("event", ev.ID)
	record.Set("amount", ev.Price.InexactFloat64())
	record.Set("currency", "NPR")
	record.Set("status", models.ParticipationPending)
	record.Set("booking", string(rawBooking))

	if err := h.app.SaveWithContext(e.Request.Context(), record); err != nil {
		return nil, err
	}
	return record, nil
}

// latestParticipation returns the user's most recent registration on the
// event, nil when none exists.
func (h *RegistrationHandler) latestParticipation(userID, eventID string) *models.Participation {
	records, err := h.app.FindRecordsByFilter(
		"participations",
		"user = {:user} && event = {:event}",
		"-created",
		1,
		0,
		dbx.Params{"user": userID, "event": eventID},
	)
	if err != nil || len(records) == 0 {
		return nil
	}
	p := recordToParticipation(records[0])
	return &p
}

func recordToParticipation(record *core.Record) models.Participation {
	return models.Participation{
		ID:              record.Id,
		UserID:          record.GetString("user"),
		EventID:         record.GetString("event"),
		Amount:          decimal.NewFromFloat(record.GetFloat("amount")),
		Currency:        record.GetString("currency"),
		Status:          record.GetString("status"),
		TransactionUUID: record.GetString("transaction_uuid"),
		CreatedAt:       record.GetDateTime("created").Time(),
	}
}

func (h *RegistrationHandler) confirmParticipation(e *core.RequestEvent, participationID string) {
	record, err := h.app.FindRecordById("participations", participationID)
	if err != nil {
		return
	}
	record.Set("status", models.ParticipationConfirmed)
	if err := h.app.SaveWithContext(e.Request.Context(), record); err != nil {
		h.app.Logger().Warn("confirm participation failed", "participation", participationID, "error", err)
	}
}

// MyRegistrations - the user's participations with their current status
func (h *RegistrationHandler) MyRegistrations(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	records, err := h.app.FindRecordsByFilter(
		"participations",
		"user = {:user}",
		"-created",
		0,
		0,
		dbx.Params{"user": e.Auth.Id},
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to list registrations", err)
	}

	participations := make([]models.Participation, 0, len(records))
	for _, record := range records {
		participations = append(participations, recordToParticipation(record))
	}

	return e.JSON(http.StatusOK, map[string]any{
		"registrations": participations,
		"count":         len(participations),
	})
}
