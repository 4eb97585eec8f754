package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/internal/status"
	"planora/services"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		tickets: tickets,
	}
}

// ListTickets - the user's tickets; ?partition=true splits upcoming/past
func (h *TicketHandler) ListTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	tickets, err := h.tickets.List(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewBadRequestError("Failed to list tickets", err)
	}

	if e.Request.URL.Query().Get("partition") == "true" {
		upcoming, past := services.PartitionTickets(tickets, time.Now())
		return e.JSON(http.StatusOK, map[string]any{
			"upcoming": upcoming,
			"past":     past,
			"active":   services.CountActive(tickets),
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// GetTicket - one ticket, owner only
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.tickets.Get(e.Request.Context(), e.Auth.Id, e.Request.PathValue("ticketId"))
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}

	return e.JSON(http.StatusOK, ticket)
}

// CancelTicket - cancel with the fixed refund split; repeat calls return the
// same breakdown
func (h *TicketHandler) CancelTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, refund, err := h.tickets.Cancel(e.Request.Context(), e.Auth.Id, e.Request.PathValue("ticketId"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewBadRequestError("Cancellation failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket": ticket,
		"refund": refund,
	})
}

// MarkTicketUsed - venue check-in, organizer only
func (h *TicketHandler) MarkTicketUsed(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	userID := e.Request.URL.Query().Get("user")
	if userID == "" {
		return apis.NewBadRequestError("Missing user", nil)
	}

	ticket, err := h.tickets.MarkUsed(e.Request.Context(), userID, e.Request.PathValue("ticketId"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewBadRequestError(err.Error(), nil)
	}

	return e.JSON(http.StatusOK, ticket)
}
