package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"planora/models"
)

// NotificationService pushes per-user messages over PubNub. Every publish is
// fire and forget; a dropped notification never blocks the payment flow.
type NotificationService struct {
	pubnub *pubnub.PubNub
}

func NewNotificationService(pn *pubnub.PubNub) *NotificationService {
	return &NotificationService{pubnub: pn}
}

func userChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Notify pushes a typed toast style message to the user's channel.
func (s *NotificationService) Notify(ctx context.Context, userID, level, message string) {
	if s.pubnub == nil {
		return
	}

	_, st, err := s.pubnub.Publish().
		Channel(userChannel(userID)).
		Message(map[string]any{
			"type":    "notification",
			"level":   level,
			"message": message,
		}).
		Execute()
	if err != nil {
		slog.Warn("notification publish failed",
			"user", userID, "status_code", st.StatusCode, "error", err)
	}
}

// NotifyPayment reports a payment outcome to the user's channel.
func (s *NotificationService) NotifyPayment(ctx context.Context, userID string, n models.PaymentNotification) {
	if s.pubnub == nil {
		return
	}

	_, st, err := s.pubnub.Publish().
		Channel(userChannel(userID)).
		Message(map[string]any{
			"type":             "payment_status",
			"transaction_uuid": n.TransactionUUID,
			"status":           n.Status,
			"gateway_ref":      n.GatewayRef,
		}).
		Execute()
	if err != nil {
		slog.Warn("payment notification publish failed",
			"user", userID, "status_code", st.StatusCode, "error", err)
	}
}

// NotifyTicketIssued tells the user their ticket is ready.
func (s *NotificationService) NotifyTicketIssued(ctx context.Context, userID string, ticket *models.Ticket) {
	if s.pubnub == nil {
		return
	}

	_, st, err := s.pubnub.Publish().
		Channel(userChannel(userID)).
		Message(map[string]any{
			"type":        "ticket_issued",
			"ticket_id":   ticket.ID,
			"ticket_code": ticket.TicketCode,
			"event_title": ticket.EventTitle,
		}).
		Execute()
	if err != nil {
		slog.Warn("ticket notification publish failed",
			"user", userID, "status_code", st.StatusCode, "error", err)
	}
}

// NotifyEventUpdate fans an organizer's event change out to a per-event
// channel registrants subscribe to.
func (s *NotificationService) NotifyEventUpdate(ctx context.Context, eventID, change string) {
	if s.pubnub == nil {
		return
	}

	_, st, err := s.pubnub.Publish().
		Channel(fmt.Sprintf("event-%s", eventID)).
		Message(map[string]any{
			"type":     "event_update",
			"event_id": eventID,
			"change":   change,
		}).
		Execute()
	if err != nil {
		slog.Warn("event notification publish failed",
			"event", eventID, "status_code", st.StatusCode, "error", err)
	}
}
