package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"planora/internal/status"
	"planora/models"
	"planora/utils"
)

type TicketService struct {
	app   *pocketbase.PocketBase
	Redis *redis.Client
}

func NewTicketService(app *pocketbase.PocketBase, redisClient *redis.Client) *TicketService {
	return &TicketService{
		app:   app,
		Redis: redisClient,
	}
}

func ticketsKey(userID string) string {
	return fmt.Sprintf("tickets:%s", userID)
}

// Issue creates a ticket after a verified payment. The event is snapshotted
// into the ticket so later event edits leave issued tickets untouched.
func (s *TicketService) Issue(ctx context.Context, userID string, ev *models.Event, booking models.BookingDetails, price decimal.Decimal) (*models.Ticket, error) {
	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("issue: find collection: %w", err)
	}

	code, err := utils.GenerateTicketCode()
	if err != nil {
		return nil, fmt.Errorf("issue: generate code: %w", err)
	}

	ticket := buildTicket(code, userID, ev, booking, price, time.Now())

	record := core.NewRecord(collection)
	applyTicket(record, &ticket)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("issue: save record: %w", err)
	}
	ticket.ID = record.Id

	if err := s.mirror(ctx, &ticket); err != nil {
		// The record is the source of truth, the mirror rebuilds lazily.
		slog.Warn("ticket mirror write failed", "ticket", ticket.ID, "error", err)
	}

	return &ticket, nil
}

// Cancel marks the ticket cancelled and returns the refund breakdown.
// Cancelling an already cancelled ticket returns the same breakdown and does
// not move the cancellation timestamp.
func (s *TicketService) Cancel(ctx context.Context, userID, ticketID string) (*models.Ticket, *models.RefundBreakdown, error) {
	record, err := s.findOwned(userID, ticketID)
	if err != nil {
		return nil, nil, err
	}

	ticket := recordToTicket(record)
	refund := ticket.Refund()

	if ticket.Status == models.TicketCancelled {
		return &ticket, &refund, nil
	}

	now := time.Now()
	ticket.Status = models.TicketCancelled
	ticket.CancelledAt = &now

	record.Set("status", models.TicketCancelled)
	record.Set("cancelled_at", now)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("cancel: save record: %w", err)
	}

	if err := s.mirror(ctx, &ticket); err != nil {
		slog.Warn("ticket mirror write failed", "ticket", ticket.ID, "error", err)
	}

	return &ticket, &refund, nil
}

// MarkUsed flags the ticket as consumed at the venue.
func (s *TicketService) MarkUsed(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	record, err := s.findOwned(userID, ticketID)
	if err != nil {
		return nil, err
	}

	ticket := recordToTicket(record)
	if ticket.Status != models.TicketActive {
		return nil, fmt.Errorf("mark used: ticket is %s", ticket.Status)
	}

	ticket.Status = models.TicketUsed
	record.Set("status", models.TicketUsed)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("mark used: save record: %w", err)
	}

	if err := s.mirror(ctx, &ticket); err != nil {
		slog.Warn("ticket mirror write failed", "ticket", ticket.ID, "error", err)
	}

	return &ticket, nil
}

// Get fetches one ticket owned by the user.
func (s *TicketService) Get(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	record, err := s.findOwned(userID, ticketID)
	if err != nil {
		return nil, err
	}

	ticket := recordToTicket(record)
	return &ticket, nil
}

// List returns the user's tickets, newest purchase first. It reads the Redis
// mirror and falls back to a full rebuild from the database when any mirrored
// entry fails to decode.
func (s *TicketService) List(ctx context.Context, userID string) ([]models.Ticket, error) {
	entries, err := s.Redis.HGetAll(ctx, ticketsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list: redis.HGetAll: %w", err)
	}

	if len(entries) == 0 {
		return s.Rebuild(ctx, userID)
	}

	tickets := make([]models.Ticket, 0, len(entries))
	for id, raw := range entries {
		var ticket models.Ticket
		if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
			slog.Warn("corrupt ticket entry, rebuilding mirror", "user", userID, "ticket", id)
			return s.Rebuild(ctx, userID)
		}
		tickets = append(tickets, ticket)
	}

	sortTickets(tickets)
	return tickets, nil
}

// Rebuild repopulates the user's ticket mirror from the database.
func (s *TicketService) Rebuild(ctx context.Context, userID string) ([]models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"user = {:user}",
		"-purchased_at",
		0,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("rebuild: find records: %w", err)
	}

	key := ticketsKey(userID)
	pipe := s.Redis.TxPipeline()
	pipe.Del(ctx, key)

	tickets := make([]models.Ticket, 0, len(records))
	for _, record := range records {
		ticket := recordToTicket(record)
		tickets = append(tickets, ticket)

		raw, err := json.Marshal(ticket)
		if err != nil {
			return nil, fmt.Errorf("rebuild: marshal ticket %s: %w", ticket.ID, err)
		}
		pipe.HSet(ctx, key, ticket.ID, raw)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("ticket mirror rebuild failed", "user", userID, "error", err)
	}

	sortTickets(tickets)
	return tickets, nil
}

// buildTicket snapshots the event into a fresh active ticket.
func buildTicket(code, userID string, ev *models.Event, booking models.BookingDetails, price decimal.Decimal, now time.Time) models.Ticket {
	return models.Ticket{
		TicketCode:    code,
		UserID:        userID,
		EventID:       ev.ID,
		EventTitle:    ev.Title,
		EventDate:     ev.StartAt,
		Venue:         ev.Venue,
		Location:      ev.Location,
		OrganizerName: ev.OrganizerName,
		Price:         price,
		Status:        models.TicketActive,
		Booking:       booking,
		PurchasedAt:   now,
	}
}

func (s *TicketService) mirror(ctx context.Context, ticket *models.Ticket) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("mirror: marshal: %w", err)
	}
	return s.Redis.HSet(ctx, ticketsKey(ticket.UserID), ticket.ID, raw).Err()
}

func (s *TicketService) findOwned(userID, ticketID string) (*core.Record, error) {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	if record.GetString("user") != userID {
		return nil, status.ErrTicketNotFound
	}
	return record, nil
}

func sortTickets(tickets []models.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].PurchasedAt.After(tickets[j].PurchasedAt)
	})
}

// PartitionTickets splits tickets into upcoming and past relative to now.
// Cancelled tickets keep their event-date bucket; every ticket lands in
// exactly one of the two groups.
func PartitionTickets(tickets []models.Ticket, now time.Time) (upcoming, past []models.Ticket) {
	upcoming = make([]models.Ticket, 0, len(tickets))
	past = make([]models.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if ticket.EventDate.After(now) {
			upcoming = append(upcoming, ticket)
		} else {
			past = append(past, ticket)
		}
	}
	return upcoming, past
}

// CountActive tallies tickets still in active state.
func CountActive(tickets []models.Ticket) int {
	n := 0
	for _, ticket := range tickets {
		if ticket.Status == models.TicketActive {
			n++
		}
	}
	return n
}

func applyTicket(record *core.Record, t *models.Ticket) {
	record.Set("ticket_code", t.TicketCode)
	record.Set("user", t.UserID)
	record.Set("event", t.EventID)
	record.Set("event_title", t.EventTitle)
	record.Set("event_date", t.EventDate)
	record.Set("venue", t.Venue)
	record.Set("location", t.Location)
	record.Set("organizer_name", t.OrganizerName)
	record.Set("price", t.Price.InexactFloat64())
	record.Set("status", t.Status)
	record.Set("holder_name", t.Booking.HolderName)
	record.Set("holder_email", t.Booking.HolderEmail)
	record.Set("holder_phone", t.Booking.HolderPhone)
	record.Set("holder_age", t.Booking.HolderAge)
	record.Set("emergency_contact", t.Booking.EmergencyContact)
	record.Set("purchased_at", t.PurchasedAt)
	if t.CancelledAt != nil {
		record.Set("cancelled_at", *t.CancelledAt)
	}
}

func recordToTicket(record *core.Record) models.Ticket {
	ticket := models.Ticket{
		ID:            record.Id,
		TicketCode:    record.GetString("ticket_code"),
		UserID:        record.GetString("user"),
		EventID:       record.GetString("event"),
		EventTitle:    record.GetString("event_title"),
		EventDate:     record.GetDateTime("event_date").Time(),
		Venue:         record.GetString("venue"),
		Location:      record.GetString("location"),
		OrganizerName: record.GetString("organizer_name"),
		Price:         decimal.NewFromFloat(record.GetFloat("price")),
		Status:        record.GetString("status"),
		Booking: models.BookingDetails{
			HolderName:       record.GetString("holder_name"),
			HolderEmail:      record.GetString("holder_email"),
			HolderPhone:      record.GetString("holder_phone"),
			HolderAge:        record.GetInt("holder_age"),
			EmergencyContact: record.GetString("emergency_contact"),
		},
		PurchasedAt: record.GetDateTime("purchased_at").Time(),
	}

	if cancelled := record.GetDateTime("cancelled_at").Time(); !cancelled.IsZero() {
		ticket.CancelledAt = &cancelled
	}
	return ticket
}
