package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/models"
)

func testTicket(id string, eventDate, purchasedAt time.Time, state string) models.Ticket {
	return models.Ticket{
		ID:          id,
		TicketCode:  "PLT-" + id,
		UserID:      "user1",
		EventID:     "ev1",
		EventTitle:  "Jazz Night",
		EventDate:   eventDate,
		Price:       decimal.NewFromInt(500),
		Status:      state,
		PurchasedAt: purchasedAt,
	}
}

func TestBuildTicket_SnapshotsEvent(t *testing.T) {
	now := time.Now()
	ev := testEvent("ev1", "Jazz Night", "music", "Kathmandu", 500)
	ev.Venue = "Patan Hall"
	ev.OrganizerName = "Org One"
	ev.StartAt = now.Add(72 * time.Hour)

	booking := models.BookingDetails{HolderName: "Asha", HolderEmail: "asha@example.com"}

	ticket := buildTicket("PLT-ABC123", "user1", &ev, booking, ev.Price, now)

	assert.Equal(t, "PLT-ABC123", ticket.TicketCode)
	assert.Equal(t, models.TicketActive, ticket.Status)
	assert.Equal(t, "user1", ticket.UserID)
	assert.Equal(t, ev.ID, ticket.EventID)
	assert.Equal(t, ev.Title, ticket.EventTitle)
	assert.Equal(t, ev.StartAt, ticket.EventDate)
	assert.Equal(t, "Patan Hall", ticket.Venue)
	assert.Equal(t, "Org One", ticket.OrganizerName)
	assert.True(t, ticket.Price.Equal(ev.Price))
	assert.Equal(t, booking, ticket.Booking)
	assert.Equal(t, now, ticket.PurchasedAt)
}

func TestTicketService_List_FromMirror(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := &TicketService{Redis: db}

	now := time.Now()
	older := testTicket("t1", now.Add(24*time.Hour), now.Add(-2*time.Hour), models.TicketActive)
	newer := testTicket("t2", now.Add(48*time.Hour), now.Add(-time.Hour), models.TicketActive)

	rawOlder, err := json.Marshal(older)
	require.NoError(t, err)
	rawNewer, err := json.Marshal(newer)
	require.NoError(t, err)

	mock.ExpectHGetAll("tickets:user1").SetVal(map[string]string{
		"t1": string(rawOlder),
		"t2": string(rawNewer),
	})

	tickets, err := svc.List(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	// Newest purchase first.
	assert.Equal(t, "t2", tickets[0].ID)
	assert.Equal(t, "t1", tickets[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPartitionTickets(t *testing.T) {
	now := time.Now()
	tickets := []models.Ticket{
		testTicket("future", now.Add(24*time.Hour), now, models.TicketActive),
		testTicket("past", now.Add(-24*time.Hour), now, models.TicketActive),
		testTicket("cancelled-future", now.Add(48*time.Hour), now, models.TicketCancelled),
		testTicket("exactly-now", now, now, models.TicketActive),
	}

	upcoming, past := PartitionTickets(tickets, now)

	// Every ticket lands in exactly one bucket.
	assert.Equal(t, len(tickets), len(upcoming)+len(past))

	assert.Len(t, upcoming, 2)
	assert.Len(t, past, 2)

	// Cancelled tickets keep their event-date bucket.
	var ids []string
	for _, tk := range upcoming {
		ids = append(ids, tk.ID)
	}
	assert.Contains(t, ids, "cancelled-future")
}

func TestCountActive(t *testing.T) {
	now := time.Now()
	tickets := []models.Ticket{
		testTicket("a", now, now, models.TicketActive),
		testTicket("b", now, now, models.TicketCancelled),
		testTicket("c", now, now, models.TicketUsed),
		testTicket("d", now, now, models.TicketActive),
	}

	assert.Equal(t, 2, CountActive(tickets))
}

func TestTicketRefund_PartsSumToPrice(t *testing.T) {
	for _, price := range []string{"500", "333.33", "0.01", "999.99"} {
		ticket := models.Ticket{Price: decimal.RequireFromString(price)}
		refund := ticket.Refund()

		sum := refund.CancellationFee.Add(refund.PlatformFee).Add(refund.RefundAmount)
		assert.True(t, sum.Equal(ticket.Price), "price %s: parts sum to %s", price, sum)
	}
}
