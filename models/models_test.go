package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []PaymentState{StateCreated, StateInitiated, StateRedirected, StateVerifying, StateVerified}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]),
			"expected %s -> %s to be legal", path[i], path[i+1])
	}
}

func TestCanTransition_RejectsIllegalEdges(t *testing.T) {
	illegal := []struct {
		from, to PaymentState
	}{
		{StateCreated, StateVerified},
		{StateCreated, StateVerifying},
		{StateVerified, StateFailed},
		{StateFailed, StateVerifying},
		{StateExpired, StateInitiated},
		{StateCancelled, StateVerified},
		{StateVerifying, StateCancelled},
	}

	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to),
			"expected %s -> %s to be rejected", tc.from, tc.to)
	}
}

func TestPaymentState_Terminal(t *testing.T) {
	for _, s := range []PaymentState{StateVerified, StateFailed, StateCancelled, StateExpired} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []PaymentState{StateCreated, StateInitiated, StateRedirected, StateVerifying} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestTicket_RefundSplit(t *testing.T) {
	ticket := Ticket{Price: decimal.NewFromInt(2500)}

	refund := ticket.Refund()

	assert.True(t, refund.CancellationFee.Equal(decimal.NewFromInt(250)), "cancellation fee: %s", refund.CancellationFee)
	assert.True(t, refund.PlatformFee.Equal(decimal.NewFromInt(250)), "platform fee: %s", refund.PlatformFee)
	assert.True(t, refund.RefundAmount.Equal(decimal.NewFromInt(2000)), "refund: %s", refund.RefundAmount)
}

func TestTicket_RefundSplitSumsToPrice(t *testing.T) {
	prices := []string{"2500", "999.99", "1", "0.05", "123456.78"}

	for _, p := range prices {
		price, err := decimal.NewFromString(p)
		require.NoError(t, err)

		refund := (&Ticket{Price: price}).Refund()
		total := refund.CancellationFee.Add(refund.PlatformFee).Add(refund.RefundAmount)

		assert.True(t, total.Equal(price), "price %s: parts sum to %s", p, total)
	}
}

func TestSuggestSentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, SuggestSentiment(5))
	assert.Equal(t, SentimentPositive, SuggestSentiment(4))
	assert.Equal(t, SentimentNeutral, SuggestSentiment(3))
	assert.Equal(t, SentimentNegative, SuggestSentiment(2))
	assert.Equal(t, SentimentNegative, SuggestSentiment(1))
}

func TestEvent_DetailsRoundTrip(t *testing.T) {
	event := Event{
		ID:              "evt-1",
		Title:           "Kathmandu Tech Meetup",
		Description:     "Monthly developer gathering",
		OrganizerName:   "Planora Labs",
		Category:        "technology",
		StartAt:         time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC),
		EndAt:           time.Date(2026, 9, 12, 21, 0, 0, 0, time.UTC),
		Location:        "Kathmandu",
		Venue:           "Labim Mall Hall",
		Price:           decimal.NewFromInt(2500),
		Capacity:        1000,
		RegisteredCount: 750,
		Tags:            []string{"tech", "networking"},
		Status:          EventPublished,
	}

	details := event.ToDetails()
	assert.True(t, details.TicketPrice.Equal(event.Price))
	assert.Equal(t, event.Capacity, details.MaxAttendees)
	assert.Equal(t, event.RegisteredCount, details.CurrentAttendees)

	back := details.ToEvent()
	back.OrganizerID = event.OrganizerID
	assert.Equal(t, event, back)
}

func TestEvent_LegacyFieldNames(t *testing.T) {
	details := (&Event{
		Price:           decimal.NewFromInt(1200),
		Capacity:        50,
		RegisteredCount: 10,
	}).ToDetails()

	data, err := json.Marshal(details)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "ticketPrice")
	assert.Contains(t, raw, "maxAttendees")
	assert.Contains(t, raw, "currentAttendees")
	assert.NotContains(t, raw, "registered_count")
}

func TestEvent_MatchesQuery(t *testing.T) {
	event := Event{
		Title:       "Tech Summit 2026",
		Description: "The largest developer conference in Nepal",
		Tags:        []string{"conference", "ai"},
	}

	assert.True(t, event.MatchesQuery("tech"))
	assert.True(t, event.MatchesQuery("TECH"))
	assert.True(t, event.MatchesQuery("developer"))
	assert.True(t, event.MatchesQuery("ai"))
	assert.True(t, event.MatchesQuery(""))
	assert.False(t, event.MatchesQuery("music"))
}

func TestEvent_SeatsLeft(t *testing.T) {
	assert.Equal(t, 250, (&Event{Capacity: 1000, RegisteredCount: 750}).SeatsLeft())
	assert.Equal(t, 0, (&Event{Capacity: 10, RegisteredCount: 10}).SeatsLeft())
	assert.Equal(t, 0, (&Event{Capacity: 10, RegisteredCount: 12}).SeatsLeft())
}

func TestTicket_JSONDatesExact(t *testing.T) {
	purchased := time.Date(2026, 8, 29, 10, 30, 45, 123000000, time.UTC)
	eventDate := time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC)

	ticket := Ticket{
		ID:          "ticket-1",
		TicketCode:  "PLT-4F7A21BC",
		EventDate:   eventDate,
		Price:       decimal.NewFromInt(2500),
		Status:      TicketActive,
		PurchasedAt: purchased,
	}

	data, err := json.Marshal(ticket)
	require.NoError(t, err)

	var got Ticket
	require.NoError(t, json.Unmarshal(data, &got))

	// Round trip must reconstruct the exact instants, not approximations.
	assert.True(t, got.EventDate.Equal(eventDate))
	assert.True(t, got.PurchasedAt.Equal(purchased))
	assert.Nil(t, got.CancelledAt)
}

func TestPaymentSession_JSONSerialization(t *testing.T) {
	created := time.Now()
	completed := created.Add(2 * time.Minute)

	session := PaymentSession{
		TransactionUUID: "4e8f1c3a-0000-0000-0000-000000000001",
		ParticipationID: "part-1",
		UserID:          "user-1",
		EventID:         "evt-1",
		Amount:          decimal.NewFromInt(2500),
		Currency:        "NPR",
		Provider:        "esewa",
		State:           StateVerified,
		CreatedAt:       created,
		UpdatedAt:       completed,
		ExpiresAt:       created.Add(10 * time.Minute),
		CompletedAt:     &completed,
	}

	data, err := json.Marshal(session)
	require.NoError(t, err)

	var got PaymentSession
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, session.TransactionUUID, got.TransactionUUID)
	assert.Equal(t, session.State, got.State)
	assert.True(t, got.Amount.Equal(session.Amount))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
}
