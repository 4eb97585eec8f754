package handlers

import (
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToParticipation_CarriesTransactionUUID(t *testing.T) {
	created, err := types.ParseDateTime(time.Now())
	require.NoError(t, err)

	record := core.NewRecord(core.NewBaseCollection("participations"))
	record.Id = "part1"
	record.Set("user", "user1")
	record.Set("event", "ev1")
	record.Set("amount", 500.0)
	record.Set("currency", "NPR")
	record.Set("status", "pending")
	record.Set("transaction_uuid", "11-201-13")
	record.Set("created", created)

	p := recordToParticipation(record)

	assert.Equal(t, "part1", p.ID)
	assert.Equal(t, "user1", p.UserID)
	assert.Equal(t, "ev1", p.EventID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "NPR", p.Currency)
	assert.Equal(t, "pending", p.Status)

	// The transaction UUID is what lets a user resume an in-flight payment
	// session after losing the original register response.
	assert.Equal(t, "11-201-13", p.TransactionUUID)
	assert.False(t, p.CreatedAt.IsZero())
}
