package khalti

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/internal/status"
)

func TestVerifyWebhookSecret(t *testing.T) {
	hash, err := HashWebhookSecret("relay-secret")
	require.NoError(t, err)

	assert.True(t, VerifyWebhookSecret(hash, "relay-secret"))
	assert.False(t, VerifyWebhookSecret(hash, "wrong-secret"))
	assert.False(t, VerifyWebhookSecret(hash, ""))
}

func TestVerifyWebhookSecret_NoHashConfigured(t *testing.T) {
	assert.True(t, VerifyWebhookSecret("", "anything"))
}

func TestPayload_ToDomain(t *testing.T) {
	p := payload{
		Pidx:    "bZQLD9wRVWo4CdESSfuSsB",
		OrderID: "tx-42",
		Status:  "Completed",
		Amount:  decimal.NewFromInt(1000),
		Payer:   "Ram Bahadur",
		PaidAt:  "2026-08-29 10:30:45",
	}

	tran, err := p.ToDomain()
	require.NoError(t, err)

	assert.Equal(t, "tx-42", tran.UUID)
	assert.Equal(t, "bZQLD9wRVWo4CdESSfuSsB", tran.RefID)
	assert.Equal(t, "NPR", tran.Ccy)
	assert.True(t, tran.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestPayload_ToDomain_NotCompleted(t *testing.T) {
	for _, st := range []string{"Pending", "Expired", "User canceled", "Refunded"} {
		p := payload{Pidx: "x", OrderID: "tx", Status: st}

		_, err := p.ToDomain()
		assert.ErrorIs(t, err, status.ErrFailedPayment, "status %s", st)
	}
}
