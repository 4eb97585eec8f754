package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"planora/internal/services/gateway/khalti"
	"planora/internal/status"
)

// KhaltiAdapter wraps the Khalti client to conform to the Gateway interface.
type KhaltiAdapter struct {
	client *khalti.Khalti
}

// NewKhaltiAdapter creates a new Khalti adapter.
func NewKhaltiAdapter(ctx context.Context, cfg *khalti.Config) (*KhaltiAdapter, error) {
	client, err := khalti.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Khalti client: %w", err)
	}

	return &KhaltiAdapter{
		client: client,
	}, nil
}

// GetProvider returns the gateway provider type.
func (a *KhaltiAdapter) GetProvider() Provider {
	return ProviderKhalti
}

// Initiate starts a hosted checkout and returns the redirect URL.
func (a *KhaltiAdapter) Initiate(ctx context.Context, req *InitiateRequest) (*Handoff, error) {
	reply, err := a.client.Initiate(ctx, &khalti.InitiateForm{
		Amount:        req.Amount,
		OrderID:       req.TransactionUUID,
		OrderName:     req.Description,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		return nil, err
	}

	return &Handoff{
		PaymentURL: reply.PaymentURL,
		GatewayRef: reply.Pidx,
	}, nil
}

// CheckTransaction checks the status of a transaction. Khalti lookups key on
// pidx, carried as the session's gateway ref; uuid here is that pidx.
func (a *KhaltiAdapter) CheckTransaction(ctx context.Context, uuid string, amount decimal.Decimal) (*TransactionStatus, error) {
	reply, err := a.client.Lookup(ctx, uuid)
	if err != nil {
		return nil, err
	}

	st := StatusPending
	if reply.Status == "Completed" {
		st = StatusComplete
	}

	// Lookup amounts are in paisa.
	npr := reply.TotalAmount.Div(decimal.NewFromInt(100))

	return &TransactionStatus{
		UUID:     uuid,
		RefID:    reply.TransactionID,
		Status:   st,
		Amount:   npr,
		Currency: "NPR",
	}, nil
}

// SetTransactionChannel sets the channel for receiving transaction notifications.
func (a *KhaltiAdapter) SetTransactionChannel(ch chan *status.Transaction) {
	a.client.SetTranChannel(ch)
}

// Close gracefully closes any connections.
func (a *KhaltiAdapter) Close(ctx context.Context) error {
	a.client.Unsubscribe(ctx)
	return nil
}
