package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"planora/internal/services/gateway/esewa"
	"planora/internal/status"
)

// ESewaAdapter wraps the eSewa client to conform to the Gateway interface.
type ESewaAdapter struct {
	client esewa.ESewa
}

// NewESewaAdapter creates a new eSewa adapter.
func NewESewaAdapter(cfg *esewa.Config) *ESewaAdapter {
	return &ESewaAdapter{
		client: esewa.New(cfg),
	}
}

// GetProvider returns the gateway provider type.
func (a *ESewaAdapter) GetProvider() Provider {
	return ProviderESewa
}

// Initiate builds the signed form the browser auto-submits to the gateway.
func (a *ESewaAdapter) Initiate(ctx context.Context, req *InitiateRequest) (*Handoff, error) {
	fields, err := a.client.BuildForm(&esewa.FormRequest{
		Amount:          req.Amount,
		TaxAmount:       decimal.Zero,
		ServiceCharge:   decimal.Zero,
		DeliveryCharge:  decimal.Zero,
		TransactionUUID: req.TransactionUUID,
	})
	if err != nil {
		return nil, err
	}

	return &Handoff{
		GatewayURL: a.client.GatewayURL(),
		FormFields: fields,
	}, nil
}

// CheckTransaction checks the status of a transaction.
func (a *ESewaAdapter) CheckTransaction(ctx context.Context, uuid string, amount decimal.Decimal) (*TransactionStatus, error) {
	tx, err := a.client.CheckTransaction(ctx, uuid, amount)
	if err != nil {
		return nil, err
	}

	st := StatusPending
	if tx.Status == "COMPLETE" {
		st = StatusComplete
	}

	return &TransactionStatus{
		UUID:      tx.UUID,
		RefID:     tx.RefID,
		Status:    st,
		Amount:    tx.Amount,
		Currency:  "NPR",
		Timestamp: tx.CreatedAt.Unix(),
	}, nil
}

// DecodeCallback exposes callback verification to the payment service.
func (a *ESewaAdapter) DecodeCallback(data string) (*esewa.Callback, error) {
	return a.client.DecodeCallback(data)
}

// SetTransactionChannel sets the channel for receiving transaction notifications.
// eSewa confirms through the redirect callback, not an async channel.
func (a *ESewaAdapter) SetTransactionChannel(ch chan *status.Transaction) {
}

// Close gracefully closes any connections.
func (a *ESewaAdapter) Close(ctx context.Context) error {
	return nil
}
