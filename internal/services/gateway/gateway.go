package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"planora/internal/status"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderESewa  Provider = "esewa"
	ProviderKhalti Provider = "khalti"
)

// InitiateRequest is a provider agnostic checkout request.
type InitiateRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionUUID string          `json:"transaction_uuid"`
	ReferenceNumber string          `json:"reference_number"`
	Description     string          `json:"description,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
}

// Handoff is what the browser needs to reach the gateway: either a form to
// auto-submit (eSewa) or a URL to redirect to (Khalti).
type Handoff struct {
	GatewayURL string            `json:"gateway_url,omitempty"`
	FormFields map[string]string `json:"form_fields,omitempty"`
	PaymentURL string            `json:"payment_url,omitempty"`
	GatewayRef string            `json:"gateway_ref,omitempty"`
}

// TransactionStatus is the normalized result of a status inquiry.
type TransactionStatus struct {
	UUID      string          `json:"uuid"`
	RefID     string          `json:"ref_id"`
	Status    string          `json:"status"` // complete, pending, failed
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Timestamp int64           `json:"timestamp"`
}

const (
	StatusComplete = "complete"
	StatusPending  = "pending"
	StatusFailed   = "failed"
)

// Gateway defines the common interface for all payment providers.
type Gateway interface {
	// GetProvider returns the gateway provider type
	GetProvider() Provider

	// Initiate prepares the browser handoff for a checkout
	Initiate(ctx context.Context, req *InitiateRequest) (*Handoff, error)

	// CheckTransaction checks the status of a transaction
	CheckTransaction(ctx context.Context, uuid string, amount decimal.Decimal) (*TransactionStatus, error)

	// SetTransactionChannel sets the channel for receiving transaction notifications
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}

// GatewayFactory creates gateway instances based on provider type.
type GatewayFactory interface {
	CreateGateway(ctx context.Context, provider Provider, config interface{}) (Gateway, error)
	GetSupportedProviders() []Provider
}
