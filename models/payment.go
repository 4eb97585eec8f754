package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is one step of the checkout flow. The browser app used to
// reconstruct this implicitly from URL params and a transient context slot;
// here it is a first-class persisted machine.
type PaymentState string

const (
	StateCreated    PaymentState = "created"
	StateInitiated  PaymentState = "initiated"
	StateRedirected PaymentState = "redirected"
	StateVerifying  PaymentState = "verifying"
	StateVerified   PaymentState = "verified"
	StateFailed     PaymentState = "failed"
	StateCancelled  PaymentState = "cancelled"
	StateExpired    PaymentState = "expired"
)

// transitions is the allowed edge set of the payment machine. Terminal
// states have no outgoing edges.
var transitions = map[PaymentState][]PaymentState{
	StateCreated:    {StateInitiated, StateCancelled, StateExpired},
	StateInitiated:  {StateRedirected, StateVerifying, StateCancelled, StateExpired},
	StateRedirected: {StateVerifying, StateCancelled, StateExpired},
	StateVerifying:  {StateVerified, StateFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to PaymentState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no outgoing edges.
func (s PaymentState) Terminal() bool {
	return len(transitions[s]) == 0
}

type PaymentSession struct {
	TransactionUUID string          `json:"transaction_uuid"`
	ParticipationID string          `json:"participation_id"`
	UserID          string          `json:"user_id"`
	EventID         string          `json:"event_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Provider        string          `json:"provider"`
	State           PaymentState    `json:"state"`
	GatewayRef      string          `json:"gateway_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// GatewayForm is the field set the client posts to the gateway. For eSewa
// this is the signed hidden-form payload; for Khalti only PaymentURL is set.
type GatewayForm struct {
	GatewayURL string            `json:"gateway_url"`
	Fields     map[string]string `json:"fields,omitempty"`
	PaymentURL string            `json:"payment_url,omitempty"`
}

type PaymentNotification struct {
	TransactionUUID string    `json:"transaction_uuid"`
	Status          string    `json:"status"`
	GatewayRef      string    `json:"gateway_ref"`
	Timestamp       time.Time `json:"timestamp"`
}
