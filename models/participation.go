package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ParticipationPending   = "pending"
	ParticipationConfirmed = "confirmed"
	ParticipationCancelled = "cancelled"
)

type Participation struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	EventID         string          `json:"event_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"` // pending, confirmed, cancelled
	TransactionUUID string          `json:"transaction_uuid,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
