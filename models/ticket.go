package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TicketActive    = "active"
	TicketCancelled = "cancelled"
	TicketUsed      = "used"
)

// BookingDetails is the holder record captured at registration time.
type BookingDetails struct {
	HolderName       string `json:"holder_name" validate:"required"`
	HolderEmail      string `json:"holder_email" validate:"required,email"`
	HolderPhone      string `json:"holder_phone" validate:"required,min=7,max=15"`
	HolderAge        int    `json:"holder_age" validate:"required,gte=1,lte=120"`
	EmergencyContact string `json:"emergency_contact,omitempty" validate:"omitempty,min=7,max=15"`
}

// Ticket snapshots the event at purchase time so later event edits do not
// rewrite already issued tickets.
type Ticket struct {
	ID            string          `json:"id"`
	TicketCode    string          `json:"ticket_code"`
	UserID        string          `json:"user_id"`
	EventID       string          `json:"event_id"`
	EventTitle    string          `json:"event_title"`
	EventDate     time.Time       `json:"event_date"`
	Venue         string          `json:"venue"`
	Location      string          `json:"location"`
	OrganizerName string          `json:"organizer_name"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"` // active, cancelled, used
	Booking       BookingDetails  `json:"booking"`
	PurchasedAt   time.Time       `json:"purchased_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

// RefundBreakdown is the fixed cancellation split: 10% cancellation fee,
// 10% platform fee, 80% refunded to the holder.
type RefundBreakdown struct {
	OriginalPrice   decimal.Decimal `json:"original_price"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
}

var (
	cancellationFeeRate = decimal.NewFromFloat(0.10)
	platformFeeRate     = decimal.NewFromFloat(0.10)
)

// Refund computes the cancellation split for the ticket price. The refund is
// derived as price minus both fees so the three parts always sum exactly to
// the original price.
func (t *Ticket) Refund() RefundBreakdown {
	cancellation := t.Price.Mul(cancellationFeeRate).Round(2)
	platform := t.Price.Mul(platformFeeRate).Round(2)

	return RefundBreakdown{
		OriginalPrice:   t.Price,
		CancellationFee: cancellation,
		PlatformFee:     platform,
		RefundAmount:    t.Price.Sub(cancellation).Sub(platform),
	}
}
