package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCapacityReached       = errors.New("registration: event capacity reached")
	ErrDuplicateRegistration = errors.New("registration: user already registered")
	ErrEventNotPublished     = errors.New("registration: event is not published")

	ErrInvalidTransition  = errors.New("payment: invalid state transition")
	ErrPaymentExpired     = errors.New("payment: session expired")
	ErrFailedPayment      = errors.New("payment: payment failed")
	ErrVerificationFailed = errors.New("payment: gateway verification failed")
	ErrMalformedCallback  = errors.New("payment: malformed gateway callback data")

	ErrTicketNotFound  = errors.New("ticket: ticket not found")
	ErrRefCodeNotFound = errors.New("ref code: ref code not found")

	ErrRecommenderStale   = errors.New("recommend: stale response discarded")
	ErrRecommenderTripped = errors.New("recommend: recommender circuit open")
)

// Transaction is a gateway-confirmed payment, normalized across providers.
type Transaction struct {
	RefID         string
	UUID          string
	Ccy           string
	Payer         string
	AccountNumber string
	Amount        decimal.Decimal
	CreatedAt     time.Time
}
