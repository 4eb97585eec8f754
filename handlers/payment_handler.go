package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/internal/status"
	"planora/services"
)

type PaymentHandler struct {
	app         *pocketbase.PocketBase
	payments    *services.PaymentService
	environment string
}

func NewPaymentHandler(app *pocketbase.PocketBase, payments *services.PaymentService, environment string) *PaymentHandler {
	return &PaymentHandler{
		app:         app,
		payments:    payments,
		environment: environment,
	}
}

type initiateRequest struct {
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// InitiatePayment - hand the session to its gateway
func (h *PaymentHandler) InitiatePayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	transactionUUID := e.Request.PathValue("transactionUuid")
	ctx := e.Request.Context()

	session, err := h.payments.GetSession(ctx, transactionUUID)
	if err != nil {
		return apis.NewNotFoundError("Payment session not found", nil)
	}
	if session.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	var req initiateRequest
	e.BindBody(&req)

	form, err := h.payments.Initiate(ctx, transactionUUID, req.CustomerName, req.CustomerPhone)
	if err != nil {
		if errors.Is(err, status.ErrPaymentExpired) {
			return apis.NewBadRequestError("Payment session expired", nil)
		}
		if errors.Is(err, status.ErrInvalidTransition) {
			return apis.NewBadRequestError("Payment already in progress or finished", nil)
		}
		return apis.NewBadRequestError("Failed to initiate payment", err)
	}

	return e.JSON(http.StatusOK, form)
}

// ESewaCallback - success redirect target; eSewa appends ?data=<base64 json>
func (h *PaymentHandler) ESewaCallback(e *core.RequestEvent) error {
	data := e.Request.URL.Query().Get("data")
	if data == "" {
		return apis.NewBadRequestError("Missing callback data", nil)
	}

	session, err := h.payments.HandleESewaCallback(e.Request.Context(), data)
	switch {
	case errors.Is(err, status.ErrMalformedCallback):
		return apis.NewBadRequestError("Malformed callback data", nil)
	case errors.Is(err, status.ErrVerificationFailed):
		return apis.NewBadRequestError("Callback verification failed", nil)
	case errors.Is(err, status.ErrFailedPayment):
		if session == nil {
			return apis.NewBadRequestError("Payment failed", nil)
		}
		return e.JSON(http.StatusOK, map[string]any{
			"transaction_uuid": session.TransactionUUID,
			"state":            session.State,
		})
	case err != nil:
		return apis.NewBadRequestError("Payment verification failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"transaction_uuid": session.TransactionUUID,
		"state":            session.State,
	})
}

// PaymentStatus - poll the session state, re-verifying against the gateway
// for sessions still in flight
func (h *PaymentHandler) PaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	transactionUUID := e.Request.PathValue("transactionUuid")
	ctx := e.Request.Context()

	session, err := h.payments.GetSession(ctx, transactionUUID)
	if err != nil {
		return apis.NewNotFoundError("Payment session not found", nil)
	}
	if session.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	if !session.State.Terminal() && e.Request.URL.Query().Get("verify") == "true" {
		verified, err := h.payments.Verify(ctx, transactionUUID)
		if err != nil && !errors.Is(err, status.ErrFailedPayment) {
			return apis.NewBadRequestError("Verification failed", err)
		}
		if verified != nil {
			session = verified
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"transaction_uuid": session.TransactionUUID,
		"state":            session.State,
		"provider":         session.Provider,
		"amount":           session.Amount,
		"expires_at":       session.ExpiresAt,
	})
}

// CancelPayment - abort an in-flight session and free the slot
func (h *PaymentHandler) CancelPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	transactionUUID := e.Request.PathValue("transactionUuid")

	session, err := h.payments.CancelSession(e.Request.Context(), transactionUUID, e.Auth.Id)
	if err != nil {
		if errors.Is(err, status.ErrInvalidTransition) {
			return apis.NewBadRequestError("Payment can no longer be cancelled", nil)
		}
		return apis.NewNotFoundError("Payment session not found", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"transaction_uuid": session.TransactionUUID,
		"state":            session.State,
	})
}

// SimulatePayment - development helper that fakes a gateway confirmation.
// Refused outside the development environment.
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if h.environment != "development" {
		return apis.NewForbiddenError("Not available", nil)
	}
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	transactionUUID := e.Request.PathValue("transactionUuid")
	ctx := e.Request.Context()

	session, err := h.payments.GetSession(ctx, transactionUUID)
	if err != nil {
		return apis.NewNotFoundError("Payment session not found", nil)
	}
	if session.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	session, err = h.payments.ForceVerify(ctx, session)
	if err != nil {
		return apis.NewBadRequestError("Simulation failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"transaction_uuid": session.TransactionUUID,
		"state":            session.State,
		"simulated":        true,
	})
}
