package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"planora/internal/services/gateway"
	"planora/internal/status"
	"planora/models"
	"planora/monitoring"
)

// sessionRetention keeps terminal sessions queryable after the flow ends.
const sessionRetention = 24 * time.Hour

type PaymentService struct {
	app      *pocketbase.PocketBase
	Redis    *redis.Client
	registry *gateway.Registry
	events   *EventService
	tickets  *TicketService
	notifier *NotificationService
	monitor  *monitoring.Monitor

	timeout       time.Duration
	sweepInterval time.Duration
	currency      string

	tranCh   chan *status.Transaction
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPaymentService(
	app *pocketbase.PocketBase,
	redisClient *redis.Client,
	registry *gateway.Registry,
	events *EventService,
	tickets *TicketService,
	notifier *NotificationService,
	monitor *monitoring.Monitor,
	timeout, sweepInterval time.Duration,
	currency string,
) *PaymentService {
	s := &PaymentService{
		app:           app,
		Redis:         redisClient,
		registry:      registry,
		events:        events,
		tickets:       tickets,
		notifier:      notifier,
		monitor:       monitor,
		timeout:       timeout,
		sweepInterval: sweepInterval,
		currency:      currency,
		tranCh:        make(chan *status.Transaction, 16),
		stopChan:      make(chan struct{}),
	}

	// Async providers (Khalti relay) push confirmations here.
	for _, provider := range registry.Available() {
		if gw, err := registry.Get(provider); err == nil {
			gw.SetTransactionChannel(s.tranCh)
		}
	}

	return s
}

func sessionKey(transactionUUID string) string {
	return fmt.Sprintf("payment:%s", transactionUUID)
}

// CreateSession opens a payment session in the created state, keyed by a
// fresh transaction UUID. The session is the single source of truth for the
// checkout; a browser refresh or server restart resumes from it.
func (s *PaymentService) CreateSession(ctx context.Context, userID, eventID, participationID string, amount decimal.Decimal, provider string) (*models.PaymentSession, error) {
	if provider == "" {
		primary, err := s.registry.GetPrimary()
		if err != nil {
			return nil, fmt.Errorf("createSession: no gateway: %w", err)
		}
		provider = string(primary.GetProvider())
	} else if _, err := s.registry.Get(gateway.Provider(provider)); err != nil {
		return nil, fmt.Errorf("createSession: %w", err)
	}

	now := time.Now()
	session := &models.PaymentSession{
		TransactionUUID: uuid.NewString(),
		ParticipationID: participationID,
		UserID:          userID,
		EventID:         eventID,
		Amount:          amount,
		Currency:        s.currency,
		Provider:        provider,
		State:           models.StateCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(s.timeout),
	}

	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}

	slog.Info("payment session created",
		"transaction_uuid", session.TransactionUUID,
		"event", eventID,
		"provider", provider,
		"amount", amount.String(),
	)
	return session, nil
}

// Initiate hands the session to its gateway and returns what the browser
// needs to get there. Re-initiating a session already in initiated is
// allowed, so a gateway hiccup does not wedge the checkout.
func (s *PaymentService) Initiate(ctx context.Context, transactionUUID string, customerName, customerPhone string) (*models.GatewayForm, error) {
	session, err := s.GetSession(ctx, transactionUUID)
	if err != nil {
		return nil, err
	}

	if session.State == models.StateExpired {
		return nil, status.ErrPaymentExpired
	}

	if session.State != models.StateInitiated {
		if err := s.transition(ctx, session, models.StateInitiated); err != nil {
			return nil, err
		}
	}

	gw, err := s.registry.Get(gateway.Provider(session.Provider))
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}

	started := time.Now()
	handoff, err := gw.Initiate(ctx, &gateway.InitiateRequest{
		Amount:          session.Amount,
		Currency:        session.Currency,
		TransactionUUID: session.TransactionUUID,
		Description:     fmt.Sprintf("Planora event registration %s", session.EventID),
		CustomerName:    customerName,
		CustomerPhone:   customerPhone,
	})
	s.monitor.TrackGatewayCall(session.Provider, "initiate", time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("initiate: gateway: %w", err)
	}

	session.GatewayRef = handoff.GatewayRef
	if err := s.transition(ctx, session, models.StateRedirected); err != nil {
		return nil, err
	}

	return &models.GatewayForm{
		GatewayURL: handoff.GatewayURL,
		Fields:     handoff.FormFields,
		PaymentURL: handoff.PaymentURL,
	}, nil
}

// HandleESewaCallback consumes the base64 payload eSewa appends to the
// success redirect, verifies its signature and amount, then confirms the
// payment against the status API. Replayed callbacks for a session that is
// already verified return the session unchanged.
func (s *PaymentService) HandleESewaCallback(ctx context.Context, data string) (*models.PaymentSession, error) {
	gw, err := s.registry.Get(gateway.ProviderESewa)
	if err != nil {
		return nil, fmt.Errorf("callback: %w", err)
	}
	adapter, ok := gw.(*gateway.ESewaAdapter)
	if !ok {
		return nil, fmt.Errorf("callback: unexpected gateway type for esewa")
	}

	callback, err := adapter.DecodeCallback(data)
	if err != nil {
		return nil, err
	}

	session, err := s.GetSession(ctx, callback.TransactionUUID)
	if err != nil {
		return nil, err
	}

	if session.State == models.StateVerified {
		return session, nil
	}

	amount, err := callback.Amount()
	if err != nil {
		return nil, status.ErrMalformedCallback
	}
	if !amount.Equal(session.Amount) {
		slog.Warn("callback amount mismatch",
			"transaction_uuid", session.TransactionUUID,
			"expected", session.Amount.String(),
			"got", amount.String(),
		)
		return nil, status.ErrVerificationFailed
	}

	return s.verify(ctx, session, gw)
}

// Verify re-checks a session against its gateway. Used by the status
// endpoint when the client returns without a usable callback payload.
func (s *PaymentService) Verify(ctx context.Context, transactionUUID string) (*models.PaymentSession, error) {
	session, err := s.GetSession(ctx, transactionUUID)
	if err != nil {
		return nil, err
	}

	if session.State.Terminal() {
		return session, nil
	}

	gw, err := s.registry.Get(gateway.Provider(session.Provider))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	return s.verify(ctx, session, gw)
}

func (s *PaymentService) verify(ctx context.Context, session *models.PaymentSession, gw gateway.Gateway) (*models.PaymentSession, error) {
	if err := s.transition(ctx, session, models.StateVerifying); err != nil {
		return nil, err
	}

	// Khalti lookups key on the pidx held in the gateway ref.
	lookupKey := session.TransactionUUID
	if session.Provider == string(gateway.ProviderKhalti) && session.GatewayRef != "" {
		lookupKey = session.GatewayRef
	}

	started := time.Now()
	tx, err := gw.CheckTransaction(ctx, lookupKey, session.Amount)
	s.monitor.TrackGatewayCall(session.Provider, "check", time.Since(started))

	if err != nil {
		if errors.Is(err, status.ErrFailedPayment) {
			return s.fail(ctx, session)
		}
		return nil, fmt.Errorf("verify: check transaction: %w", err)
	}

	switch tx.Status {
	case gateway.StatusComplete:
		if !tx.Amount.Equal(session.Amount) {
			slog.Warn("status check amount mismatch",
				"transaction_uuid", session.TransactionUUID,
				"expected", session.Amount.String(),
				"got", tx.Amount.String(),
			)
			return s.fail(ctx, session)
		}
		if tx.RefID != "" {
			session.GatewayRef = tx.RefID
		}
		return s.succeed(ctx, session)
	case gateway.StatusFailed:
		return s.fail(ctx, session)
	default:
		// Still pending at the gateway; stay in verifying until the next
		// check or the expiry sweep.
		return session, nil
	}
}

func (s *PaymentService) succeed(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	now := time.Now()
	session.CompletedAt = &now
	if err := s.transition(ctx, session, models.StateVerified); err != nil {
		return nil, err
	}

	booking, err := s.confirmParticipation(ctx, session.ParticipationID)
	if err != nil {
		slog.Error("confirm participation failed",
			"transaction_uuid", session.TransactionUUID, "error", err)
	}

	ev, err := s.events.GetEvent(ctx, session.EventID)
	if err != nil {
		return nil, fmt.Errorf("succeed: load event: %w", err)
	}

	ticket, err := s.tickets.Issue(ctx, session.UserID, ev, booking, session.Amount)
	if err != nil {
		return nil, fmt.Errorf("succeed: issue ticket: %w", err)
	}

	s.notifier.NotifyPayment(ctx, session.UserID, models.PaymentNotification{
		TransactionUUID: session.TransactionUUID,
		Status:          string(models.StateVerified),
		GatewayRef:      session.GatewayRef,
		Timestamp:       now,
	})
	s.notifier.NotifyTicketIssued(ctx, session.UserID, ticket)

	slog.Info("payment verified",
		"transaction_uuid", session.TransactionUUID,
		"ticket", ticket.ID,
	)
	return session, nil
}

func (s *PaymentService) fail(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	if err := s.transition(ctx, session, models.StateFailed); err != nil {
		return nil, err
	}

	s.releaseHold(ctx, session)
	s.cancelParticipation(ctx, session.ParticipationID)

	s.notifier.NotifyPayment(ctx, session.UserID, models.PaymentNotification{
		TransactionUUID: session.TransactionUUID,
		Status:          string(models.StateFailed),
		GatewayRef:      session.GatewayRef,
		Timestamp:       time.Now(),
	})

	return session, status.ErrFailedPayment
}

// ForceVerify finalizes a session without consulting the gateway. Only the
// development simulate endpoint calls this.
func (s *PaymentService) ForceVerify(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	if session.State.Terminal() {
		return session, nil
	}

	if err := s.transition(ctx, session, models.StateVerifying); err != nil {
		return nil, err
	}
	return s.succeed(ctx, session)
}

// CancelSession aborts a non-terminal session and releases the registration
// hold.
func (s *PaymentService) CancelSession(ctx context.Context, transactionUUID, userID string) (*models.PaymentSession, error) {
	session, err := s.GetSession(ctx, transactionUUID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, status.ErrRefCodeNotFound
	}

	if session.State == models.StateCancelled {
		return session, nil
	}

	if err := s.transition(ctx, session, models.StateCancelled); err != nil {
		return nil, err
	}

	s.releaseHold(ctx, session)
	s.cancelParticipation(ctx, session.ParticipationID)

	return session, nil
}

// GetSession loads a session from its Redis hash.
func (s *PaymentService) GetSession(ctx context.Context, transactionUUID string) (*models.PaymentSession, error) {
	raw, err := s.Redis.HGet(ctx, sessionKey(transactionUUID), "data").Result()
	if err == redis.Nil {
		return nil, status.ErrRefCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getSession: redis.HGet: %w", err)
	}

	var session models.PaymentSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("getSession: unmarshal: %w", err)
	}
	return &session, nil
}

// transition moves the session along one legal edge and persists it.
func (s *PaymentService) transition(ctx context.Context, session *models.PaymentSession, to models.PaymentState) error {
	from := session.State
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, from, to)
	}

	session.State = to
	session.UpdatedAt = time.Now()
	if err := s.saveSession(ctx, session); err != nil {
		session.State = from
		return err
	}

	s.monitor.TrackPaymentTransition(string(from), string(to), session.Provider)
	return nil
}

func (s *PaymentService) saveSession(ctx context.Context, session *models.PaymentSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("saveSession: marshal: %w", err)
	}

	key := sessionKey(session.TransactionUUID)
	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"data":  raw,
		"state": string(session.State),
		"user":  session.UserID,
		"event": session.EventID,
	})
	pipe.ExpireAt(ctx, key, session.ExpiresAt.Add(sessionRetention))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saveSession: redis: %w", err)
	}
	return nil
}

func (s *PaymentService) releaseHold(ctx context.Context, session *models.PaymentSession) {
	count, err := s.events.Release(ctx, session.EventID, session.UserID)
	if err != nil {
		slog.Error("release registration hold failed",
			"transaction_uuid", session.TransactionUUID, "error", err)
		return
	}
	s.monitor.TrackRegistration(session.EventID, "released")

	if err := s.events.SyncRegisteredCount(ctx, session.EventID, count); err != nil {
		slog.Warn("sync registered count failed", "event", session.EventID, "error", err)
	}
}

func (s *PaymentService) confirmParticipation(ctx context.Context, participationID string) (models.BookingDetails, error) {
	var booking models.BookingDetails

	record, err := s.app.FindRecordById("participations", participationID)
	if err != nil {
		return booking, fmt.Errorf("confirmParticipation: find record: %w", err)
	}

	if raw := record.GetString("booking"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &booking); err != nil {
			slog.Warn("participation booking decode failed", "participation", participationID)
		}
	}

	record.Set("status", models.ParticipationConfirmed)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return booking, fmt.Errorf("confirmParticipation: save: %w", err)
	}
	return booking, nil
}

func (s *PaymentService) cancelParticipation(ctx context.Context, participationID string) {
	record, err := s.app.FindRecordById("participations", participationID)
	if err != nil {
		return
	}
	record.Set("status", models.ParticipationCancelled)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		slog.Warn("cancel participation failed", "participation", participationID, "error", err)
	}
}

// Start launches the async confirmation consumer and the expiry sweeper.
func (s *PaymentService) Start() {
	s.wg.Add(2)
	go s.consumeTransactions()
	go s.sweepExpired()
}

// Stop shuts the background workers down and waits for them.
func (s *PaymentService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// consumeTransactions finalizes sessions confirmed through an async channel
// (the Khalti webhook relay) instead of a browser redirect.
func (s *PaymentService) consumeTransactions() {
	defer s.wg.Done()

	for {
		select {
		case tran := <-s.tranCh:
			s.handleTransaction(tran)
		case <-s.stopChan:
			return
		}
	}
}

func (s *PaymentService) handleTransaction(tran *status.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := s.GetSession(ctx, tran.UUID)
	if err != nil {
		slog.Warn("transaction for unknown session", "transaction_uuid", tran.UUID)
		return
	}

	if session.State.Terminal() {
		return
	}

	if !tran.Amount.Equal(session.Amount) {
		slog.Warn("async transaction amount mismatch",
			"transaction_uuid", tran.UUID,
			"expected", session.Amount.String(),
			"got", tran.Amount.String(),
		)
		return
	}

	if err := s.transition(ctx, session, models.StateVerifying); err != nil {
		slog.Warn("async transaction transition failed",
			"transaction_uuid", tran.UUID, "error", err)
		return
	}

	session.GatewayRef = tran.RefID
	if _, err := s.succeed(ctx, session); err != nil {
		slog.Error("async transaction finalize failed",
			"transaction_uuid", tran.UUID, "error", err)
	}
}

// sweepExpired periodically expires overdue sessions and releases their
// registration holds. Centralizing expiry here keeps a browser crash or
// abandoned tab from holding a slot forever.
func (s *PaymentService) sweepExpired() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

func (s *PaymentService) sweepOnce(ctx context.Context) {
	keys, err := s.Redis.Keys(ctx, "payment:*").Result()
	if err != nil {
		slog.Error("expiry sweep scan failed", "error", err)
		return
	}

	now := time.Now()
	for _, key := range keys {
		uuid := key[len("payment:"):]
		session, err := s.GetSession(ctx, uuid)
		if err != nil {
			continue
		}
		if session.State.Terminal() || now.Before(session.ExpiresAt) {
			continue
		}

		if err := s.transition(ctx, session, models.StateExpired); err != nil {
			continue
		}

		s.releaseHold(ctx, session)
		s.cancelParticipation(ctx, session.ParticipationID)

		slog.Info("payment session expired",
			"transaction_uuid", session.TransactionUUID,
			"event", session.EventID,
		)
	}
}
