package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/internal/services/gateway"
	"planora/internal/services/gateway/esewa"
	"planora/internal/status"
	"planora/models"
	"planora/monitoring"
)

const testESewaSecret = "8gBm/:&EnhH.1/q"

func newTestPaymentService(t *testing.T) (*PaymentService, redismock.ClientMock) {
	t.Helper()

	db, mock := redismock.NewClientMock()

	registry := gateway.NewRegistry(gateway.NewFactory())
	err := registry.Register(context.Background(), gateway.ProviderESewa, &esewa.Config{
		GatewayURL:  "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		StatusURL:   "https://rc.esewa.com.np/api/epay/transaction/status/",
		ProductCode: "EPAYTEST",
		SecretKey:   testESewaSecret,
		SuccessURL:  "http://localhost/success",
		FailureURL:  "http://localhost/failure",
	})
	require.NoError(t, err)

	monitor := monitoring.NewMonitor(db, time.Hour)
	t.Cleanup(monitor.Stop)

	return &PaymentService{
		Redis:    db,
		registry: registry,
		events:   &EventService{Redis: db},
		notifier: NewNotificationService(nil),
		monitor:  monitor,
		timeout:  10 * time.Minute,
		currency: "NPR",
	}, mock
}

func storedSession(state models.PaymentState) *models.PaymentSession {
	now := time.Now()
	return &models.PaymentSession{
		TransactionUUID: "11-201-13",
		ParticipationID: "part1",
		UserID:          "user1",
		EventID:         "ev1",
		Amount:          decimal.NewFromInt(100),
		Currency:        "NPR",
		Provider:        "esewa",
		State:           state,
		CreatedAt:       now.Add(-time.Minute),
		UpdatedAt:       now.Add(-time.Minute),
		ExpiresAt:       now.Add(9 * time.Minute),
	}
}

func expectSessionLoad(t *testing.T, mock redismock.ClientMock, session *models.PaymentSession) {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	mock.ExpectHGet("payment:"+session.TransactionUUID, "data").SetVal(string(raw))
}

func TestPaymentService_GetSession_Unknown(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	mock.ExpectHGet("payment:missing", "data").SetErr(redis.Nil)

	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, status.ErrRefCodeNotFound)
}

func TestPaymentService_GetSession_Success(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateRedirected)
	expectSessionLoad(t, mock, session)

	got, err := svc.GetSession(context.Background(), session.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRedirected, got.State)
	assert.True(t, got.Amount.Equal(session.Amount))
}

func TestPaymentService_Transition_IllegalEdge(t *testing.T) {
	svc, _ := newTestPaymentService(t)

	session := storedSession(models.StateVerified)
	err := svc.transition(context.Background(), session, models.StateInitiated)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	// State is left untouched on a refused transition.
	assert.Equal(t, models.StateVerified, session.State)
}

// expectSessionSave matches the four field/value pairs saveSession writes.
// The serialized session embeds fresh timestamps, so values match loosely;
// the arg count must mirror the real HSet call.
func expectSessionSave(mock redismock.ClientMock, transactionUUID string) {
	anyArgs := func(expected, actual []interface{}) error { return nil }
	key := "payment:" + transactionUUID
	mock.ExpectTxPipeline()
	mock.CustomMatch(anyArgs).
		ExpectHSet(key, "data", "", "state", "", "user", "", "event", "").
		SetVal(1)
	mock.CustomMatch(anyArgs).ExpectExpireAt(key, time.Now()).SetVal(true)
	mock.ExpectTxPipelineExec()
}

func TestPaymentService_Transition_Persists(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	expectSessionSave(mock, "11-201-13")

	session := storedSession(models.StateCreated)
	err := svc.transition(context.Background(), session, models.StateInitiated)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, session.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentService_Initiate_Expired(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateExpired)
	expectSessionLoad(t, mock, session)

	_, err := svc.Initiate(context.Background(), session.TransactionUUID, "", "")
	assert.ErrorIs(t, err, status.ErrPaymentExpired)
}

func TestPaymentService_Initiate_RetryFromInitiated(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	// A session stuck in initiated after a gateway failure must be
	// re-initiable: only the initiated -> redirected hop is persisted.
	session := storedSession(models.StateInitiated)
	expectSessionLoad(t, mock, session)
	expectSessionSave(mock, session.TransactionUUID)

	form, err := svc.Initiate(context.Background(), session.TransactionUUID, "Asha", "9800000000")
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.NotEmpty(t, form.GatewayURL)
	assert.Equal(t, session.TransactionUUID, form.Fields["transaction_uuid"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentService_CancelSession_Idempotent(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateCancelled)
	expectSessionLoad(t, mock, session)

	got, err := svc.CancelSession(context.Background(), session.TransactionUUID, "user1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, got.State)
}

func TestPaymentService_CancelSession_WrongUser(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateCreated)
	expectSessionLoad(t, mock, session)

	_, err := svc.CancelSession(context.Background(), session.TransactionUUID, "someone-else")
	assert.Error(t, err)
}

func encodeTestCallback(t *testing.T, uuid, amount string) string {
	t.Helper()

	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=EPAYTEST", amount, uuid)
	mac := hmac.New(sha256.New, []byte(testESewaSecret))
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	raw, err := json.Marshal(map[string]string{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       amount,
		"transaction_uuid":   uuid,
		"product_code":       "EPAYTEST",
		"signed_field_names": "total_amount,transaction_uuid,product_code",
		"signature":          signature,
	})
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(raw)
}

func TestPaymentService_HandleESewaCallback_ReplayIsNoop(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateVerified)
	expectSessionLoad(t, mock, session)

	data := encodeTestCallback(t, session.TransactionUUID, "100")

	got, err := svc.HandleESewaCallback(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, models.StateVerified, got.State)
}

func TestPaymentService_HandleESewaCallback_Malformed(t *testing.T) {
	svc, _ := newTestPaymentService(t)

	_, err := svc.HandleESewaCallback(context.Background(), "%%%not-base64%%%")
	assert.ErrorIs(t, err, status.ErrMalformedCallback)
}

func TestPaymentService_SweepOnce_LeavesLiveSessions(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	session := storedSession(models.StateRedirected)
	mock.ExpectKeys("payment:*").SetVal([]string{"payment:" + session.TransactionUUID})
	expectSessionLoad(t, mock, session)

	// A session that has not reached its deadline must stay untouched: no
	// further Redis commands are expected.
	svc.sweepOnce(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}
