package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/internal/status"
	"planora/monitoring"
	"planora/utils"
)

func newTestRecommendService(t *testing.T, handler http.HandlerFunc) (*RecommendService, redismock.ClientMock) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db, mock := redismock.NewClientMock()
	monitor := monitoring.NewMonitor(db, time.Hour)
	t.Cleanup(monitor.Stop)

	tokens := utils.NewTokenSource("test-key", "planora", 15*time.Minute)

	return NewRecommendService(server.URL, 5*time.Second, db, tokens, monitor, 5*time.Minute), mock
}

func TestRecommendService_Recommendations(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.Contains(t, r.URL.Path, "/recommendations/user1")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"event_id":"ev1","score":0.92,"model":"item-cf"},{"event_id":"ev2","score":0.71,"model":"item-cf"}]`))
	})

	recs, err := svc.Recommendations(context.Background(), "user1", "item-cf", 6)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ev1", recs[0].EventID)
	assert.InDelta(t, 0.92, recs[0].Score, 0.001)
}

func TestRecommendService_Recommendations_RemoteDown_ServesCache(t *testing.T) {
	svc, mock := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	mock.ExpectGet("cf:recommendations:user1:item-cf").
		SetVal(`[{"event_id":"ev9","score":0.5,"model":"item-cf"}]`)

	recs, err := svc.Recommendations(context.Background(), "user1", "item-cf", 6)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ev9", recs[0].EventID)
}

func TestRecommendService_StaleResponseDiscarded(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"event_id":"ev1","score":0.9,"model":"item-cf"}]`))
	})

	// Simulate a newer request for the same user and model having already
	// completed: this request's sequence is behind, so its response must be
	// dropped.
	svc.guard("user1", "item-cf").completed.Store(100)

	_, err := svc.Recommendations(context.Background(), "user1", "item-cf", 5)
	assert.ErrorIs(t, err, status.ErrRecommenderStale)
}

func TestRecommendService_StaleGuardScopedPerUser(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"event_id":"ev1","score":0.9,"model":"item-cf"}]`))
	})

	// A stalled sequence for one user must not discard fresh responses for
	// another user, nor for the same user on a different model.
	svc.guard("user1", "item-cf").completed.Store(100)

	recs, err := svc.Recommendations(context.Background(), "user2", "item-cf", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = svc.Recommendations(context.Background(), "user1", "user-cf", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestRecommendService_PredictAttendance(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/ev1", r.URL.Path)
		w.Write([]byte(`{"event_id":"ev1","predicted_attendees":120,"confidence":0.8}`))
	})

	prediction, err := svc.PredictAttendance(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Equal(t, 120, prediction.PredictedAttendees)
}

func TestRecommendService_CompareModels(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/compare", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"item-cf","precision":0.4,"recall":0.3,"coverage":0.9}],"best":"item-cf"}`))
	})

	comparison, err := svc.CompareModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "item-cf", comparison.Best)
	require.Len(t, comparison.Models, 1)
}

func TestRecommendService_TrackInteraction_SwallowsFailures(t *testing.T) {
	svc, _ := newTestRecommendService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusBadGateway)
	})

	// Must not panic or surface an error.
	svc.TrackInteraction(context.Background(), "user1", "ev1", "view")
}
