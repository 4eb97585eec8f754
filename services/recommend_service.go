package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"planora/internal/status"
	"planora/monitoring"
	"planora/utils"
)

// RecommendService proxies the external collaborative-filtering API. Calls
// carry a short lived service token, run behind a circuit breaker, and
// recommendation fetches are sequence-guarded so a slow old response can
// never overwrite a newer one for the same user and model.
type RecommendService struct {
	baseURL string
	hc      *http.Client
	Redis   *redis.Client
	tokens  *utils.TokenSource
	breaker *utils.CircuitBreaker
	monitor *monitoring.Monitor

	cacheTTL time.Duration

	// guards holds one requestGuard per user+model pair.
	guards sync.Map
}

// requestGuard orders concurrent requests for one user+model pair. seq is
// bumped per outbound request; responses carrying an older sequence than the
// latest completed one are discarded.
type requestGuard struct {
	seq       atomic.Uint64
	completed atomic.Uint64
}

func (s *RecommendService) guard(userID, model string) *requestGuard {
	g, _ := s.guards.LoadOrStore(userID+":"+model, &requestGuard{})
	return g.(*requestGuard)
}

func NewRecommendService(
	baseURL string,
	requestTimeout time.Duration,
	redisClient *redis.Client,
	tokens *utils.TokenSource,
	monitor *monitoring.Monitor,
	cacheTTL time.Duration,
) *RecommendService {
	return &RecommendService{
		baseURL:  baseURL,
		hc:       &http.Client{Timeout: requestTimeout},
		Redis:    redisClient,
		tokens:   tokens,
		breaker:  utils.NewCircuitBreaker("recommender"),
		monitor:  monitor,
		cacheTTL: cacheTTL,
	}
}

// Recommendation is one scored event from the CF model.
type Recommendation struct {
	EventID string  `json:"event_id"`
	Score   float64 `json:"score"`
	Model   string  `json:"model"`
}

// AttendancePrediction is the model's turnout estimate for an event.
type AttendancePrediction struct {
	EventID            string  `json:"event_id"`
	PredictedAttendees int     `json:"predicted_attendees"`
	Confidence         float64 `json:"confidence"`
}

// ModelComparison reports offline metrics for the available CF models.
type ModelComparison struct {
	Models []struct {
		Name      string  `json:"name"`
		Precision float64 `json:"precision"`
		Recall    float64 `json:"recall"`
		Coverage  float64 `json:"coverage"`
	} `json:"models"`
	Best string `json:"best"`
}

func cfCacheKey(userID, model string) string {
	return fmt.Sprintf("cf:recommendations:%s:%s", userID, model)
}

// Recommendations fetches personalized recommendations for the user. On a
// remote failure or open circuit the last good response is served from
// cache.
func (s *RecommendService) Recommendations(ctx context.Context, userID, model string, limit int) ([]Recommendation, error) {
	path := fmt.Sprintf("/recommendations/%s?model=%s&limit=%d", userID, model, limit)

	body, err := s.call(ctx, http.MethodGet, path, nil, s.guard(userID, model))
	if err != nil {
		if cached, cacheErr := s.cachedRecommendations(ctx, userID, model); cacheErr == nil {
			slog.Warn("serving cached recommendations", "user", userID, "error", err)
			return cached, nil
		}
		return nil, err
	}

	var recs []Recommendation
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("recommendations: decode: %w", err)
	}

	if raw, err := json.Marshal(recs); err == nil {
		s.Redis.Set(ctx, cfCacheKey(userID, model), raw, s.cacheTTL)
	}

	return recs, nil
}

func (s *RecommendService) cachedRecommendations(ctx context.Context, userID, model string) ([]Recommendation, error) {
	raw, err := s.Redis.Get(ctx, cfCacheKey(userID, model)).Result()
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// TrackInteraction reports a view or register event to the model trainer.
// Failures are logged and swallowed; tracking must never break browsing.
func (s *RecommendService) TrackInteraction(ctx context.Context, userID, eventID, action string) {
	payload := map[string]string{
		"user_id":  userID,
		"event_id": eventID,
		"action":   action,
	}

	if _, err := s.call(ctx, http.MethodPost, "/interactions", payload, nil); err != nil {
		slog.Warn("interaction tracking failed",
			"user", userID, "event", eventID, "action", action, "error", err)
	}
}

// PredictAttendance asks the model for a turnout estimate.
func (s *RecommendService) PredictAttendance(ctx context.Context, eventID string) (*AttendancePrediction, error) {
	body, err := s.call(ctx, http.MethodGet, fmt.Sprintf("/predict/%s", eventID), nil, nil)
	if err != nil {
		return nil, err
	}

	var prediction AttendancePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("predictAttendance: decode: %w", err)
	}
	return &prediction, nil
}

// CompareModels fetches offline evaluation metrics for all models.
func (s *RecommendService) CompareModels(ctx context.Context) (*ModelComparison, error) {
	body, err := s.call(ctx, http.MethodGet, "/models/compare", nil, nil)
	if err != nil {
		return nil, err
	}

	var comparison ModelComparison
	if err := json.Unmarshal(body, &comparison); err != nil {
		return nil, fmt.Errorf("compareModels: decode: %w", err)
	}
	return &comparison, nil
}

// call performs one breaker-guarded request against the CF API and returns
// the response body. When a guard is given, a response that finishes after a
// newer request on the same guard has already completed is discarded as
// stale.
func (s *RecommendService) call(ctx context.Context, method, path string, payload interface{}, g *requestGuard) ([]byte, error) {
	var mySeq uint64
	if g != nil {
		mySeq = g.seq.Add(1)
	}

	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.do(ctx, method, path, payload)
	})
	s.monitor.SetRecommenderBreaker(s.breaker.State() == utils.StateOpen)

	if err != nil {
		if errors.Is(err, utils.ErrCircuitOpen) {
			return nil, status.ErrRecommenderTripped
		}
		return nil, err
	}

	if g != nil {
		// Monotonic guard: only the newest completed request may publish.
		for {
			latest := g.completed.Load()
			if mySeq <= latest {
				return nil, status.ErrRecommenderStale
			}
			if g.completed.CompareAndSwap(latest, mySeq) {
				break
			}
		}
	}

	return result.([]byte), nil
}

func (s *RecommendService) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("cf request: marshal: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("cf request: new request: %w", err)
	}

	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("cf request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.hc.Do(req)
	s.monitor.TrackRecommenderCall(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("cf request: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cf request: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cf request: status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
