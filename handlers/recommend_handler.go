package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/internal/status"
	"planora/services"
)

// RecommendHandler fronts the external CF service.
type RecommendHandler struct {
	app       *pocketbase.PocketBase
	recommend *services.RecommendService
}

func NewRecommendHandler(app *pocketbase.PocketBase, recommend *services.RecommendService) *RecommendHandler {
	return &RecommendHandler{
		app:       app,
		recommend: recommend,
	}
}

// Recommendations - personalized CF picks for the signed-in user
func (h *RecommendHandler) Recommendations(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	model := e.Request.URL.Query().Get("model")
	if model == "" {
		model = "item-cf"
	}
	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	recs, err := h.recommend.Recommendations(e.Request.Context(), e.Auth.Id, model, limit)
	switch {
	case errors.Is(err, status.ErrRecommenderTripped):
		return e.JSON(http.StatusServiceUnavailable, map[string]any{
			"error": "recommendations temporarily unavailable",
		})
	case errors.Is(err, status.ErrRecommenderStale):
		return e.JSON(http.StatusOK, map[string]any{"recommendations": []any{}})
	case err != nil:
		return apis.NewBadRequestError("Failed to fetch recommendations", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"recommendations": recs,
		"model":           model,
	})
}

type interactionRequest struct {
	EventID string `json:"event_id"`
	Action  string `json:"action"` // view, register
}

// TrackInteraction - report a view/register signal to the model trainer
func (h *RecommendHandler) TrackInteraction(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req interactionRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid interaction payload", err)
	}
	if req.EventID == "" || (req.Action != "view" && req.Action != "register") {
		return apis.NewBadRequestError("Invalid interaction", nil)
	}

	h.recommend.TrackInteraction(e.Request.Context(), e.Auth.Id, req.EventID, req.Action)

	return e.JSON(http.StatusAccepted, map[string]any{"tracked": true})
}

// PredictAttendance - turnout estimate for an event, organizer only
func (h *RecommendHandler) PredictAttendance(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	prediction, err := h.recommend.PredictAttendance(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		if errors.Is(err, status.ErrRecommenderTripped) {
			return e.JSON(http.StatusServiceUnavailable, map[string]any{
				"error": "prediction temporarily unavailable",
			})
		}
		return apis.NewBadRequestError("Prediction failed", err)
	}

	return e.JSON(http.StatusOK, prediction)
}

// CompareModels - offline model metrics, organizer only
func (h *RecommendHandler) CompareModels(e *core.RequestEvent) error {
	if err := requireOrganizer(e); err != nil {
		return err
	}

	comparison, err := h.recommend.CompareModels(e.Request.Context())
	if err != nil {
		return apis.NewBadRequestError("Comparison failed", err)
	}

	return e.JSON(http.StatusOK, comparison)
}
