package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/models"
	"planora/services"
)

type FeedbackHandler struct {
	app      *pocketbase.PocketBase
	feedback *services.FeedbackService
}

func NewFeedbackHandler(app *pocketbase.PocketBase, feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{
		app:      app,
		feedback: feedback,
	}
}

// CreateFeedback - leave a rating and optional review on an event
func (h *FeedbackHandler) CreateFeedback(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var fb models.Feedback
	if err := e.BindBody(&fb); err != nil {
		return apis.NewBadRequestError("Invalid feedback payload", err)
	}

	fb.UserID = e.Auth.Id
	fb.EventID = e.Request.PathValue("eventId")

	saved, err := h.feedback.Create(e.Request.Context(), &fb)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}

	return e.JSON(http.StatusCreated, saved)
}

// ListFeedback - all feedback on an event plus the average rating
func (h *FeedbackHandler) ListFeedback(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	feedbacks, err := h.feedback.ListByEvent(ctx, eventID)
	if err != nil {
		return apis.NewBadRequestError("Failed to list feedback", err)
	}

	average, err := h.feedback.AverageRating(ctx, eventID)
	if err != nil {
		average = 0
	}

	return e.JSON(http.StatusOK, map[string]any{
		"feedback": feedbacks,
		"count":    len(feedbacks),
		"average":  average,
	})
}
