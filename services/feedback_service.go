package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"planora/models"
)

type FeedbackService struct {
	app *pocketbase.PocketBase
}

func NewFeedbackService(app *pocketbase.PocketBase) *FeedbackService {
	return &FeedbackService{app: app}
}

// Create stores feedback for an event. A missing or invalid sentiment is
// replaced by the one suggested from the rating.
func (s *FeedbackService) Create(ctx context.Context, fb *models.Feedback) (*models.Feedback, error) {
	if fb.Rating < 1 || fb.Rating > 5 {
		return nil, fmt.Errorf("feedback: rating must be between 1 and 5")
	}
	if !models.ValidSentiment(fb.Sentiment) {
		fb.Sentiment = models.SuggestSentiment(fb.Rating)
	}

	collection, err := s.app.FindCollectionByNameOrId("feedbacks")
	if err != nil {
		return nil, fmt.Errorf("feedback: find collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("user", fb.UserID)
	record.Set("event", fb.EventID)
	record.Set("rating", fb.Rating)
	record.Set("review", fb.Review)
	record.Set("sentiment", fb.Sentiment)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("feedback: save: %w", err)
	}

	fb.ID = record.Id
	fb.CreatedAt = record.GetDateTime("created").Time()
	return fb, nil
}

// ListByEvent returns all feedback left on an event, newest first.
func (s *FeedbackService) ListByEvent(ctx context.Context, eventID string) ([]models.Feedback, error) {
	records, err := s.app.FindRecordsByFilter(
		"feedbacks",
		"event = {:event}",
		"-created",
		0,
		0,
		dbx.Params{"event": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("feedback: find records: %w", err)
	}

	feedbacks := make([]models.Feedback, 0, len(records))
	for _, record := range records {
		feedbacks = append(feedbacks, models.Feedback{
			ID:        record.Id,
			UserID:    record.GetString("user"),
			EventID:   record.GetString("event"),
			Rating:    record.GetInt("rating"),
			Review:    record.GetString("review"),
			Sentiment: record.GetString("sentiment"),
			CreatedAt: record.GetDateTime("created").Time(),
		})
	}
	return feedbacks, nil
}

// AverageRating computes the mean rating for an event, 0 when none.
func (s *FeedbackService) AverageRating(ctx context.Context, eventID string) (float64, error) {
	feedbacks, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if len(feedbacks) == 0 {
		return 0, nil
	}

	total := 0
	for _, fb := range feedbacks {
		total += fb.Rating
	}
	return float64(total) / float64(len(feedbacks)), nil
}
