package models

import (
	"time"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Rating    int       `json:"rating"` // 1-5
	Review    string    `json:"review,omitempty"`
	Sentiment string    `json:"sentiment"` // positive, negative, neutral
	CreatedAt time.Time `json:"created_at"`
}

// SuggestSentiment derives a sentiment from the star rating. Callers may
// override the suggestion before saving.
func SuggestSentiment(rating int) string {
	switch {
	case rating >= 4:
		return SentimentPositive
	case rating <= 2:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ValidSentiment reports whether s is an accepted sentiment label.
func ValidSentiment(s string) bool {
	return s == SentimentPositive || s == SentimentNegative || s == SentimentNeutral
}
