package domain

import "time"

// ReviewState is the scheduling state of one card for one learner.
// Dates carry no time of day; they are midnight UTC of the calendar day.
type ReviewState struct {
	CardID         string
	LearnerID      string
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	NextReviewDate time.Time
	LastQuality    *int
	LastReviewDate *time.Time

	// Version is the optimistic concurrency token. Zero means the state
	// has never been persisted.
	Version int64
}

// Reviewed reports whether the state has been through at least one review.
func (s ReviewState) Reviewed() bool {
	return s.LastQuality != nil
}

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	CardID       string
	LearnerID    string
	Quality      int
	ReviewedOn   time.Time
	IntervalDays int
	EaseFactor   float64
}
