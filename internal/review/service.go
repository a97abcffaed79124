// Package review records learner reviews: it loads a card's schedule,
// advances it with the SM-2 calculator and persists the result.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/sm2"
)

// DefaultMaxAttempts bounds how often a review is retried after losing a
// compare-and-swap race on the same (card, learner) state.
const DefaultMaxAttempts = 3

// Store is the persistence the service needs.
type Store interface {
	FindCard(ctx context.Context, hash string) (*domain.Card, error)
	FindReviewState(ctx context.Context, cardID, learnerID string) (*domain.ReviewState, error)
	RecordReview(ctx context.Context, state *domain.ReviewState, entry domain.ReviewLog) error
}

// Request is one review event. Identifiers are trimmed before validation.
type Request struct {
	LearnerID  string    `validate:"required"`
	CardID     string    `validate:"required"`
	Quality    int       `validate:"gte=0,lte=5"`
	ReviewedOn time.Time `validate:"required"`
}

type Service struct {
	store       Store
	validate    *validator.Validate
	logger      *slog.Logger
	maxAttempts int
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Review applies req to the learner's state for the card and returns the stored result.
func (s *Service) Review(ctx context.Context, req Request) (domain.ReviewState, error) {
	req.LearnerID = strings.TrimSpace(req.LearnerID)
	req.CardID = strings.TrimSpace(req.CardID)
	if err := s.validate.Struct(req); err != nil {
		return domain.ReviewState{}, fmt.Errorf("%w: %v", sm2.ErrInvalidInput, err)
	}

	card, err := s.store.FindCard(ctx, req.CardID)
	if err != nil {
		return domain.ReviewState{}, err
	}
	if card == nil {
		return domain.ReviewState{}, fmt.Errorf("card %s: %w", req.CardID, domain.ErrCardNotFound)
	}

	for attempt := 1; ; attempt++ {
		next, err := s.reviewOnce(ctx, req)
		if err == nil {
			s.logger.Debug("review recorded",
				"card", req.CardID,
				"learner", req.LearnerID,
				"quality", req.Quality,
				"interval_days", next.IntervalDays,
				"next_review_date", next.NextReviewDate.Format(time.DateOnly),
			)
			return next, nil
		}
		if !errors.Is(err, domain.ErrStaleReviewState) || attempt >= s.maxAttempts {
			return domain.ReviewState{}, err
		}
		s.logger.Warn("review state changed concurrently, retrying",
			"card", req.CardID, "learner", req.LearnerID, "attempt", attempt)
	}
}

func (s *Service) reviewOnce(ctx context.Context, req Request) (domain.ReviewState, error) {
	current, err := s.State(ctx, req.LearnerID, req.CardID)
	if err != nil {
		return domain.ReviewState{}, err
	}

	next, err := sm2.Apply(current, sm2.Quality(req.Quality), req.ReviewedOn)
	if err != nil {
		return domain.ReviewState{}, err
	}

	entry := domain.ReviewLog{
		CardID:       next.CardID,
		LearnerID:    next.LearnerID,
		Quality:      req.Quality,
		ReviewedOn:   sm2.Day(req.ReviewedOn),
		IntervalDays: next.IntervalDays,
		EaseFactor:   next.EaseFactor,
	}
	if err := s.store.RecordReview(ctx, &next, entry); err != nil {
		return domain.ReviewState{}, err
	}
	return next, nil
}

// State returns the learner's stored state for a card, or the bootstrap
// state when the card has never been reviewed.
func (s *Service) State(ctx context.Context, learnerID, cardID string) (domain.ReviewState, error) {
	st, err := s.store.FindReviewState(ctx, cardID, learnerID)
	if err != nil {
		return domain.ReviewState{}, err
	}
	if st == nil {
		return sm2.NewReviewState(cardID, learnerID), nil
	}
	return *st, nil
}
