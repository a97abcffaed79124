// Package sm2 implements the SM-2 spaced repetition schedule.
//
// Everything in this package is pure: no clocks, no I/O. Callers pass the
// review date explicitly and persist the returned state themselves.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/knolrecall/internal/domain"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	FirstInterval     = 1
	SecondInterval    = 6

	// MaxIntervalDays caps the geometric interval so that it stays an int32
	// and its due date stays representable.
	MaxIntervalDays = math.MaxInt32
)

// ErrInvalidInput is returned when a quality or prior state lies outside its
// domain. Use errors.Is to check for it.
var ErrInvalidInput = errors.New("sm2: invalid input")

// Result is the scheduling outcome of one review.
type Result struct {
	IntervalDays int
	EaseFactor   float64
	Repetitions  int
}

// ComputeNextReview maps a quality rating and the prior schedule to the next one.
//
// The ease factor is adjusted first, for every quality, and floored at
// MinEaseFactor. A failed review (quality < 3) resets repetitions to 0 and
// the interval to one day. A successful review schedules 1 day, then 6 days,
// then round(intervalDays * newEase) days, saturating at MaxIntervalDays.
//
// Malformed input is rejected, never clamped.
func ComputeNextReview(quality Quality, repetitions int, easeFactor float64, intervalDays int) (Result, error) {
	if err := validate(quality, repetitions, easeFactor, intervalDays); err != nil {
		return Result{}, err
	}

	q := float64(5 - quality)
	ease := math.Max(MinEaseFactor, easeFactor+(0.1-q*(0.08+q*0.02)))

	if !quality.Passed() {
		return Result{IntervalDays: FirstInterval, EaseFactor: ease, Repetitions: 0}, nil
	}

	reps := repetitions + 1
	var interval int
	switch reps {
	case 1:
		interval = FirstInterval
	case 2:
		interval = SecondInterval
	default:
		interval = int(math.Min(math.Round(float64(intervalDays)*ease), MaxIntervalDays))
	}

	return Result{IntervalDays: interval, EaseFactor: ease, Repetitions: reps}, nil
}

func validate(quality Quality, repetitions int, easeFactor float64, intervalDays int) error {
	switch {
	case !quality.IsValid():
		return fmt.Errorf("%w: quality %d out of range [0, 5]", ErrInvalidInput, int(quality))
	case repetitions < 0:
		return fmt.Errorf("%w: repetitions %d is negative", ErrInvalidInput, repetitions)
	case math.IsNaN(easeFactor) || math.IsInf(easeFactor, 0):
		return fmt.Errorf("%w: ease factor %v is not finite", ErrInvalidInput, easeFactor)
	case easeFactor < MinEaseFactor:
		return fmt.Errorf("%w: ease factor %.4f below %.1f", ErrInvalidInput, easeFactor, MinEaseFactor)
	case intervalDays < 1:
		return fmt.Errorf("%w: interval %d days below 1", ErrInvalidInput, intervalDays)
	case intervalDays > MaxIntervalDays:
		return fmt.Errorf("%w: interval %d days above %d", ErrInvalidInput, intervalDays, MaxIntervalDays)
	}
	return nil
}

// NewReviewState returns the state of a card that has never been reviewed.
// It is due on the zero date, so it is always due.
func NewReviewState(cardID, learnerID string) domain.ReviewState {
	return domain.ReviewState{
		CardID:       cardID,
		LearnerID:    learnerID,
		EaseFactor:   DefaultEaseFactor,
		IntervalDays: FirstInterval,
		Repetitions:  0,
	}
}

// Apply records a review of state on reviewDate and returns the new state.
// The input state is left untouched; Version is carried over unchanged so
// the store can compare-and-swap on it.
func Apply(state domain.ReviewState, quality Quality, reviewDate time.Time) (domain.ReviewState, error) {
	res, err := ComputeNextReview(quality, state.Repetitions, state.EaseFactor, state.IntervalDays)
	if err != nil {
		return domain.ReviewState{}, err
	}

	day := Day(reviewDate)
	q := int(quality)

	next := state
	next.EaseFactor = res.EaseFactor
	next.IntervalDays = res.IntervalDays
	next.Repetitions = res.Repetitions
	next.NextReviewDate = NextReviewDate(day, res.IntervalDays)
	next.LastQuality = &q
	next.LastReviewDate = &day
	return next, nil
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextReviewDate is the calendar day intervalDays after reviewDate.
func NextReviewDate(reviewDate time.Time, intervalDays int) time.Time {
	return Day(reviewDate).AddDate(0, 0, intervalDays)
}

// IsDue reports whether state is due for review on asOf.
// A state that has never been reviewed is always due.
func IsDue(state domain.ReviewState, asOf time.Time) bool {
	if !state.Reviewed() {
		return true
	}
	return !Day(state.NextReviewDate).After(Day(asOf))
}
