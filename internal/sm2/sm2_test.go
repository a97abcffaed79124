package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/knolrecall/internal/domain"
)

const epsilon = 1e-9

func TestComputeNextReviewScenarios(t *testing.T) {
	testCases := []struct {
		name         string
		quality      Quality
		repetitions  int
		ease         float64
		interval     int
		wantInterval int
		wantEase     float64
		wantReps     int
	}{
		{"perfect first review", Perfect, 0, 2.5, 1, 1, 2.6, 1},
		{"blackout after streak", Blackout, 3, 2.5, 10, 1, 1.7, 0},
		{"familiar resets long interval", Familiar, 5, 2.5, 30, 1, 2.18, 0},
		{"good third repetition", Good, 2, 2.3, 6, 14, 2.3, 3},
		{"hard second repetition", Hard, 1, 2.5, 1, 6, 2.36, 2},
		{"ease floored at minimum", Blackout, 4, 1.4, 20, 1, MinEaseFactor, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ComputeNextReview(tc.quality, tc.repetitions, tc.ease, tc.interval)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if res.IntervalDays != tc.wantInterval {
				t.Errorf("Expected interval %d, but got %d", tc.wantInterval, res.IntervalDays)
			}
			if math.Abs(res.EaseFactor-tc.wantEase) > epsilon {
				t.Errorf("Expected ease %.4f, but got %.4f", tc.wantEase, res.EaseFactor)
			}
			if res.Repetitions != tc.wantReps {
				t.Errorf("Expected repetitions %d, but got %d", tc.wantReps, res.Repetitions)
			}
		})
	}
}

func TestComputeNextReviewInvalidInput(t *testing.T) {
	testCases := []struct {
		name        string
		quality     Quality
		repetitions int
		ease        float64
		interval    int
	}{
		{"quality below range", -1, 0, 2.5, 1},
		{"quality above range", 6, 0, 2.5, 1},
		{"negative repetitions", Good, -1, 2.5, 1},
		{"ease below minimum", Good, 0, 1.29, 1},
		{"ease not a number", Good, 0, math.NaN(), 1},
		{"ease infinite", Good, 0, math.Inf(1), 1},
		{"zero interval", Good, 0, 2.5, 0},
		{"negative interval", Good, 2, 2.5, -3},
		{"interval above maximum", Good, 2, 2.5, MaxIntervalDays + 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeNextReview(tc.quality, tc.repetitions, tc.ease, tc.interval)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, but got %v", err)
			}
		})
	}
}

func TestComputeNextReviewSaturates(t *testing.T) {
	res, err := ComputeNextReview(Perfect, 9, 3.0, MaxIntervalDays/2)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if res.IntervalDays != MaxIntervalDays {
		t.Errorf("Expected interval %d, but got %d", MaxIntervalDays, res.IntervalDays)
	}

	again, err := ComputeNextReview(Perfect, res.Repetitions, res.EaseFactor, res.IntervalDays)
	if err != nil {
		t.Fatalf("Expected saturated interval to be valid input, but got %v", err)
	}
	if again.IntervalDays != MaxIntervalDays {
		t.Errorf("Expected interval to stay at %d, but got %d", MaxIntervalDays, again.IntervalDays)
	}
}

// forEachValidInput walks a grid over the valid input domain.
func forEachValidInput(fn func(q Quality, reps int, ease float64, interval int)) {
	eases := []float64{MinEaseFactor, 1.31, 1.5, 1.9, 2.3, 2.5, 2.8, 3.7}
	intervals := []int{1, 2, 6, 7, 15, 43, 365, 4000}
	for q := Blackout; q <= Perfect; q++ {
		for reps := 0; reps <= 8; reps++ {
			for _, ease := range eases {
				for _, interval := range intervals {
					fn(q, reps, ease, interval)
				}
			}
		}
	}
}

func TestComputeNextReviewProperties(t *testing.T) {
	forEachValidInput(func(q Quality, reps int, ease float64, interval int) {
		res, err := ComputeNextReview(q, reps, ease, interval)
		if err != nil {
			t.Fatalf("q=%d reps=%d ease=%.2f interval=%d: unexpected error %v", q, reps, ease, interval, err)
		}

		if res.EaseFactor < MinEaseFactor || res.IntervalDays < 1 || res.Repetitions < 0 {
			t.Errorf("q=%d reps=%d ease=%.2f interval=%d: output out of domain %+v", q, reps, ease, interval, res)
		}

		switch {
		case q < 3:
			if res.Repetitions != 0 || res.IntervalDays != 1 {
				t.Errorf("q=%d reps=%d: expected failure reset, got %+v", q, reps, res)
			}
		case reps == 0:
			if res.IntervalDays != 1 {
				t.Errorf("q=%d: expected first success interval 1, got %d", q, res.IntervalDays)
			}
		case reps == 1:
			if res.IntervalDays != 6 {
				t.Errorf("q=%d: expected second success interval 6, got %d", q, res.IntervalDays)
			}
		default:
			want := int(math.Round(float64(interval) * res.EaseFactor))
			if res.IntervalDays != want {
				t.Errorf("q=%d reps=%d ease=%.2f interval=%d: expected interval %d, got %d",
					q, reps, ease, interval, want, res.IntervalDays)
			}
		}

		if q.Passed() && res.Repetitions != reps+1 {
			t.Errorf("q=%d reps=%d: expected repetitions %d, got %d", q, reps, reps+1, res.Repetitions)
		}

		again, _ := ComputeNextReview(q, reps, ease, interval)
		if again != res {
			t.Errorf("q=%d reps=%d ease=%.2f interval=%d: not deterministic, %+v vs %+v", q, reps, ease, interval, res, again)
		}
	})
}

func TestEaseMovesWithQuality(t *testing.T) {
	prev := math.Inf(-1)
	for q := Blackout; q <= Perfect; q++ {
		res, err := ComputeNextReview(q, 2, 2.5, 6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.EaseFactor <= prev {
			t.Errorf("Expected ease to grow with quality, q=%d gave %.4f after %.4f", q, res.EaseFactor, prev)
		}
		prev = res.EaseFactor
	}
}

func TestApply(t *testing.T) {
	reviewedAt := time.Date(2026, time.March, 10, 21, 45, 0, 0, time.UTC)
	state := NewReviewState("card-1", "learner-1")

	t.Run("first review", func(t *testing.T) {
		next, err := Apply(state, Good, reviewedAt)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		wantDate := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
		if !next.NextReviewDate.Equal(wantDate) {
			t.Errorf("Expected next review on %v, but got %v", wantDate, next.NextReviewDate)
		}
		if next.LastQuality == nil || *next.LastQuality != int(Good) {
			t.Errorf("Expected last quality %d, but got %v", Good, next.LastQuality)
		}
		if next.LastReviewDate == nil || !next.LastReviewDate.Equal(Day(reviewedAt)) {
			t.Errorf("Expected last review date %v, but got %v", Day(reviewedAt), next.LastReviewDate)
		}
		if state.Reviewed() {
			t.Error("Expected input state to be left untouched")
		}
	})

	t.Run("sequence of successes then a lapse", func(t *testing.T) {
		day := reviewedAt
		cur := state
		wantIntervals := []int{1, 6, 17}
		for i, want := range wantIntervals {
			next, err := Apply(cur, Perfect, day)
			if err != nil {
				t.Fatalf("review %d: unexpected error %v", i, err)
			}
			if next.IntervalDays != want {
				t.Errorf("review %d: expected interval %d, got %d", i, want, next.IntervalDays)
			}
			if got := next.NextReviewDate.Sub(Day(day)); got != time.Duration(want)*24*time.Hour {
				t.Errorf("review %d: expected due %d days after review, got %v", i, want, got)
			}
			day = next.NextReviewDate
			cur = next
		}

		lapsed, err := Apply(cur, Blackout, day)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lapsed.Repetitions != 0 || lapsed.IntervalDays != 1 {
			t.Errorf("Expected reset after lapse, got reps=%d interval=%d", lapsed.Repetitions, lapsed.IntervalDays)
		}
	})

	t.Run("invalid quality leaves no state", func(t *testing.T) {
		_, err := Apply(state, Quality(9), reviewedAt)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, but got %v", err)
		}
	})
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	local := time.Date(2026, time.January, 2, 1, 30, 0, 0, loc)
	want := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	if got := Day(local); !got.Equal(want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}

func TestIsDue(t *testing.T) {
	today := time.Date(2026, time.May, 5, 12, 0, 0, 0, time.UTC)
	q := int(Good)
	state := func(next time.Time) domain.ReviewState {
		return domain.ReviewState{NextReviewDate: next, LastQuality: &q}
	}

	if !IsDue(NewReviewState("c", "l"), today) {
		t.Error("Expected a never-reviewed card to be due")
	}
	if !IsDue(state(today.AddDate(0, 0, -1)), today) {
		t.Error("Expected yesterday's card to be due")
	}
	if !IsDue(state(Day(today)), today) {
		t.Error("Expected today's card to be due")
	}
	if IsDue(state(Day(today).AddDate(0, 0, 1)), today) {
		t.Error("Expected tomorrow's card not to be due")
	}
}
