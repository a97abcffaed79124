package due

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/sm2"
)

type fakeSource struct {
	cards  []domain.Card
	states map[string][]domain.ReviewState
	reads  int
	err    error
}

func (f *fakeSource) DueSnapshot(ctx context.Context, learnerID string, deckID *int64) ([]domain.Card, []domain.ReviewState, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.reads++
	var out []domain.Card
	for _, c := range f.cards {
		if deckID == nil || c.DeckID == *deckID {
			out = append(out, c)
		}
	}
	return out, slices.Clone(f.states[learnerID]), nil
}

func reviewed(cardID, learnerID string, next time.Time) domain.ReviewState {
	q := int(sm2.Good)
	return domain.ReviewState{
		CardID:         cardID,
		LearnerID:      learnerID,
		EaseFactor:     sm2.DefaultEaseFactor,
		IntervalDays:   1,
		Repetitions:    1,
		NextReviewDate: sm2.Day(next),
		LastQuality:    &q,
	}
}

var today = time.Date(2026, time.June, 15, 9, 0, 0, 0, time.UTC)

func newFixture() *fakeSource {
	return &fakeSource{
		cards: []domain.Card{
			{Hash: "past", DeckID: 1},
			{Hash: "future", DeckID: 1},
			{Hash: "fresh", DeckID: 2},
			{Hash: "today", DeckID: 2},
			{Hash: "older", DeckID: 2},
		},
		states: map[string][]domain.ReviewState{
			"ada": {
				reviewed("past", "ada", today.AddDate(0, 0, -1)),
				reviewed("future", "ada", today.AddDate(0, 0, 1)),
				reviewed("today", "ada", today),
				reviewed("older", "ada", today.AddDate(0, 0, -10)),
			},
		},
	}
}

func TestSelectDueAndNewCards(t *testing.T) {
	src := newFixture()
	seq, err := NewSelector(src).Select(context.Background(), "ada", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	got := slices.Collect(seq)
	want := []string{"older", "past", "today", "fresh"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}

func TestSelectYesterdayAndTomorrow(t *testing.T) {
	src := &fakeSource{
		cards: []domain.Card{{Hash: "a"}, {Hash: "b"}, {Hash: "never"}},
		states: map[string][]domain.ReviewState{
			"bo": {
				reviewed("a", "bo", today.AddDate(0, 0, -1)),
				reviewed("b", "bo", today.AddDate(0, 0, 1)),
			},
		},
	}
	seq, err := NewSelector(src).Select(context.Background(), "bo", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if got := slices.Collect(seq); !slices.Equal(got, []string{"a", "never"}) {
		t.Errorf("Expected [a never], but got %v", got)
	}
}

func TestSelectWithDeck(t *testing.T) {
	seq, err := NewSelector(newFixture()).Select(context.Background(), "ada", today, WithDeck(1))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if got := slices.Collect(seq); !slices.Equal(got, []string{"past"}) {
		t.Errorf("Expected [past], but got %v", got)
	}
}

func TestSelectUnknownLearnerSeesEverything(t *testing.T) {
	seq, err := NewSelector(newFixture()).Select(context.Background(), "cy", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	want := []string{"fresh", "future", "older", "past", "today"}
	if got := slices.Collect(seq); !slices.Equal(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}

func TestSelectTrimsLearner(t *testing.T) {
	seq, err := NewSelector(newFixture()).Select(context.Background(), " ada\t", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	want := []string{"older", "past", "today", "fresh"}
	if got := slices.Collect(seq); !slices.Equal(got, want) {
		t.Errorf("Expected %v, but got %v", want, got)
	}
}

func TestSelectIsRestartableSnapshot(t *testing.T) {
	src := newFixture()
	seq, err := NewSelector(src).Select(context.Background(), "ada", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	first := slices.Collect(seq)
	src.cards = append(src.cards, domain.Card{Hash: "added-later"})
	second := slices.Collect(seq)

	if !slices.Equal(first, second) {
		t.Errorf("Expected identical passes, got %v then %v", first, second)
	}
	if src.reads != 1 {
		t.Errorf("Expected one snapshot read, got %d", src.reads)
	}

	for id := range seq {
		if id == "older" {
			break
		}
		t.Errorf("Expected iteration to start at the oldest due card, got %s", id)
	}
}

func TestSelectErrors(t *testing.T) {
	sel := NewSelector(newFixture())
	if _, err := sel.Select(context.Background(), "  ", today); !errors.Is(err, ErrInvalidLearner) {
		t.Errorf("Expected ErrInvalidLearner, but got %v", err)
	}

	boom := errors.New("disk on fire")
	sel = NewSelector(&fakeSource{err: boom})
	if _, err := sel.Select(context.Background(), "ada", today); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped source error, but got %v", err)
	}
}

func TestSummary(t *testing.T) {
	sum, err := NewSelector(newFixture()).Summary(context.Background(), "ada", today)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	want := Summary{Due: 3, New: 1, Scheduled: 1}
	if sum != want {
		t.Errorf("Expected %+v, but got %+v", want, sum)
	}
	if sum.Total() != 4 {
		t.Errorf("Expected total 4, but got %d", sum.Total())
	}
}
