// Package due selects the cards a learner should study on a given day.
package due

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/sm2"
)

var ErrInvalidLearner = errors.New("due: learner id is required")

// Source is the read side of the card catalog and review state store.
type Source interface {
	// DueSnapshot lists the catalog, restricted to one deck when deckID is
	// non-nil, together with every review state recorded for the learner.
	// Both come from the same point in time.
	DueSnapshot(ctx context.Context, learnerID string, deckID *int64) ([]domain.Card, []domain.ReviewState, error)
}

// Selector builds due sets from a Source.
type Selector struct {
	src Source
}

func NewSelector(src Source) *Selector {
	return &Selector{src: src}
}

type options struct {
	deckID *int64
}

// Option narrows a selection.
type Option func(*options)

// WithDeck restricts the selection to cards of one deck.
func WithDeck(id int64) Option {
	return func(o *options) { o.deckID = &id }
}

// Summary counts the cards of a snapshot by scheduling status.
type Summary struct {
	Due       int // reviewed before and due on asOf
	New       int // never reviewed
	Scheduled int // reviewed and due after asOf
}

// Total is the size of the study queue for the day.
func (s Summary) Total() int {
	return s.Due + s.New
}

type entry struct {
	cardID string
	state  *domain.ReviewState
}

// Select returns the ids of cards due for learnerID on asOf.
//
// The catalog and states are read once; the returned sequence iterates over
// that snapshot and can be ranged over any number of times with the same
// result. Previously reviewed cards come first, oldest due date first, then
// cards that were never reviewed. Ties break on card id.
func (s *Selector) Select(ctx context.Context, learnerID string, asOf time.Time, opts ...Option) (iter.Seq[string], error) {
	entries, err := s.snapshot(ctx, learnerID, opts)
	if err != nil {
		return nil, err
	}

	dueEntries := lo.Filter(entries, func(e entry, _ int) bool {
		return e.state == nil || sm2.IsDue(*e.state, asOf)
	})
	slices.SortFunc(dueEntries, compareEntries)
	ids := lo.Map(dueEntries, func(e entry, _ int) string { return e.cardID })

	return slices.Values(ids), nil
}

// Summary counts due, new and scheduled cards for learnerID on asOf.
func (s *Selector) Summary(ctx context.Context, learnerID string, asOf time.Time, opts ...Option) (Summary, error) {
	entries, err := s.snapshot(ctx, learnerID, opts)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, e := range entries {
		switch {
		case e.state == nil:
			sum.New++
		case sm2.IsDue(*e.state, asOf):
			sum.Due++
		default:
			sum.Scheduled++
		}
	}
	return sum, nil
}

func (s *Selector) snapshot(ctx context.Context, learnerID string, opts []Option) ([]entry, error) {
	if strings.TrimSpace(learnerID) == "" {
		return nil, ErrInvalidLearner
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	learnerID = strings.TrimSpace(learnerID)
	cards, states, err := s.src.DueSnapshot(ctx, learnerID, o.deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to read due snapshot for learner %s: %w", learnerID, err)
	}

	byCard := lo.KeyBy(states, func(st domain.ReviewState) string { return st.CardID })
	entries := make([]entry, 0, len(cards))
	for _, c := range cards {
		e := entry{cardID: c.Hash}
		if st, ok := byCard[c.Hash]; ok {
			e.state = &st
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func compareEntries(a, b entry) int {
	switch {
	case a.state != nil && b.state == nil:
		return -1
	case a.state == nil && b.state != nil:
		return 1
	case a.state != nil && b.state != nil:
		if c := a.state.NextReviewDate.Compare(b.state.NextReviewDate); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.cardID, b.cardID)
}
