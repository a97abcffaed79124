package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knolrecall/internal/decksync"
	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/due"
	"github.com/conorfennell/knolrecall/internal/review"
	"github.com/conorfennell/knolrecall/internal/sm2"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type deckJSON struct {
	ID          int64   `json:"id"`
	Path        string  `json:"path"`
	Type        string  `json:"type"`
	CardCount   int     `json:"card_count"`
	LastScanned *string `json:"last_scanned,omitempty"`
}

func toDeckJSON(d domain.Deck) deckJSON {
	out := deckJSON{ID: d.ID, Path: d.Path, Type: string(d.Type), CardCount: d.CardCount}
	if d.LastScanned != nil {
		ts := d.LastScanned.Format(time.RFC3339)
		out.LastScanned = &ts
	}
	return out
}

type cardJSON struct {
	Hash     string `json:"hash"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
	DeckID   int64  `json:"deck_id"`
}

func toCardJSON(c domain.Card) cardJSON {
	return cardJSON{Hash: c.Hash, Question: c.Question, Answer: c.Answer, Context: c.Context, DeckID: c.DeckID}
}

// reviewStateJSON carries the scheduling fields of a ReviewState. Dates are
// YYYY-MM-DD; next_review_date is null for a card that was never reviewed.
type reviewStateJSON struct {
	CardID         string  `json:"card_id"`
	LearnerID      string  `json:"learner_id"`
	EaseFactor     float64 `json:"ease_factor"`
	IntervalDays   int     `json:"interval_days"`
	Repetitions    int     `json:"repetitions"`
	NextReviewDate *string `json:"next_review_date"`
	LastQuality    *int    `json:"last_quality"`
	LastReviewDate *string `json:"last_review_date,omitempty"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func toReviewStateJSON(st domain.ReviewState) reviewStateJSON {
	out := reviewStateJSON{
		CardID:         st.CardID,
		LearnerID:      st.LearnerID,
		EaseFactor:     st.EaseFactor,
		IntervalDays:   st.IntervalDays,
		Repetitions:    st.Repetitions,
		LastQuality:    st.LastQuality,
		LastReviewDate: formatDate(st.LastReviewDate),
	}
	if st.Reviewed() {
		out.NextReviewDate = formatDate(&st.NextReviewDate)
	}
	return out
}

// asOf reads the as_of query parameter, defaulting to today.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return sm2.Day(s.now()), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, badRequest("as_of must be YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func deckOptions(r *http.Request) ([]due.Option, error) {
	raw := r.URL.Query().Get("deck")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badRequest("invalid deck id %q", raw)
	}
	return []due.Option{due.WithDeck(id)}, nil
}

// handleListDecks lists every deck with its card count.
func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.catalog.ListDecks(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]deckJSON, 0, len(decks))
		for _, d := range decks {
			out = append(out, toDeckJSON(d))
		}
		writeJSON(w, http.StatusOK, map[string]any{"decks": out})
	}
}

type addDeckRequest struct {
	Path string `json:"path" validate:"required"`
}

// handleAddDeck registers a local directory or git repository as a deck.
func (s *Server) handleAddDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addDeckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, badRequest("invalid JSON body: %v", err))
			return
		}
		req.Path = strings.TrimSpace(req.Path)
		if err := s.validate.Struct(req); err != nil {
			s.writeError(w, r, badRequest("path cannot be empty"))
			return
		}

		path, deckType, err := decksync.ResolveSource(req.Path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		id, err := s.catalog.InsertDeck(r.Context(), path, deckType)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		deck, err := s.catalog.FindDeck(r.Context(), id)
		if err != nil || deck == nil {
			s.writeError(w, r, fmt.Errorf("reload deck %d: %w", id, err))
			return
		}
		writeJSON(w, http.StatusCreated, toDeckJSON(*deck))
	}
}

func parseDeckID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, badRequest("invalid deck id %q", r.PathValue("id"))
	}
	return id, nil
}

type deckWithCardsJSON struct {
	deckJSON
	Cards []cardJSON `json:"cards"`
}

// handleGetDeck returns a deck together with its cards.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseDeckID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		deck, err := s.catalog.FindDeck(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if deck == nil {
			s.writeError(w, r, fmt.Errorf("deck %d: %w", id, domain.ErrDeckNotFound))
			return
		}
		cards, err := s.catalog.Cards(r.Context(), &id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := deckWithCardsJSON{deckJSON: toDeckJSON(*deck), Cards: make([]cardJSON, 0, len(cards))}
		for _, c := range cards {
			out.Cards = append(out.Cards, toCardJSON(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleDeleteDeck deletes a deck together with its cards and review states.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseDeckID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.catalog.DeleteDeck(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncReportJSON struct {
	DeckID   int64    `json:"deck_id"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// handleSync runs a sync in the foreground and reports per-deck results.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.syncer.Run(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]syncReportJSON, 0, len(reports))
		for _, rep := range reports {
			j := syncReportJSON{DeckID: rep.DeckID, Path: rep.Path, Parsed: rep.Parsed, Inserted: rep.Inserted, Deleted: rep.Deleted}
			for _, e := range rep.Errors {
				j.Errors = append(j.Errors, e.Error())
			}
			out = append(out, j)
		}
		writeJSON(w, http.StatusOK, map[string]any{"decks": out})
	}
}

// handleGetCard renders both sides of a card.
func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		card, err := s.catalog.FindCard(r.Context(), hash)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if card == nil {
			s.writeError(w, r, fmt.Errorf("card %s: %w", hash, domain.ErrCardNotFound))
			return
		}
		writeJSON(w, http.StatusOK, toCardJSON(*card))
	}
}

type dueResponse struct {
	LearnerID string   `json:"learner_id"`
	AsOf      string   `json:"as_of"`
	CardIDs   []string `json:"card_ids"`
}

// handleDue lists the learner's due cards, optionally for one deck and capped by limit.
func (s *Server) handleDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.PathValue("learner")
		asOf, err := s.asOf(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		opts, err := deckOptions(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
				s.writeError(w, r, badRequest("invalid limit %q", raw))
				return
			}
		}

		seq, err := s.selector.Select(r.Context(), learner, asOf, opts...)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ids := []string{}
		for id := range seq {
			if limit > 0 && len(ids) == limit {
				break
			}
			ids = append(ids, id)
		}
		writeJSON(w, http.StatusOK, dueResponse{LearnerID: learner, AsOf: asOf.Format(time.DateOnly), CardIDs: ids})
	}
}

type summaryResponse struct {
	LearnerID string `json:"learner_id"`
	AsOf      string `json:"as_of"`
	Due       int    `json:"due"`
	New       int    `json:"new"`
	Scheduled int    `json:"scheduled"`
}

// handleSummary counts due, new and scheduled cards for a deck overview.
func (s *Server) handleSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.PathValue("learner")
		asOf, err := s.asOf(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		opts, err := deckOptions(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sum, err := s.selector.Summary(r.Context(), learner, asOf, opts...)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summaryResponse{
			LearnerID: learner,
			AsOf:      asOf.Format(time.DateOnly),
			Due:       sum.Due,
			New:       sum.New,
			Scheduled: sum.Scheduled,
		})
	}
}

// handleGetState returns the learner's schedule for a card.
func (s *Server) handleGetState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner, hash := r.PathValue("learner"), r.PathValue("hash")
		card, err := s.catalog.FindCard(r.Context(), hash)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if card == nil {
			s.writeError(w, r, fmt.Errorf("card %s: %w", hash, domain.ErrCardNotFound))
			return
		}
		st, err := s.reviews.State(r.Context(), learner, hash)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toReviewStateJSON(st))
	}
}

type reviewLogJSON struct {
	Quality      int     `json:"quality"`
	ReviewedOn   string  `json:"reviewed_on"`
	IntervalDays int     `json:"interval_days"`
	EaseFactor   float64 `json:"ease_factor"`
}

// handleListReviews returns the learner's review history for a card.
func (s *Server) handleListReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := s.catalog.ReviewLogs(r.Context(), r.PathValue("hash"), r.PathValue("learner"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]reviewLogJSON, 0, len(logs))
		for _, l := range logs {
			out = append(out, reviewLogJSON{
				Quality:      l.Quality,
				ReviewedOn:   l.ReviewedOn.Format(time.DateOnly),
				IntervalDays: l.IntervalDays,
				EaseFactor:   l.EaseFactor,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"reviews": out})
	}
}

type postReviewRequest struct {
	Quality    *int   `json:"quality" validate:"required"`
	ReviewedOn string `json:"reviewed_on"`
}

// handlePostReview records a quality rating and returns the new schedule.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, badRequest("invalid JSON body: %v", err))
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.writeError(w, r, badRequest("quality is required"))
			return
		}

		reviewedOn := sm2.Day(s.now())
		if req.ReviewedOn != "" {
			t, err := time.Parse(time.DateOnly, req.ReviewedOn)
			if err != nil {
				s.writeError(w, r, badRequest("reviewed_on must be YYYY-MM-DD, got %q", req.ReviewedOn))
				return
			}
			reviewedOn = t
		}

		st, err := s.reviews.Review(r.Context(), review.Request{
			LearnerID:  r.PathValue("learner"),
			CardID:     r.PathValue("hash"),
			Quality:    *req.Quality,
			ReviewedOn: reviewedOn,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toReviewStateJSON(st))
	}
}
