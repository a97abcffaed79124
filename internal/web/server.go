// Package web exposes study sessions over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolrecall/internal/decksync"
	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/due"
	"github.com/conorfennell/knolrecall/internal/review"
	"github.com/conorfennell/knolrecall/internal/sm2"
)

// Catalog is the deck and card registry behind the API.
type Catalog interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
	InsertDeck(ctx context.Context, path string, deckType domain.DeckType) (int64, error)
	FindDeck(ctx context.Context, id int64) (*domain.Deck, error)
	Cards(ctx context.Context, deckID *int64) ([]domain.Card, error)
	DeleteDeck(ctx context.Context, id int64) error
	FindCard(ctx context.Context, hash string) (*domain.Card, error)
	ReviewLogs(ctx context.Context, cardID, learnerID string) ([]domain.ReviewLog, error)
}

// Syncer reconciles decks with their sources.
type Syncer interface {
	Run(ctx context.Context) ([]decksync.DeckReport, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	catalog  Catalog
	selector *due.Selector
	reviews  *review.Service
	syncer   Syncer
	logger   *slog.Logger
	validate *validator.Validate
	router   *http.ServeMux
	now      func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(catalog Catalog, selector *due.Selector, reviews *review.Service, syncer Syncer, logger *slog.Logger) *Server {
	s := &Server{
		catalog:  catalog,
		selector: selector,
		reviews:  reviews,
		syncer:   syncer,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logRequests(s.router).ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleListDecks())
	s.router.HandleFunc("POST /decks", s.handleAddDeck())
	s.router.HandleFunc("GET /decks/{id}", s.handleGetDeck())
	s.router.HandleFunc("DELETE /decks/{id}", s.handleDeleteDeck())
	s.router.HandleFunc("POST /sync", s.handleSync())

	s.router.HandleFunc("GET /cards/{hash}", s.handleGetCard())

	s.router.HandleFunc("GET /learners/{learner}/due", s.handleDue())
	s.router.HandleFunc("GET /learners/{learner}/summary", s.handleSummary())
	s.router.HandleFunc("GET /learners/{learner}/cards/{hash}/state", s.handleGetState())
	s.router.HandleFunc("GET /learners/{learner}/cards/{hash}/reviews", s.handleListReviews())
	s.router.HandleFunc("POST /learners/{learner}/cards/{hash}/reviews", s.handlePostReview())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request, at warn level for client errors
// and error level for server errors.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sm2.ErrInvalidInput), errors.Is(err, due.ErrInvalidLearner), errors.Is(err, errBadRequest),
		errors.Is(err, decksync.ErrInvalidSource):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCardNotFound), errors.Is(err, domain.ErrDeckNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDeckExists), errors.Is(err, domain.ErrStaleReviewState):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
