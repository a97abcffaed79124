// Package decksync reconciles the card catalog with the markdown files of
// every registered deck.
package decksync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/gitsource"
	"github.com/conorfennell/knolrecall/internal/knol"
	"github.com/conorfennell/knolrecall/internal/parser"
)

// ErrInvalidSource is returned for a local deck path that is not a directory.
var ErrInvalidSource = errors.New("decksync: deck path is not a directory")

// ResolveSource classifies a deck source. Git URLs are returned as given;
// local paths are made absolute and must name an existing directory.
func ResolveSource(path string) (string, domain.DeckType, error) {
	if gitsource.IsGitURL(path) {
		return path, domain.DeckGit, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve deck path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%s: %w", abs, ErrInvalidSource)
	}
	return abs, domain.DeckLocal, nil
}

// Store is the catalog persistence the syncer needs.
type Store interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
	InsertCard(ctx context.Context, card domain.Card) (bool, error)
	CardHashesByDeck(ctx context.Context, deckID int64) ([]string, error)
	DeleteCard(ctx context.Context, hash string) error
	TouchDeck(ctx context.Context, id int64, at time.Time) error
}

// GitSyncFunc brings a local checkout of a git deck up to date.
type GitSyncFunc func(ctx context.Context, logger *slog.Logger, url, localPath string) error

// DeckReport summarises the reconciliation of one deck.
type DeckReport struct {
	DeckID   int64
	Path     string
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

type Syncer struct {
	store    Store
	reposDir string
	logger   *slog.Logger
	gitSync  GitSyncFunc
	now      func() time.Time
}

func New(store Store, reposDir string, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:    store,
		reposDir: reposDir,
		logger:   logger,
		gitSync:  gitsource.Sync,
		now:      time.Now,
	}
}

// Run reconciles every deck. A deck that fails is reported and skipped;
// only failing to list decks aborts the run.
func (s *Syncer) Run(ctx context.Context) ([]DeckReport, error) {
	s.logger.Info("Starting sync process for all decks")
	decks, err := s.store.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}
	if len(decks) == 0 {
		s.logger.Info("No decks configured. Add one with --add-deck <path/or/url.git>")
		return nil, nil
	}

	reports := make([]DeckReport, 0, len(decks))
	for _, deck := range decks {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, s.SyncDeck(ctx, deck))
	}
	s.logger.Info("Sync process complete", "decks", len(reports))
	return reports, nil
}

// SyncDeck reconciles a single deck: new cards are inserted, cards whose
// notes disappeared are deleted along with their review states. When any
// note fails to parse, no card of the deck is deleted.
func (s *Syncer) SyncDeck(ctx context.Context, deck domain.Deck) DeckReport {
	report := DeckReport{DeckID: deck.ID, Path: deck.Path}
	logger := s.logger.With("deck_id", deck.ID, "type", deck.Type, "path", deck.Path)

	dir := deck.Path
	if deck.Type == domain.DeckGit {
		local, err := gitsource.LocalPath(s.reposDir, deck.Path)
		if err != nil {
			report.Errors = append(report.Errors, err)
			logger.Error("Error determining local path for git repo", "error", err)
			return report
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			report.Errors = append(report.Errors, err)
			logger.Error("Failed to create repos directory", "error", err)
			return report
		}
		if err := s.gitSync(ctx, logger, deck.Path, local); err != nil {
			report.Errors = append(report.Errors, err)
			logger.Error("Error syncing git repo", "error", err)
			return report
		}
		dir = local
	}

	cards, parseErrs, err := collectCards(dir)
	if err != nil {
		report.Errors = append(report.Errors, err)
		logger.Error("Error walking directory", "error", err)
		return report
	}
	report.Errors = append(report.Errors, parseErrs...)
	knol.Assign(cards, deck.ID)
	cards = lo.UniqBy(cards, func(c domain.Card) string { return c.Hash })
	report.Parsed = len(cards)

	for _, card := range cards {
		inserted, err := s.store.InsertCard(ctx, card)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("db insert for %s: %w", card.Hash, err))
			continue
		}
		if inserted {
			report.Inserted++
		}
	}

	if len(parseErrs) > 0 {
		logger.Warn("Skipping orphan removal, some notes failed to parse", "failed_notes", len(parseErrs))
		s.finish(ctx, logger, deck, report)
		return report
	}

	stored, err := s.store.CardHashesByDeck(ctx, deck.ID)
	if err != nil {
		report.Errors = append(report.Errors, err)
		logger.Error("Error getting cards for deck", "error", err)
		return report
	}
	found := lo.Associate(cards, func(c domain.Card) (string, struct{}) { return c.Hash, struct{}{} })
	orphans := lo.Reject(stored, func(h string, _ int) bool {
		_, ok := found[h]
		return ok
	})
	for _, hash := range orphans {
		if err := s.store.DeleteCard(ctx, hash); err != nil {
			report.Errors = append(report.Errors, err)
			logger.Warn("Failed to delete orphaned card", "hash", hash, "error", err)
			continue
		}
		report.Deleted++
	}

	s.finish(ctx, logger, deck, report)
	return report
}

func (s *Syncer) finish(ctx context.Context, logger *slog.Logger, deck domain.Deck, report DeckReport) {
	if err := s.store.TouchDeck(ctx, deck.ID, s.now()); err != nil {
		logger.Warn("Failed to update last scanned for deck", "error", err)
	}

	logger.Info("reconciliation complete",
		"parsed_cards", report.Parsed,
		"inserted", report.Inserted,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
}

// collectCards parses every markdown file under dir. Parse failures of
// single files are returned alongside the cards that did parse.
func collectCards(dir string) ([]domain.Card, []error, error) {
	var (
		cards []domain.Card
		errs  []error
	)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileCards, err := parser.ParseFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, err))
		}
		cards = append(cards, fileCards...)
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return cards, errs, nil
}
