package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolrecall/internal/config"
	"github.com/conorfennell/knolrecall/internal/decksync"
	"github.com/conorfennell/knolrecall/internal/domain"
	"github.com/conorfennell/knolrecall/internal/due"
	"github.com/conorfennell/knolrecall/internal/review"
	"github.com/conorfennell/knolrecall/internal/storage"
	"github.com/conorfennell/knolrecall/internal/web"
)

func main() {
	fs := pflag.NewFlagSet("knolrecall", pflag.ExitOnError)
	config.RegisterFlags(fs)
	addDeck := fs.String("add-deck", "", "Register a deck: a directory of markdown notes or a git URL")
	runSync := fs.Bool("sync", false, "Sync every deck into the card catalog")
	serve := fs.Bool("serve", false, "Start the HTTP server")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knolrecall: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knolrecall: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *addDeck, *runSync, *serve); err != nil {
		logger.Error("knolrecall failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, addDeck string, runSync, serve bool) error {
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB.Path)

	syncer := decksync.New(db, cfg.Repos.Dir, logger)

	if addDeck != "" {
		if err := registerDeck(ctx, db, logger, addDeck); err != nil {
			return err
		}
	}

	if runSync {
		reports, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			for _, e := range r.Errors {
				logger.Warn("sync error", "deck", r.Path, "error", e)
			}
		}
	}

	if !serve {
		if addDeck == "" && !runSync {
			logger.Info("Nothing to do. Use --add-deck, --sync or --serve")
		}
		return nil
	}

	server := web.NewServer(db, due.NewSelector(db), review.NewService(db, logger), syncer, logger)
	return listen(ctx, cfg.Server.Addr, server, logger)
}

func registerDeck(ctx context.Context, db *storage.DB, logger *slog.Logger, path string) error {
	path, deckType, err := decksync.ResolveSource(path)
	if err != nil {
		return err
	}

	id, err := db.InsertDeck(ctx, path, deckType)
	if errors.Is(err, domain.ErrDeckExists) {
		logger.Info("Deck already registered", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Deck added", "id", id, "type", deckType, "path", path)
	return nil
}

func listen(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
