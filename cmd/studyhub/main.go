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

	"github.com/conorfennell/studyhub/internal/cardstore"
	"github.com/conorfennell/studyhub/internal/config"
	"github.com/conorfennell/studyhub/internal/decksource"
	"github.com/conorfennell/studyhub/internal/ledger"
	"github.com/conorfennell/studyhub/internal/session"
	"github.com/conorfennell/studyhub/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "studyhub: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func newLogger(c config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// 1. Locate and load the deck
	cardsPath, err := decksource.Resolve(decksource.Source{
		Path:        cfg.Data.Cards,
		GitURL:      cfg.Deck.GitURL,
		CheckoutDir: cfg.Deck.CheckoutDir,
		File:        cfg.Deck.File,
	}, logger)
	if err != nil {
		return err
	}
	store, err := cardstore.Load(cardsPath, logger)
	if err != nil {
		return err
	}

	// 2. Open the progress ledger
	l, err := openLedger(cfg.Data, logger)
	if err != nil {
		return err
	}

	// 3. Start the first session and serve
	sc := session.New(store, l, logger)
	sc.Start(session.Options{Shuffle: cfg.Session.Shuffle, Limit: cfg.Session.Limit})

	srv, err := web.NewServer(store, l, sc, web.Options{
		Auth:         cfg.Auth,
		StatsWindow:  cfg.Stats.Window,
		SessionLimit: cfg.Session.Limit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Study hub listening", "addr", cfg.Server.Addr, "login_required", cfg.Auth.Enabled())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// openLedger opens the ledger, replacing a corrupt one only when the
// configuration explicitly asks for it.
func openLedger(c config.Data, logger *slog.Logger) (*ledger.Ledger, error) {
	l, err := ledger.Open(c.Ledger, ledger.WithLogger(logger))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, ledger.ErrCorruptLedger) || !c.ResetCorruptLedger {
		return nil, err
	}

	moved, qerr := ledger.Quarantine(c.Ledger, time.Now())
	if qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	logger.Warn("Corrupt ledger moved aside, starting a new ledger",
		"path", c.Ledger,
		"moved_to", moved,
		"error", err,
	)
	return ledger.Open(c.Ledger, ledger.WithLogger(logger))
}
