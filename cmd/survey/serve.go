package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"readingsurvey/internal/app"
)

const evictInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: a.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	// the catalog loads while the server already accepts tabs; views show a
	// loading state until it arrives
	g.Go(func() error {
		cat, err := a.Catalog.Load(gctx)
		if err != nil {
			log.Error("texts could not be loaded", "url", cfg.TextsEndpoint(), "error", err)
			return nil
		}
		log.Info("texts loaded", "count", cat.Len(), "version", cfg.Texts.Version)
		return nil
	})

	// tabs idle past their token lifetime are dropped from memory
	g.Go(func() error {
		a.Sessions.RunEviction(gctx, evictInterval, cfg.TabTTL())
		return nil
	})

	g.Go(func() error {
		log.Info("server starting", "port", cfg.HTTP.Port, "store", cfg.Store.Backend, "target_count", cfg.Survey.TargetCount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
