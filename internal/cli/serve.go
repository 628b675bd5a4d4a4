package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lazypower/lattice/internal/llm"
	"github.com/lazypower/lattice/internal/server"
	"github.com/lazypower/lattice/internal/subconscious"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := server.Options{Version: VersionString(), Gatherer: a.registry}
	if cfg.Subconscious.Enabled {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			log.Warn().Err(err).Msg("llm not configured, subconscious uses heuristics")
			client = nil
		} else if client != nil {
			log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("llm configured")
		}
		processor := subconscious.NewProcessor(client, cfg.Subconscious)
		opts.Runner = subconscious.NewRunner(a.engine, a.dispatcher, processor, cfg.Subconscious.Timeout, a.registry)
		if root, err := cfg.TranscriptRoot(); err != nil {
			log.Warn().Err(err).Msg("transcript dir unresolved, transcript paths rejected")
		} else {
			opts.TranscriptDir = root
		}
	}

	srv := server.New(a.engine, a.dispatcher, opts)
	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("db", a.db.Path).
			Str("embedding", a.engine.Embeddings().Model()).Msg("lattice serving")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// let in-flight session runs finish before the database closes
	if err := srv.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("session runs still in flight at shutdown")
	}
	return nil
}
