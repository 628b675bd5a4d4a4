package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/store"
)

// app holds the wiring shared by every command that touches the graph.
type app struct {
	db         *store.DB
	engine     *engine.Engine
	dispatcher *protocol.Dispatcher
	registry   *prometheus.Registry
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	provider := embedding.NewProvider(ctx, cfg.Embedding)
	svc := embedding.NewService(provider, embedding.Options{
		CacheSize:         cfg.Embedding.CacheSize,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		BatchSize:         cfg.Embedding.BatchSize,
		Timeout:           cfg.Embedding.Timeout,
		Registerer:        reg,
	})
	eng := engine.New(db, svc, cfg)
	log.Debug().Str("db", dbPath).Str("embedding", svc.Model()).Msg("lattice: opened")

	return &app{
		db:         db,
		engine:     eng,
		dispatcher: protocol.NewDispatcher(eng, protocol.NewMetrics(reg)),
		registry:   reg,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// subject returns the configured subject or an error when none is set.
func subject(cfg config.Config) (string, error) {
	if cfg.Server.Subject == "" {
		return "", fmt.Errorf("no subject: pass --subject or set server.subject")
	}
	return cfg.Server.Subject, nil
}
