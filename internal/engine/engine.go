// Package engine applies memory operations to a subject's graph. Every
// mutation for a subject runs under that subject's lock and inside one
// transaction; reads go straight to the store.
package engine

import (
	"context"
	"fmt"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/store"
)

// Engine orchestrates the node, edge and ledger stores for all subjects.
type Engine struct {
	db     *store.DB
	embed  *embedding.Service
	locks  *SubjectLocks
	memory config.MemoryConfig
	recall config.RecallConfig

	// Set on the scoped copy handed to a Batch callback.
	tx   *store.Queries
	held string
}

// New creates an Engine.
func New(db *store.DB, embed *embedding.Service, cfg config.Config) *Engine {
	return &Engine{
		db:     db,
		embed:  embed,
		locks:  NewSubjectLocks(),
		memory: cfg.Memory,
		recall: cfg.Recall,
	}
}

// DB returns the underlying store.
func (e *Engine) DB() *store.DB { return e.db }

// Embeddings returns the embedding service.
func (e *Engine) Embeddings() *embedding.Service { return e.embed }

// Batch runs fn under the subject lock inside a single transaction. The
// Engine passed to fn applies every operation to that transaction, so fn
// either commits entirely or not at all.
func (e *Engine) Batch(ctx context.Context, subject string, fn func(*Engine) error) error {
	if e.held != "" {
		if e.held != subject {
			return apperr.Validation("batch", "batch is bound to subject %q", e.held)
		}
		return fn(e)
	}
	if subject == "" {
		return apperr.Validation("batch", "subject is required")
	}
	unlock, err := e.locks.Lock(ctx, subject)
	if err != nil {
		return err
	}
	defer unlock()

	return e.db.InTx(ctx, func(q *store.Queries) error {
		scoped := *e
		scoped.tx = q
		scoped.held = subject
		return fn(&scoped)
	})
}

// mutate runs fn serialized against other writers of subject.
func (e *Engine) mutate(ctx context.Context, subject string, fn func(q *store.Queries) error) error {
	if e.held != "" {
		if e.held != subject {
			return apperr.Validation("batch", "batch is bound to subject %q", e.held)
		}
		return fn(e.tx)
	}
	unlock, err := e.locks.Lock(ctx, subject)
	if err != nil {
		return err
	}
	defer unlock()
	return e.db.InTx(ctx, fn)
}

// reader returns the queries to read with: the batch transaction if any.
func (e *Engine) reader() *store.Queries {
	if e.tx != nil {
		return e.tx
	}
	return e.db.Queries
}

// graphInScope loads the subject's graph and checks that nodeID belongs to it.
func graphInScope(ctx context.Context, q *store.Queries, subject string, nodeID int64) (*store.Graph, *store.Node, error) {
	graph, err := q.GetGraphBySubject(ctx, subject)
	if err != nil {
		return nil, nil, err
	}
	node, err := q.GetNode(ctx, nodeID)
	if err != nil {
		return nil, nil, err
	}
	if node.GraphID != graph.ID {
		return nil, nil, apperr.NotFound("node", "node %d not in graph of subject %q", nodeID, subject)
	}
	return graph, node, nil
}

func requireSubject(op, subject string) error {
	if subject == "" {
		return apperr.Validation(op, "subject is required")
	}
	return nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
