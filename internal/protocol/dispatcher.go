package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/engine"
)

// Metrics counts and times dispatched operations.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers operation metrics on reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_operations_total",
			Help: "Memory operations by name and outcome.",
		}, []string{"op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_operation_duration_seconds",
			Help:    "Memory operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// Dispatcher applies operations to the engine.
type Dispatcher struct {
	engine  *engine.Engine
	metrics *Metrics
}

var _ Visitor = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. A nil m gets unregistered metrics.
func NewDispatcher(e *engine.Engine, m *Metrics) *Dispatcher {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Dispatcher{engine: e, metrics: m}
}

// Execute decodes and applies one call for subject.
func (d *Dispatcher) Execute(ctx context.Context, subject string, c Call) (any, error) {
	op, err := DecodeCall(c)
	if err != nil {
		d.observe(c.Op, subject, time.Now(), err)
		return nil, err
	}
	return d.Apply(ctx, subject, op)
}

// Apply runs an already decoded operation.
func (d *Dispatcher) Apply(ctx context.Context, subject string, op Operation) (any, error) {
	start := time.Now()
	result, err := op.Accept(ctx, subject, d)
	d.observe(op.Name(), subject, start, err)
	return result, err
}

// ApplyBatch validates every call, then applies them in order under one
// subject lock and one transaction. Any failure rolls back the whole batch.
func (d *Dispatcher) ApplyBatch(ctx context.Context, subject string, calls []Call) ([]any, error) {
	ops := make([]Operation, len(calls))
	for i, c := range calls {
		op, err := DecodeCall(c)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		ops[i] = op
	}

	results := make([]any, 0, len(ops))
	err := d.engine.Batch(ctx, subject, func(tx *engine.Engine) error {
		scoped := &Dispatcher{engine: tx, metrics: d.metrics}
		for i, op := range ops {
			res, err := scoped.Apply(ctx, subject, op)
			if err != nil {
				return fmt.Errorf("call %d (%s): %w", i, op.Name(), err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("subject", subject).Int("ops", len(ops)).Msg("batch applied")
	return results, nil
}

func (d *Dispatcher) observe(op, subject string, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	d.metrics.ops.WithLabelValues(op, outcome).Inc()
	d.metrics.duration.WithLabelValues(op).Observe(elapsed.Seconds())

	switch {
	case err == nil:
		log.Debug().Str("op", op).Str("subject", subject).Dur("duration", elapsed).Msg("operation completed")
	case apperr.KindOf(err) == apperr.KindStorage || apperr.KindOf(err) == apperr.KindUpstream:
		log.Error().Err(err).Str("op", op).Str("subject", subject).Dur("duration", elapsed).Msg("operation failed")
	default:
		log.Info().Err(err).Str("op", op).Str("subject", subject).Msg("operation rejected")
	}
}

func (d *Dispatcher) VisitRemember(ctx context.Context, subject string, op *Remember) (any, error) {
	return d.engine.Remember(ctx, subject, engine.RememberParams{
		Content:      op.Content,
		NodeType:     op.NodeType,
		Salience:     op.Salience,
		Gravity:      op.Gravity,
		Depth:        op.Depth,
		Confidence:   op.Confidence,
		Tags:         op.Tags,
		SourceType:   op.SourceType,
		SourceID:     op.SourceID,
		RelatedTo:    op.RelatedTo,
		RelationType: op.RelationType,
	})
}

func (d *Dispatcher) VisitRecall(ctx context.Context, subject string, op *Recall) (any, error) {
	opts := engine.RecallOptions{
		MaxResults:   op.MaxResults,
		Tags:         op.Tags,
		IncludeEdges: op.IncludeEdges,
	}
	if op.NodeType != "" {
		opts.NodeTypes = []string{op.NodeType}
	}
	if op.MinGravity != nil {
		opts.MinGravity = *op.MinGravity
	}
	return d.engine.Recall(ctx, subject, op.Query, opts)
}

func (d *Dispatcher) VisitRelate(ctx context.Context, subject string, op *Relate) (any, error) {
	return d.engine.Relate(ctx, subject, engine.RelateParams{
		SourceID:     op.SourceID,
		TargetID:     op.TargetID,
		RelationType: op.RelationType,
		Weight:       op.Weight,
		Context:      op.Context,
	})
}

func (d *Dispatcher) VisitObserve(ctx context.Context, subject string, op *Observe) (any, error) {
	return d.engine.Observe(ctx, subject, engine.ObserveParams{
		EntryType:     op.EntryType,
		Content:       op.Content,
		Confidence:    op.Confidence,
		RelatedNodeID: op.RelatedNodeID,
		Actor:         op.Actor,
	})
}

func (d *Dispatcher) VisitForget(ctx context.Context, subject string, op *Forget) (any, error) {
	return d.engine.Forget(ctx, subject, op.NodeID, op.Amount)
}

func (d *Dispatcher) VisitReinforce(ctx context.Context, subject string, op *Reinforce) (any, error) {
	return d.engine.Reinforce(ctx, subject, engine.ReinforceParams{
		Tags:    op.Tags,
		NodeIDs: op.NodeIDs,
		Amount:  op.Amount,
	})
}

func (d *Dispatcher) VisitWhoAmI(ctx context.Context, subject string, _ *WhoAmI) (any, error) {
	return d.engine.WhoAmI(ctx, subject)
}

func (d *Dispatcher) VisitStatus(ctx context.Context, subject string, _ *Status) (any, error) {
	return d.engine.Status(ctx, subject)
}
