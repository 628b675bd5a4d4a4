package subconscious

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/llm"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/transcript"
)

// RunResult describes one session close.
type RunResult struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Skipped   bool   `json:"skipped"` // already processed or processing
	Proposed  int    `json:"proposed"`
	Applied   int    `json:"applied"`
}

// Runner applies the processor's proposals for closed sessions. Each session
// is processed at most once per subject unless its previous run failed.
type Runner struct {
	engine     *engine.Engine
	dispatcher *protocol.Dispatcher
	processor  *Processor
	timeout    time.Duration
	runs       *prometheus.CounterVec
	applied    prometheus.Counter
}

// NewRunner creates a Runner. A zero timeout means no deadline; a nil
// registerer leaves the metrics unregistered.
func NewRunner(e *engine.Engine, d *protocol.Dispatcher, p *Processor, timeout time.Duration, reg prometheus.Registerer) *Runner {
	factory := promauto.With(reg)
	return &Runner{
		engine:     e,
		dispatcher: d,
		processor:  p,
		timeout:    timeout,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_subconscious_runs_total",
			Help: "Session close runs by outcome.",
		}, []string{"outcome"}),
		applied: factory.NewCounter(prometheus.CounterOpts{
			Name: "lattice_subconscious_ops_applied_total",
			Help: "Operations applied by the subconscious processor.",
		}),
	}
}

// CloseSession snapshots the subject, asks the processor for operations and
// applies them as one batch. The whole batch is rolled back on any failure
// and the session is marked failed, so it can be retried.
func (r *Runner) CloseSession(ctx context.Context, subject, sessionID string, ev Event) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString(), SessionID: sessionID}
	db := r.engine.DB()

	claimed, err := db.BeginSessionRun(ctx, subject, sessionID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Debug().Str("subject", subject).Str("session", sessionID).Msg("subconscious: session already handled")
		r.runs.WithLabelValues("skipped").Inc()
		res.Skipped = true
		return res, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ev.SessionID = sessionID

	runErr := r.run(ctx, subject, ev, res)
	if err := db.FinishSessionRun(context.WithoutCancel(ctx), subject, sessionID, res.Applied, runErr); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("subconscious: record session outcome")
	}
	if runErr != nil {
		r.runs.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("close session %s: %w", sessionID, runErr)
	}
	r.runs.WithLabelValues("completed").Inc()
	r.applied.Add(float64(res.Applied))
	log.Info().Str("run", res.RunID).Str("subject", subject).Str("session", sessionID).
		Int("proposed", res.Proposed).Int("applied", res.Applied).Msg("subconscious: session closed")
	return res, nil
}

func (r *Runner) run(ctx context.Context, subject string, ev Event, res *RunResult) error {
	snap, err := r.engine.Snapshot(ctx, subject)
	if err != nil {
		return err
	}
	calls, err := r.processor.Process(ctx, snap, ev)
	if err != nil {
		return err
	}
	res.Proposed = len(calls)
	if len(calls) == 0 {
		return nil
	}
	if _, err := r.dispatcher.ApplyBatch(ctx, subject, calls); err != nil {
		return err
	}
	res.Applied = len(calls)
	return nil
}

// EventFromTranscript builds event text from a JSONL transcript. Sessions
// started by lattice itself yield an empty event.
func EventFromTranscript(path string) (Event, error) {
	entries, err := transcript.ParseFile(path)
	if err != nil {
		return Event{}, err
	}
	if transcript.IsInternal(entries, llm.InternalSentinel) {
		return Event{}, nil
	}
	return Event{Text: transcript.Condense(entries)}, nil
}
