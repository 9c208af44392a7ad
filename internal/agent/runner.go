package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Runner executes all agents concurrently over one snapshot and barrier-waits
// for every agent to reach a terminal state. Failure domains are isolated: a
// panicking, erroring, or timed-out agent produces a failed AgentAnalysis and
// the remaining agents run to completion. A plain WaitGroup is used rather
// than an errgroup because the first error must never cancel the siblings.
type Runner struct {
	agents   []Agent
	deadline time.Duration
	store    domain.AgentAnalysisStore
	logger   *slog.Logger
}

// NewRunner creates a Runner with a per-agent deadline. store may be nil to
// skip persistence (tests).
func NewRunner(agents []Agent, deadline time.Duration, store domain.AgentAnalysisStore, logger *slog.Logger) *Runner {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Runner{
		agents:   agents,
		deadline: deadline,
		store:    store,
		logger:   logger.With(slog.String("component", "agent_runner")),
	}
}

// Run executes every agent and returns one AgentAnalysis per agent, in agent
// registration order. Records are appended to the store as each agent
// finishes; a persistence failure is logged and reported in the returned
// error but does not discard the in-memory records.
func (r *Runner) Run(ctx context.Context, snap Snapshot) ([]domain.AgentAnalysis, error) {
	records := make([]domain.AgentAnalysis, len(r.agents))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var persistErr error

	for i, ag := range r.agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := r.runOne(ctx, ag, snap)
			records[i] = rec

			if r.store != nil {
				if err := r.store.Append(ctx, rec); err != nil {
					r.logger.Error("agent analysis append failed",
						slog.String("agent", ag.Name()),
						slog.String("error", err.Error()),
					)
					mu.Lock()
					persistErr = fmt.Errorf("agent runner: append %s: %w", ag.Name(), domain.ErrPersistence)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return records, persistErr
}

// runOne executes a single agent under its own deadline, converting panics
// and timeouts into a failed record.
func (r *Runner) runOne(ctx context.Context, ag Agent, snap Snapshot) domain.AgentAnalysis {
	rec := domain.AgentAnalysis{
		ID:        uuid.NewString(),
		AgentType: ag.Type(),
		AgentName: ag.Name(),
		Status:    domain.AgentRunning,
		StartedAt: time.Now().UTC(),
	}

	agentCtx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	res, err := r.analyze(agentCtx, ag, snap)
	done := time.Now().UTC()
	rec.CompletedAt = &done

	if err != nil {
		rec.Status = domain.AgentFailed
		rec.Error = err.Error()
		r.logger.Warn("agent failed",
			slog.String("agent", ag.Name()),
			slog.String("error", err.Error()),
		)
		return rec
	}

	rec.Status = domain.AgentCompleted
	rec.Findings = res.Findings
	rec.Summary = res.Summary
	rec.Metrics = res.Metrics
	r.logger.Info("agent completed",
		slog.String("agent", ag.Name()),
		slog.Int("findings", len(res.Findings)),
		slog.Duration("elapsed", done.Sub(rec.StartedAt)),
	)
	return rec
}

// analyze invokes the agent with panic capture.
func (r *Runner) analyze(ctx context.Context, ag Agent, snap Snapshot) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: agent %s panicked: %v", domain.ErrStage, ag.Name(), p)
		}
	}()
	res, err = ag.Analyze(ctx, snap)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrStage, ag.Name(), err)
	}
	return res, err
}
