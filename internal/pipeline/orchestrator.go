// Package pipeline schedules ingestion, analysis, and archival as supervised
// loops sharing one context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/notify"
)

// analysisLockKey is the distributed lock guarding analysis runs across
// instances.
const analysisLockKey = "lunarwatch:analysis:run"

// OrchestratorConfig holds the loop intervals and lock policy.
type OrchestratorConfig struct {
	IngestInterval   time.Duration
	AnalysisInterval time.Duration
	ArchiveInterval  time.Duration
	LockTTL          time.Duration
}

// Orchestrator manages the pipeline goroutines: trade ingestion, the
// analysis pass, and cold-storage archival. Any of the three sub-systems may
// be nil, in which case its loop is not started.
type Orchestrator struct {
	ingester *Ingester
	analysis *AnalysisRun
	archiver *Archiver
	locks    domain.LockManager // optional
	notifier *notify.Notifier   // optional
	cfg      OrchestratorConfig
	logger   *slog.Logger

	// trigger carries manual analysis requests into the analysis loop.
	trigger chan struct{}
}

// NewOrchestrator creates an Orchestrator coordinating the given sub-systems.
func NewOrchestrator(
	ingester *Ingester,
	analysis *AnalysisRun,
	archiver *Archiver,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.IngestInterval <= 0 {
		cfg.IngestInterval = time.Minute
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 5 * time.Minute
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		ingester: ingester,
		analysis: analysis,
		archiver: archiver,
		locks:    locks,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
		trigger:  make(chan struct{}, 1),
	}
}

// Run starts the sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("ingest_interval", o.cfg.IngestInterval),
		slog.Duration("analysis_interval", o.cfg.AnalysisInterval),
		slog.Duration("archive_interval", o.cfg.ArchiveInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.ingester != nil {
		g.Go(func() error {
			o.logger.Info("starting ingestion loop")
			err := o.ingester.RunLoop(ctx, o.cfg.IngestInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ingester: %w", err)
		})
	}

	if o.analysis != nil {
		g.Go(func() error {
			o.logger.Info("starting analysis loop")
			err := o.runAnalysisLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("analysis loop: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver loop")
			err := o.archiver.RunLoop(ctx, o.cfg.ArchiveInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// TriggerAnalysis requests an out-of-schedule analysis pass. It returns
// ErrLockHeld when a trigger is already queued; the pass itself runs
// asynchronously in the analysis loop.
func (o *Orchestrator) TriggerAnalysis(_ context.Context) error {
	if o.analysis == nil {
		return fmt.Errorf("pipeline: analysis not configured")
	}
	select {
	case o.trigger <- struct{}{}:
		return nil
	default:
		return domain.ErrLockHeld
	}
}

// runAnalysisLoop runs analysis passes on the interval and on manual
// triggers. The first pass runs immediately.
func (o *Orchestrator) runAnalysisLoop(ctx context.Context) error {
	o.runGuarded(ctx)

	ticker := time.NewTicker(o.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("analysis loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.runGuarded(ctx)
		case <-o.trigger:
			o.logger.Info("manual analysis trigger")
			o.runGuarded(ctx)
		}
	}
}

// runGuarded executes one analysis pass under the distributed lock. When
// another instance holds the lock the pass is skipped, not queued.
func (o *Orchestrator) runGuarded(ctx context.Context) {
	if o.locks != nil {
		token, err := o.locks.Acquire(ctx, analysisLockKey, o.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.Info("analysis lock held elsewhere, skipping pass")
			} else {
				o.logger.Warn("analysis lock acquire failed", slog.String("error", err.Error()))
			}
			return
		}
		defer func() {
			if err := o.locks.Release(ctx, analysisLockKey, token); err != nil {
				o.logger.Warn("analysis lock release failed", slog.String("error", err.Error()))
			}
		}()
	}

	if _, err := o.analysis.RunOnce(ctx); err != nil {
		o.logger.Error("analysis pass failed", slog.String("error", err.Error()))
		if o.notifier != nil {
			if nerr := o.notifier.Notify(ctx, notify.EventAnalysisFailed, "Analysis pass failed", err.Error()); nerr != nil {
				o.logger.Warn("failure notification failed", slog.String("error", nerr.Error()))
			}
		}
	}
}
