package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lunarwatch/lunarwatch/internal/agent"
	"github.com/lunarwatch/lunarwatch/internal/ai"
	"github.com/lunarwatch/lunarwatch/internal/analysis"
	"github.com/lunarwatch/lunarwatch/internal/correlation"
	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/graph"
	"github.com/lunarwatch/lunarwatch/internal/pipeline"
	"github.com/lunarwatch/lunarwatch/internal/platform/deriv"
	"github.com/lunarwatch/lunarwatch/internal/ring"
	"github.com/lunarwatch/lunarwatch/internal/server"
	"github.com/lunarwatch/lunarwatch/internal/server/handler"
	"github.com/lunarwatch/lunarwatch/internal/server/ws"
)

// AnalyzeMode runs a single analysis pass and exits. Intended for cron-style
// deployments and ad-hoc investigation.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode (one-shot)")

	run, _ := a.buildAnalysis(deps)
	combined, err := run.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	a.logger.InfoContext(ctx, "analysis complete",
		slog.Int("alerts", len(combined.Alerts)),
		slog.Int("rings", len(combined.Rings)),
		slog.Float64("risk_score", combined.OverallRiskScore),
	)
	return nil
}

// IngestMode runs only the trade ingestion loop.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	ingester, err := a.buildIngester(deps)
	if err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(
		ingester, nil, nil,
		deps.LockManager, deps.Notifier,
		a.orchestratorConfig(), a.logger,
	)
	return orch.Run(ctx)
}

// ServerMode serves the HTTP and WebSocket API over previously persisted
// analysis state. No ingestion or analysis runs.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	_, svc := a.buildAnalysis(deps)
	a.startHTTPServer(ctx, g, deps, svc, nil)
	return g.Wait()
}

// FullMode runs every subsystem: ingestion, the analysis loop, archival, and
// the API server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	run, svc := a.buildAnalysis(deps)

	ingester, err := a.buildIngester(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, deps.TradeStore, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	} else {
		a.logger.InfoContext(ctx, "s3 not configured, cold-storage archival disabled")
	}

	orch := pipeline.NewOrchestrator(
		ingester, run, archiver,
		deps.LockManager, deps.Notifier,
		a.orchestratorConfig(), a.logger,
	)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, orch)
	}

	return g.Wait()
}

// buildAnalysis constructs the analysis pass and the persistence service it
// writes through.
func (a *App) buildAnalysis(deps *Dependencies) (*pipeline.AnalysisRun, *analysis.Service) {
	scorer := correlation.NewScorer(correlation.ScorerConfig{
		MatchWindow:         a.cfg.Correlation.MatchWindow.Duration,
		AmountCeiling:       a.cfg.Correlation.AmountCeiling,
		TimingWeight:        a.cfg.Correlation.TimingWeight,
		DirectionWeight:     a.cfg.Correlation.DirectionWeight,
		AmountWeight:        a.cfg.Correlation.AmountWeight,
		FlaggedThreshold:    a.cfg.Correlation.FlaggedThreshold,
		SuspiciousThreshold: a.cfg.Correlation.SuspiciousThreshold,
	})
	batch := correlation.NewBatchScorer(scorer, deps.CorrelationCache, a.cfg.Correlation.Workers, a.logger)

	builder := graph.NewBuilder(a.logger)
	detector := ring.NewDetector(ring.DetectorConfig{MaxRingSize: a.cfg.Ring.MaxRingSize}, a.logger)

	agents := []agent.Agent{
		agent.NewStructuralAgent(agent.StructuralConfig{
			HubDegree:       a.cfg.Agents.HubDegree,
			FlaggedChildren: a.cfg.Agents.FlaggedChildren,
		}),
		agent.NewTemporalAgent(agent.TemporalConfig{
			Bucket:        a.cfg.Agents.BurstBucket.Duration,
			BurstAccounts: a.cfg.Agents.BurstAccounts,
		}),
		agent.NewBehavioralAgent(agent.BehavioralConfig{
			PairWindow:     a.cfg.Agents.PairWindow.Duration,
			StakeTolerance: a.cfg.Agents.StakeTolerance,
			MinOccurrences: a.cfg.Agents.MinOccurrences,
		}),
	}
	runner := agent.NewRunner(agents, a.cfg.Agents.Deadline.Duration, deps.AgentStore, a.logger)

	var narrator agent.Narrator
	if a.cfg.AI.Endpoint != "" {
		narrator = ai.NewNarrator(a.cfg.AI.Endpoint, a.cfg.AI.APIKey, a.cfg.AI.Timeout.Duration)
	}

	combinerCfg := agent.DefaultCombinerConfig()
	if a.cfg.Agents.AlertSeverityFloor != "" {
		combinerCfg.SeverityFloor = domain.FindingSeverity(a.cfg.Agents.AlertSeverityFloor)
	}
	combiner := agent.NewCombiner(combinerCfg, narrator, a.logger)

	svc := analysis.NewService(analysis.Config{
		CoherenceWindow: a.cfg.Analysis.CoherenceWindow.Duration,
		RequiredAgents:  a.cfg.Analysis.RequiredAgents,
		RecentAlerts:    a.cfg.Analysis.RecentAlerts,
	}, deps.AgentStore, deps.AlertStore, deps.RingStore, deps.SnapshotStore, a.logger)

	run := pipeline.NewAnalysisRun(
		deps.AccountStore, deps.TradeStore, deps.RingStore,
		batch, builder, detector, runner, combiner, svc,
		deps.SignalBus, deps.Notifier,
		a.cfg.Pipeline.AnalysisWindow.Duration, a.logger,
	)
	return run, svc
}

// buildIngester constructs the upstream client and its credential provider.
func (a *App) buildIngester(deps *Dependencies) (*pipeline.Ingester, error) {
	client := deriv.NewClient(a.cfg.Deriv.WsURL, a.cfg.Deriv.AppID)

	var provider deriv.TokenProvider
	switch {
	case a.cfg.Deriv.APIToken != "":
		p, err := deriv.NewStaticProvider(a.cfg.Deriv.APIToken)
		if err != nil {
			return nil, err
		}
		provider = p
	case a.cfg.Deriv.EncryptedKeyPath != "":
		provider = deriv.NewEncryptedProvider(a.cfg.Deriv.EncryptedKeyPath, a.cfg.Deriv.KeyPassword)
	case a.cfg.Deriv.TokenDir != "":
		provider = deriv.NewFileProvider(a.cfg.Deriv.TokenDir, a.cfg.Deriv.TokenWait.Duration)
	default:
		return nil, fmt.Errorf("no credential source configured")
	}

	return pipeline.NewIngester(client, provider, deps.BlobReader, deps.AccountStore, deps.TradeStore, a.logger), nil
}

func (a *App) orchestratorConfig() pipeline.OrchestratorConfig {
	return pipeline.OrchestratorConfig{
		IngestInterval:   a.cfg.Pipeline.IngestInterval.Duration,
		AnalysisInterval: a.cfg.Pipeline.AnalysisInterval.Duration,
		ArchiveInterval:  a.cfg.Pipeline.ArchiveInterval.Duration,
		LockTTL:          a.cfg.Pipeline.LockTTL.Duration,
	}
}

// startHTTPServer adds the API server goroutines to the given errgroup. The
// WebSocket hub is attached only when the signal bus is wired. trigger may be
// nil, in which case POST /api/analysis/run reports the pipeline as
// unavailable.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *analysis.Service,
	trigger handler.AnalysisTrigger,
) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Analysis: handler.NewAnalysisHandler(svc, trigger, a.logger),
		Alerts:   handler.NewAlertHandler(deps.AlertStore, a.logger),
		Rings:    handler.NewRingHandler(deps.RingStore, a.logger),
		Graph:    handler.NewGraphHandler(deps.SnapshotStore, deps.CorrelationCache, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
