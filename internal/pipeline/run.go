package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/agent"
	"github.com/lunarwatch/lunarwatch/internal/correlation"
	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/graph"
	"github.com/lunarwatch/lunarwatch/internal/notify"
	"github.com/lunarwatch/lunarwatch/internal/ring"
)

// Bus channels on which analysis outputs are published.
const (
	ChannelAlerts   = "ch:alerts"
	ChannelRings    = "ch:rings"
	ChannelAnalysis = "ch:analysis"
	ChannelTrades   = "ch:trades"
)

// AnalysisPersister saves the outputs of one run and reconstitutes prior
// findings for the agents.
type AnalysisPersister interface {
	LoadLatest(ctx context.Context) (domain.CombinedAnalysis, bool)
	SaveRun(ctx context.Context, combined domain.CombinedAnalysis, snap domain.GraphSnapshot) error
}

// AnalysisRun wires one full analysis pass: roster and trades in, scored
// correlations, graph, rings, agent findings, and the persisted combined
// report out.
type AnalysisRun struct {
	accounts domain.AccountStore
	trades   domain.TradeStore
	rings    domain.RingStore

	scorer   *correlation.BatchScorer
	builder  *graph.Builder
	detector *ring.Detector
	runner   *agent.Runner
	combiner *agent.Combiner
	service  AnalysisPersister

	bus      domain.SignalBus // optional
	notifier *notify.Notifier // optional

	window time.Duration
	logger *slog.Logger
}

// NewAnalysisRun creates the analysis pass. bus and notifier may be nil;
// window bounds how far back settled trades feed the pass.
func NewAnalysisRun(
	accounts domain.AccountStore,
	trades domain.TradeStore,
	rings domain.RingStore,
	scorer *correlation.BatchScorer,
	builder *graph.Builder,
	detector *ring.Detector,
	runner *agent.Runner,
	combiner *agent.Combiner,
	service AnalysisPersister,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	window time.Duration,
	logger *slog.Logger,
) *AnalysisRun {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &AnalysisRun{
		accounts: accounts,
		trades:   trades,
		rings:    rings,
		scorer:   scorer,
		builder:  builder,
		detector: detector,
		runner:   runner,
		combiner: combiner,
		service:  service,
		bus:      bus,
		notifier: notifier,
		window:   window,
		logger:   logger.With(slog.String("component", "analysis_run")),
	}
}

// RunOnce executes one analysis pass end to end and persists the result.
func (r *AnalysisRun) RunOnce(ctx context.Context) (domain.CombinedAnalysis, error) {
	start := time.Now().UTC()
	windowStart := start.Add(-r.window)

	accounts, err := r.accounts.List(ctx, domain.ListOpts{})
	if err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: list accounts: %w", err)
	}

	settled, err := r.trades.ListSettled(ctx, domain.ListOpts{Since: &windowStart})
	if err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: list settled trades: %w", err)
	}

	tradesByAccount := make(map[string][]domain.Trade)
	for _, t := range settled {
		tradesByAccount[t.AccountID] = append(tradesByAccount[t.AccountID], t)
	}

	accountIDs := make([]string, 0, len(accounts))
	for _, a := range accounts {
		accountIDs = append(accountIDs, a.ID)
	}

	results, err := r.scorer.ScoreAll(ctx, accountIDs, tradesByAccount)
	if err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: score correlations: %w", err)
	}

	existing, err := r.rings.ListOpen(ctx)
	if err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: list open rings: %w", err)
	}

	g := r.builder.Build(accounts, results, existing)
	detected := r.detector.Detect(g, tradesByAccount, existing)

	var prior []domain.Finding
	if last, ok := r.service.LoadLatest(ctx); ok {
		for _, rec := range last.Agents {
			prior = append(prior, rec.Findings...)
		}
	}

	agents, err := r.runner.Run(ctx, agent.Snapshot{
		Graph:           g,
		Rings:           detected,
		TradesByAccount: tradesByAccount,
		PriorFindings:   prior,
		WindowStart:     windowStart,
		WindowEnd:       start,
	})
	if err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: run agents: %w", err)
	}

	combined := r.combiner.Combine(ctx, g, detected, agents)
	snap := graph.Snapshot(g, combined.OverallRiskScore)

	if err := r.service.SaveRun(ctx, combined, snap); err != nil {
		return domain.CombinedAnalysis{}, fmt.Errorf("pipeline: persist run: %w", err)
	}

	r.logger.Info("analysis pass complete",
		slog.Int("accounts", len(accounts)),
		slog.Int("settled_trades", len(settled)),
		slog.Int("correlations", len(results)),
		slog.Int("rings", len(detected)),
		slog.Int("alerts", len(combined.Alerts)),
		slog.Float64("risk_score", combined.OverallRiskScore),
		slog.Duration("elapsed", time.Since(start)),
	)

	r.publish(ctx, combined)
	r.dispatch(ctx, combined, existing)

	return combined, nil
}

// busEvent is the envelope for every message published on the bus.
type busEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// publish pushes the run outputs onto the signal bus for live consumers.
// Publish failures are logged and dropped; the run has already persisted.
func (r *AnalysisRun) publish(ctx context.Context, combined domain.CombinedAnalysis) {
	if r.bus == nil {
		return
	}

	r.publishOne(ctx, ChannelAnalysis, busEvent{Type: "analysis", Payload: combined})
	for _, alert := range combined.Alerts {
		r.publishOne(ctx, ChannelAlerts, busEvent{Type: "alert", Payload: alert})
	}
	for _, rg := range combined.Rings {
		r.publishOne(ctx, ChannelRings, busEvent{Type: "ring", Payload: rg})
	}
}

func (r *AnalysisRun) publishOne(ctx context.Context, channel string, ev busEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("bus event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.logger.Warn("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch sends notifications for critical alerts and newly detected rings.
func (r *AnalysisRun) dispatch(ctx context.Context, combined domain.CombinedAnalysis, existing []domain.FraudRing) {
	if r.notifier == nil {
		return
	}

	for _, alert := range combined.Alerts {
		if alert.Severity != domain.SeverityCritical {
			continue
		}
		title, message := notify.FormatAlert(alert)
		if err := r.notifier.Notify(ctx, notify.EventAlertCritical, title, message); err != nil {
			r.logger.Warn("alert notification failed", slog.String("error", err.Error()))
		}
	}

	known := make(map[string]struct{}, len(existing))
	for _, rg := range existing {
		known[rg.ID] = struct{}{}
	}
	for _, rg := range combined.Rings {
		if _, seen := known[rg.ID]; seen {
			continue
		}
		title, message := notify.FormatRing(rg)
		if err := r.notifier.Notify(ctx, notify.EventRingDetected, title, message); err != nil {
			r.logger.Warn("ring notification failed", slog.String("error", err.Error()))
		}
	}
}
