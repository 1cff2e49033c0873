// Package engine drives the simulation loop: fetch market data, ask the
// decision-maker for actions, run them through the ledger, mark open
// positions, and flush the periodic reports. Everything happens on one
// goroutine so the ledger never needs a lock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ledger"
	"github.com/alejandrodnm/polysim/internal/ports"
)

const shutdownGrace = 10 * time.Second

// Config holds the engine cadences.
type Config struct {
	CycleInterval  time.Duration
	ReportInterval time.Duration
	FetchTimeout   time.Duration
	OracleTimeout  time.Duration
	Once           bool
}

// Engine owns the cycle loop.
type Engine struct {
	cfg     Config
	ticks   ports.MarketDataProvider
	liq     ports.LiquidityProvider // optional, may be nil
	oracle  ports.ActionProposer
	ledger  *ledger.Ledger
	sink    ports.RecordSink
	console *notify.Console

	last     domain.MarketSnapshot
	haveData bool

	cycles         int
	feedFailures   int
	oracleFailures int
	lastReport     time.Time
	day            int

	now func() time.Time
}

// New creates the engine. The liquidity provider may be nil when no
// on-chain feed is configured.
func New(cfg Config, ticks ports.MarketDataProvider, liq ports.LiquidityProvider,
	oracle ports.ActionProposer, led *ledger.Ledger, sink ports.RecordSink,
	console *notify.Console) *Engine {
	return &Engine{
		cfg:     cfg,
		ticks:   ticks,
		liq:     liq,
		oracle:  oracle,
		ledger:  led,
		sink:    sink,
		console: console,
		now:     time.Now,
	}
}

// Run executes cycles until the context is cancelled, then liquidates
// every open position and writes the final summary. With cfg.Once it
// runs exactly one cycle before the shutdown sequence.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("simulation starting",
		"cycle_interval", e.cfg.CycleInterval,
		"report_interval", e.cfg.ReportInterval,
		"once", e.cfg.Once,
	)
	e.day = e.now().YearDay()
	e.lastReport = e.now()

	if err := e.runCycle(ctx); err != nil {
		return err
	}
	if e.cfg.Once {
		e.shutdown()
		return nil
	}

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown requested, liquidating open positions")
			e.shutdown()
			return nil
		case <-ticker.C:
			if err := e.runCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// runCycle executes one full cycle. Feed and oracle failures degrade the
// cycle (stale data, no actions); the only fatal error is a corrupted
// ledger invariant surfacing from Mark.
func (e *Engine) runCycle(ctx context.Context) error {
	e.cycles++
	start := e.now()

	if day := start.YearDay(); day != e.day {
		e.day = day
		e.ledger.ResetDaily()
	}

	snap, stale := e.fetchSnapshot(ctx)
	if !e.haveData {
		slog.Warn("no market data yet, skipping cycle", "cycle", e.cycles)
		return nil
	}

	actions := e.proposeActions(ctx, snap)

	admitted, rejected := 0, 0
	for _, action := range actions {
		switch e.ledger.ProposeAction(ctx, action).Status {
		case ledger.OutcomeAdmitted:
			admitted++
		case ledger.OutcomeRejected:
			rejected++
		}
	}

	// Marks run strictly after the whole action batch: the decision-maker
	// reasoned over pre-mark state, so admission must too.
	closed := 0
	for asset, odds := range snap.OddsByAsset() {
		done, err := e.ledger.Mark(ctx, asset, odds)
		if err != nil {
			return fmt.Errorf("engine.runCycle: %w", err)
		}
		if done != nil {
			closed++
		}
	}

	if e.now().Sub(e.lastReport) >= e.cfg.ReportInterval {
		e.flushReport(ctx)
		e.lastReport = e.now()
	}

	e.console.PrintCycleStatus(notify.CycleStatusInput{
		Cycle:     e.cycles,
		Ticks:     len(snap.Ticks),
		Proposed:  len(actions),
		Admitted:  admitted,
		Rejected:  rejected,
		Closed:    closed,
		State:     e.ledger.State(),
		FeedStale: stale,
	})

	slog.Debug("cycle complete",
		"cycle", e.cycles,
		"duration", e.now().Sub(start).Round(time.Millisecond),
		"actions", len(actions),
		"closed", closed,
	)
	return nil
}

// fetchSnapshot pulls fresh ticks and liquidity events. On tick failure
// the previous snapshot is reused (stale=true); liquidity failures only
// cost the decision-maker context, never the cycle.
func (e *Engine) fetchSnapshot(ctx context.Context) (domain.MarketSnapshot, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	ticks, err := e.ticks.FetchTicks(fetchCtx)
	if err != nil {
		e.feedFailures++
		slog.Warn("tick fetch failed, reusing last snapshot",
			"err", err, "consecutive_failures", e.feedFailures)
		return e.last, true
	}
	e.feedFailures = 0

	snap := domain.MarketSnapshot{Ticks: ticks, FetchedAt: e.now()}

	if e.liq != nil {
		events, err := e.liq.FetchLiquidityEvents(fetchCtx)
		if err != nil {
			slog.Warn("liquidity fetch failed", "err", err)
		} else {
			snap.Liquidity = events
		}
	}

	e.last = snap
	e.haveData = true
	return snap, false
}

// proposeActions asks the decision-maker for this cycle's batch. A
// failing oracle yields an empty batch: open positions still get marked.
func (e *Engine) proposeActions(ctx context.Context, snap domain.MarketSnapshot) []domain.ProposedAction {
	mc := domain.MarketContext{
		Snapshot:      snap,
		OpenPositions: e.ledger.OpenPositions(),
		State:         e.ledger.State(),
		SuccessRate:   e.ledger.Snapshot().SuccessRate,
		Limits:        e.ledger.Limits(),
	}

	oracleCtx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	actions, err := e.oracle.ProposeActions(oracleCtx, mc)
	if err != nil {
		e.oracleFailures++
		slog.Warn("oracle call failed, no actions this cycle",
			"err", err, "consecutive_failures", e.oracleFailures)
		return nil
	}
	e.oracleFailures = 0
	return actions
}

// flushReport writes the periodic pnl-reports row plus one
// open-positions row per OPEN position, and prints the report.
func (e *Engine) flushReport(ctx context.Context) {
	snap := e.ledger.Snapshot()
	e.record(ctx, domain.StreamPnLReports, domain.SnapshotRow(snap))

	positions := e.ledger.OpenPositions()
	for _, p := range positions {
		e.record(ctx, domain.StreamOpenPositions, domain.OpenPositionRow(p, snap.Timestamp))
	}
	e.console.PrintPnLReport(snap, positions)
}

// shutdown liquidates every open position at the last known odds and
// writes the final report and run summary. Runs on a fresh context so an
// already-cancelled parent cannot abort the export.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), shutdownGrace)
	defer cancel()

	var finalOdds map[string]domain.Odds
	if e.haveData {
		finalOdds = e.last.OddsByAsset()
	}
	liquidated := e.ledger.LiquidateAll(ctx, finalOdds)
	if len(liquidated) > 0 {
		slog.Info("liquidated open positions", "count", len(liquidated))
	}

	snap := e.ledger.Snapshot()
	state := e.ledger.State()
	e.record(ctx, domain.StreamPnLReports, domain.SnapshotRow(snap))
	e.record(ctx, domain.StreamTradingSummary, domain.SummaryRow(snap.Timestamp, e.cycles, snap, state))

	e.console.PrintRunSummary(e.cycles, snap, state, e.ledger.ClosedPositions())
}

// record mirrors the ledger's sink policy: export failures are logged
// and swallowed.
func (e *Engine) record(ctx context.Context, stream domain.Stream, row domain.Row) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Record(ctx, stream, row); err != nil {
		slog.Warn("export sink error", "stream", stream, "err", err)
	}
}
