package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
)

// Ledger owns every simulated position and the derived portfolio state.
// It admits proposed actions under the risk limits, advances positions
// on price marks, and aggregates PnL.
//
// The ledger is not safe for concurrent use: the engine is the single
// serialization point and calls it from exactly one goroutine.
type Ledger struct {
	limits domain.RiskLimits
	sink   ports.RecordSink

	open   map[string]*domain.Position // assetID → open position
	closed []domain.Position

	realizedPnLUSD  float64
	tradesAttempted int
	tradesAdmitted  int
	tradesRejected  int
	closedWinners   int
	closedTotal     int

	lastOdds map[string]domain.Odds

	now func() time.Time
}

// New creates a ledger with the given limits. The sink receives the
// signal-history and closed-positions streams; it may be nil in tests.
func New(limits domain.RiskLimits, sink ports.RecordSink) *Ledger {
	return &Ledger{
		limits:   limits,
		sink:     sink,
		open:     make(map[string]*domain.Position),
		lastOdds: make(map[string]domain.Odds),
		now:      time.Now,
	}
}

// Limits returns the immutable risk limits the ledger admits against.
func (l *Ledger) Limits() domain.RiskLimits { return l.limits }

// OutcomeStatus classifies what happened to a proposed action.
type OutcomeStatus string

const (
	OutcomeAdmitted OutcomeStatus = "admitted"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomeSkipped  OutcomeStatus = "skipped"
)

// Outcome is the result of ProposeAction. PositionID is set when a
// position was opened or closed by the action.
type Outcome struct {
	Status     OutcomeStatus
	PositionID string
	Reason     domain.RejectReason
}

// ProposeAction runs one decision-maker action through the risk policy
// and applies it. A BUY that passes admission opens a position; an
// admitted SELL closes the open position on the asset at its last known
// odds. Every outcome, admitted or not, is appended to the
// signal-history stream with a human-readable reason.
func (l *Ledger) ProposeAction(ctx context.Context, action domain.ProposedAction) Outcome {
	l.tradesAttempted++

	decision := l.limits.Admit(action, l.State(), l.OpenPositions())

	var out Outcome
	switch decision.Verdict {
	case domain.VerdictSkip:
		out = Outcome{Status: OutcomeSkipped}

	case domain.VerdictReject:
		l.tradesRejected++
		out = Outcome{Status: OutcomeRejected, Reason: decision.Reason}
		slog.Info("trade rejected",
			"asset", action.AssetID,
			"direction", action.Direction,
			"reason", decision.Reason.Describe(),
		)

	case domain.VerdictAllow:
		if action.Direction == domain.DirectionSell {
			out = l.applySell(ctx, action)
		} else {
			out = l.applyBuy(action)
		}
	}

	reason := ""
	if out.Reason != "" {
		reason = out.Reason.Describe()
	}
	l.record(ctx, domain.StreamSignalHistory,
		domain.SignalRow(l.now(), action, string(out.Status), reason, out.PositionID))
	return out
}

// applyBuy opens a new position from an admitted BUY.
func (l *Ledger) applyBuy(action domain.ProposedAction) Outcome {
	pos := domain.NewPosition(action, l.now())
	l.open[pos.AssetID] = &pos
	l.tradesAdmitted++
	slog.Info("position opened",
		"position_id", pos.ID,
		"asset", pos.AssetID,
		"entry_odds", pos.EntryOdds.Float64(),
		"size_usd", pos.SizeUSD,
	)
	return Outcome{Status: OutcomeAdmitted, PositionID: pos.ID}
}

// applySell closes the open position targeted by an admitted SELL at the
// last odds observed for the asset, falling back to the entry odds when
// no mark was ever seen.
func (l *Ledger) applySell(ctx context.Context, action domain.ProposedAction) Outcome {
	pos := l.open[action.AssetID]

	exit, ok := l.lastOdds[action.AssetID]
	if !ok {
		exit = pos.EntryOdds
	}

	reason := action.Rationale
	if reason == "" {
		reason = "sell signal"
	}
	if err := l.closePosition(ctx, pos, exit, reason); err != nil {
		// Unreachable while the open map only holds OPEN positions;
		// reported as a rejection rather than corrupting state.
		slog.Error("sell close failed", "asset", action.AssetID, "err", err)
		return Outcome{Status: OutcomeRejected, Reason: domain.RejectNoSuchPosition}
	}
	l.tradesAdmitted++
	return Outcome{Status: OutcomeAdmitted, PositionID: pos.ID}
}

// Mark reprices the open position on the asset, if any, possibly
// triggering a stop or target auto-close. The odds are remembered as the
// asset's last known price for later SELL closes and liquidation.
//
// A non-nil error means the ledger's own state is corrupted (a CLOSED
// position inside the open set) and the process must stop.
func (l *Ledger) Mark(ctx context.Context, assetID string, current domain.Odds) (*domain.Position, error) {
	l.lastOdds[assetID] = current

	pos, ok := l.open[assetID]
	if !ok {
		return nil, nil
	}

	closed, err := pos.Mark(current, l.now())
	if err != nil {
		return nil, fmt.Errorf("ledger.Mark: %s: %w", assetID, err)
	}
	if !closed {
		return nil, nil
	}

	l.finishClose(ctx, pos)
	slog.Info("position auto-closed",
		"position_id", pos.ID,
		"asset", pos.AssetID,
		"exit_odds", pos.ExitOdds.Float64(),
		"realized_pnl_usd", pos.RealizedPnLUSD,
		"reason", pos.CloseReason,
	)
	done := *pos
	return &done, nil
}

// Snapshot produces the current PnL view. Pure read; reflects every mark
// and admission applied so far.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	var unrealized float64
	for _, p := range l.open {
		unrealized += p.UnrealizedPnLUSD
	}
	rate := 0.0
	if l.closedTotal > 0 {
		rate = float64(l.closedWinners) / float64(l.closedTotal)
	}
	return domain.PortfolioSnapshot{
		Timestamp:        l.now(),
		OpenCount:        len(l.open),
		RealizedPnLUSD:   l.realizedPnLUSD,
		UnrealizedPnLUSD: unrealized,
		TotalPnLUSD:      l.realizedPnLUSD + unrealized,
		SuccessRate:      rate,
		ClosedWinners:    l.closedWinners,
		ClosedTotal:      l.closedTotal,
	}
}

// LiquidateAll force-closes every open position at the best available
// last-known odds for its asset: the provided final odds, then the
// ledger's own last mark, then the entry odds (realized PnL zero) as the
// degenerate fallback. Used at graceful shutdown so no position is left
// un-reconciled.
func (l *Ledger) LiquidateAll(ctx context.Context, finalOddsByAsset map[string]domain.Odds) []domain.Position {
	assets := make([]string, 0, len(l.open))
	for id := range l.open {
		assets = append(assets, id)
	}
	sort.Strings(assets)

	liquidated := make([]domain.Position, 0, len(assets))
	for _, assetID := range assets {
		pos := l.open[assetID]

		exit, ok := finalOddsByAsset[assetID]
		if !ok {
			exit, ok = l.lastOdds[assetID]
		}
		if !ok {
			exit = pos.EntryOdds
		}

		if err := l.closePosition(ctx, pos, exit, domain.CloseReasonLiquidation); err != nil {
			slog.Error("liquidation close failed", "asset", assetID, "err", err)
			continue
		}
		slog.Info("position liquidated",
			"position_id", pos.ID,
			"asset", assetID,
			"exit_odds", exit.Float64(),
			"realized_pnl_usd", pos.RealizedPnLUSD,
		)
		liquidated = append(liquidated, *pos)
	}
	return liquidated
}

// ResetDaily zeroes realized PnL and the trade counters for the new
// calendar day. Open positions and their unrealized PnL are untouched.
func (l *Ledger) ResetDaily() {
	l.realizedPnLUSD = 0
	l.tradesAttempted = 0
	l.tradesAdmitted = 0
	l.tradesRejected = 0
	l.closedWinners = 0
	l.closedTotal = 0
	slog.Info("daily counters reset", "open_positions", len(l.open))
}

// State derives the current portfolio aggregate from the positions.
func (l *Ledger) State() domain.PortfolioState {
	var notional, unrealized float64
	for _, p := range l.open {
		notional += p.SizeUSD
		unrealized += p.UnrealizedPnLUSD
	}
	return domain.PortfolioState{
		OpenCount:        len(l.open),
		OpenNotionalUSD:  notional,
		RealizedPnLUSD:   l.realizedPnLUSD,
		UnrealizedPnLUSD: unrealized,
		TradesAttempted:  l.tradesAttempted,
		TradesAdmitted:   l.tradesAdmitted,
		TradesRejected:   l.tradesRejected,
		ClosedWinners:    l.closedWinners,
		ClosedTotal:      l.closedTotal,
	}
}

// OpenPositions returns copies of all OPEN positions, ordered by asset.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// ClosedPositions returns copies of all closed positions in close order.
func (l *Ledger) ClosedPositions() []domain.Position {
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// closePosition transitions pos to CLOSED and books the result.
func (l *Ledger) closePosition(ctx context.Context, pos *domain.Position, exit domain.Odds, reason string) error {
	if err := pos.Close(exit, reason, l.now()); err != nil {
		return err
	}
	l.finishClose(ctx, pos)
	return nil
}

// finishClose moves an already-CLOSED position to the closed set and
// updates realized PnL and the win counters.
func (l *Ledger) finishClose(ctx context.Context, pos *domain.Position) {
	delete(l.open, pos.AssetID)
	l.closed = append(l.closed, *pos)
	l.realizedPnLUSD += pos.RealizedPnLUSD
	l.closedTotal++
	if pos.RealizedPnLUSD > 0 {
		l.closedWinners++
	}
	l.record(ctx, domain.StreamClosedPositions, domain.ClosedPositionRow(*pos))
}

// record appends a row to the sink. Export failures are reported and
// swallowed: a broken sink never aborts the trading loop.
func (l *Ledger) record(ctx context.Context, stream domain.Stream, row domain.Row) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Record(ctx, stream, row); err != nil {
		slog.Warn("export sink error", "stream", stream, "err", err)
	}
}
