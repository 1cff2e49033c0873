package domain

import "time"

// Stream names one of the append-only export streams. Each stream maps
// to one table (SQLite sink) or one workbook (XLSX sink).
type Stream string

const (
	StreamOpenPositions   Stream = "open_positions"
	StreamClosedPositions Stream = "closed_positions"
	StreamPnLReports      Stream = "pnl_reports"
	StreamSignalHistory   Stream = "signal_history"
	StreamTradingSummary  Stream = "trading_summary"
)

// Streams lists every export stream, in creation order.
func Streams() []Stream {
	return []Stream{
		StreamOpenPositions,
		StreamClosedPositions,
		StreamPnLReports,
		StreamSignalHistory,
		StreamTradingSummary,
	}
}

// Row is one exported record. Column order follows Stream.Columns.
type Row []any

// Columns returns the column names for the stream, in row order.
func (s Stream) Columns() []string {
	switch s {
	case StreamOpenPositions:
		return []string{"recorded_at", "position_id", "asset_id", "side",
			"entry_odds", "current_odds", "target_odds", "stop_odds",
			"size_usd", "unrealized_pnl_usd", "confidence", "rationale"}
	case StreamClosedPositions:
		return []string{"closed_at", "position_id", "asset_id", "side",
			"entry_odds", "exit_odds", "target_odds", "stop_odds",
			"size_usd", "realized_pnl_usd", "close_reason", "opened_at"}
	case StreamPnLReports:
		return []string{"recorded_at", "open_count", "realized_pnl_usd",
			"unrealized_pnl_usd", "total_pnl_usd", "success_rate"}
	case StreamSignalHistory:
		return []string{"recorded_at", "asset_id", "direction", "confidence",
			"entry_odds", "target_odds", "stop_odds", "size_usd",
			"outcome", "reason", "position_id", "rationale"}
	case StreamTradingSummary:
		return []string{"recorded_at", "cycles", "trades_attempted",
			"trades_admitted", "trades_rejected", "open_count", "closed_count",
			"realized_pnl_usd", "unrealized_pnl_usd", "total_pnl_usd",
			"success_rate"}
	}
	return nil
}

// OpenPositionRow builds an open-positions row for one OPEN position.
func OpenPositionRow(p Position, at time.Time) Row {
	return Row{at.UTC().Format(time.RFC3339), p.ID, p.AssetID, string(p.Side),
		p.EntryOdds.Float64(), p.CurrentOdds.Float64(),
		p.TargetOdds.Float64(), p.StopOdds.Float64(),
		p.SizeUSD, p.UnrealizedPnLUSD, p.Confidence, p.Rationale}
}

// ClosedPositionRow builds the terminal record for a closed position.
func ClosedPositionRow(p Position) Row {
	closedAt := ""
	if p.ClosedAt != nil {
		closedAt = p.ClosedAt.UTC().Format(time.RFC3339)
	}
	return Row{closedAt, p.ID, p.AssetID, string(p.Side),
		p.EntryOdds.Float64(), p.ExitOdds.Float64(),
		p.TargetOdds.Float64(), p.StopOdds.Float64(),
		p.SizeUSD, p.RealizedPnLUSD, p.CloseReason,
		p.OpenedAt.UTC().Format(time.RFC3339)}
}

// SnapshotRow builds a pnl-reports row.
func SnapshotRow(s PortfolioSnapshot) Row {
	return Row{s.Timestamp.UTC().Format(time.RFC3339), s.OpenCount,
		s.RealizedPnLUSD, s.UnrealizedPnLUSD, s.TotalPnLUSD, s.SuccessRate}
}

// SignalRow builds a signal-history row for one proposed-action outcome.
// The rationale is preserved verbatim for audit.
func SignalRow(at time.Time, a ProposedAction, outcome, reason, positionID string) Row {
	return Row{at.UTC().Format(time.RFC3339), a.AssetID, string(a.Direction),
		a.Confidence, a.EntryOdds.Float64(), a.TargetOdds.Float64(),
		a.StopOdds.Float64(), a.SizeUSD, outcome, reason, positionID,
		a.Rationale}
}

// SummaryRow builds the single trading-summary row written at the end of
// a run.
func SummaryRow(at time.Time, cycles int, snap PortfolioSnapshot, state PortfolioState) Row {
	return Row{at.UTC().Format(time.RFC3339), cycles,
		state.TradesAttempted, state.TradesAdmitted, state.TradesRejected,
		snap.OpenCount, state.ClosedTotal,
		snap.RealizedPnLUSD, snap.UnrealizedPnLUSD, snap.TotalPnLUSD,
		snap.SuccessRate}
}
