package domain

import "time"

// PortfolioState is the process-wide aggregate derived from the ledger's
// positions. Realized PnL and the trade counters live inside the daily
// loss-limit window and reset at the start of each calendar day; open
// positions persist across the reset.
type PortfolioState struct {
	OpenCount        int
	OpenNotionalUSD  float64
	RealizedPnLUSD   float64
	UnrealizedPnLUSD float64
	TradesAttempted  int
	TradesAdmitted   int
	TradesRejected   int
	ClosedWinners    int
	ClosedTotal      int
}

// PortfolioSnapshot is the point-in-time PnL view produced on the report
// cadence and once at shutdown.
type PortfolioSnapshot struct {
	Timestamp        time.Time
	OpenCount        int
	RealizedPnLUSD   float64
	UnrealizedPnLUSD float64
	TotalPnLUSD      float64
	SuccessRate      float64 // closed winners / closed total, 0 when nothing closed
	ClosedWinners    int
	ClosedTotal      int
}
