package domain

// ProposedAction is one trade suggestion from the decision-maker.
// It is immutable input: consumed by the ledger on arrival and archived
// verbatim to the signal-history stream.
//
// A BUY opens a new position, a SELL closes the open position on the
// asset, a HOLD is an explicit no-op. TargetOdds and StopOdds of zero
// mean the decision-maker set no exit level on that side.
type ProposedAction struct {
	AssetID    string
	Direction  Direction
	Confidence int // 0-100
	EntryOdds  Odds
	TargetOdds Odds
	StopOdds   Odds
	SizeUSD    float64
	Rationale  string
}
