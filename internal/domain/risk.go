package domain

// RejectReason identifies which risk check vetoed a proposed action.
type RejectReason string

const (
	RejectLowConfidence          RejectReason = "LowConfidence"
	RejectDuplicateAsset         RejectReason = "DuplicateAsset"
	RejectPositionLimitReached   RejectReason = "PositionLimitReached"
	RejectPositionTooLarge       RejectReason = "PositionTooLarge"
	RejectPortfolioLimitExceeded RejectReason = "PortfolioLimitExceeded"
	RejectDailyLossLimitHit      RejectReason = "DailyLossLimitHit"
	RejectNoSuchPosition         RejectReason = "NoSuchPosition"
)

// Describe returns the human-readable reason string used in console
// output and the signal-history stream.
func (r RejectReason) Describe() string {
	switch r {
	case RejectLowConfidence:
		return "confidence below threshold"
	case RejectDuplicateAsset:
		return "open position already exists for asset"
	case RejectPositionLimitReached:
		return "max open positions reached"
	case RejectPositionTooLarge:
		return "position size above limit"
	case RejectPortfolioLimitExceeded:
		return "portfolio notional limit exceeded"
	case RejectDailyLossLimitHit:
		return "daily loss limit hit, entries blocked for today"
	case RejectNoSuchPosition:
		return "no open position for asset"
	}
	return string(r)
}

// Verdict is the outcome kind of a risk evaluation.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictReject
	VerdictSkip // HOLD actions: not an admission, not a rejection
)

// Decision is the result of evaluating one proposed action against the
// risk limits. Reason is set only when Verdict is VerdictReject.
type Decision struct {
	Verdict Verdict
	Reason  RejectReason
}

// RiskLimits is the immutable rule set applied before any position is
// created. Values are validated at startup and never change for the
// process lifetime.
type RiskLimits struct {
	PortfolioSizeUSD   float64
	MaxPositionSizeUSD float64
	DailyLossLimitUSD  float64
	MaxOpenPositions   int
	MinConfidence      int
}

// Admit evaluates a proposed action against the limits, the current
// portfolio state and the set of open positions. It is pure: identical
// inputs always produce the same decision, and on rejection the same
// first-failing reason, because the checks run in a fixed order.
//
// A SELL closing an existing open position bypasses every check except
// the confidence threshold — closing risk is always allowed, even after
// the daily loss limit fired.
func (l RiskLimits) Admit(action ProposedAction, state PortfolioState, open []Position) Decision {
	if action.Confidence < l.MinConfidence {
		return Decision{Verdict: VerdictReject, Reason: RejectLowConfidence}
	}
	if action.Direction == DirectionHold {
		return Decision{Verdict: VerdictSkip}
	}

	exists := hasOpenPosition(open, action.AssetID)

	if action.Direction == DirectionSell {
		if !exists {
			return Decision{Verdict: VerdictReject, Reason: RejectNoSuchPosition}
		}
		return Decision{Verdict: VerdictAllow}
	}

	if exists {
		return Decision{Verdict: VerdictReject, Reason: RejectDuplicateAsset}
	}
	if len(open) >= l.MaxOpenPositions {
		return Decision{Verdict: VerdictReject, Reason: RejectPositionLimitReached}
	}
	if action.SizeUSD > l.MaxPositionSizeUSD {
		return Decision{Verdict: VerdictReject, Reason: RejectPositionTooLarge}
	}
	if state.OpenNotionalUSD+action.SizeUSD > l.PortfolioSizeUSD {
		return Decision{Verdict: VerdictReject, Reason: RejectPortfolioLimitExceeded}
	}
	if state.RealizedPnLUSD <= -l.DailyLossLimitUSD {
		return Decision{Verdict: VerdictReject, Reason: RejectDailyLossLimitHit}
	}
	return Decision{Verdict: VerdictAllow}
}

func hasOpenPosition(open []Position, assetID string) bool {
	for _, p := range open {
		if p.AssetID == assetID {
			return true
		}
	}
	return false
}
