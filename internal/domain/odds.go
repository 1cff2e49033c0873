package domain

import (
	"errors"
	"fmt"
)

// Odds is a market-implied probability of a binary outcome, constrained
// to [0, 1]. It is not a currency price: PnL is the odds delta times the
// position size in USD.
type Odds float64

// ErrInvalidOdds marks a price value outside [0, 1]. Out-of-range values
// are rejected, never clamped, so upstream data bugs surface instead of
// silently corrupting PnL.
var ErrInvalidOdds = errors.New("odds outside [0, 1]")

// NewOdds validates v and returns it as Odds.
func NewOdds(v float64) (Odds, error) {
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidOdds, v)
	}
	return Odds(v), nil
}

// Float64 returns the odds as a plain float.
func (o Odds) Float64() float64 { return float64(o) }

// Direction is the trade direction proposed by the decision-maker.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// ParseDirection maps a free-form verb from the decision-maker to a
// Direction. CLOSE is accepted as a synonym for SELL — the original
// oracle uses both interchangeably.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "BUY":
		return DirectionBuy, nil
	case "SELL", "CLOSE":
		return DirectionSell, nil
	case "HOLD":
		return DirectionHold, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// PnLPerUnit is the profit per dollar of position size for a move from
// entry to exit. Prediction-market PnL is linear in the odds delta:
// (exit-entry) for a long, (entry-exit) for a short.
func PnLPerUnit(entry, exit Odds, dir Direction) float64 {
	if dir == DirectionSell {
		return float64(entry - exit)
	}
	return float64(exit - entry)
}
