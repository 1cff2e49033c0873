package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PositionStatus is the lifecycle state of a simulated position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Close reasons recorded on the closed-positions stream.
const (
	CloseReasonTarget      = "target hit"
	CloseReasonStop        = "stop loss hit"
	CloseReasonLiquidation = "liquidated at shutdown"
)

// ErrPositionClosed is returned by any attempt to mutate a CLOSED
// position. CLOSED is terminal; a caller seeing this error on a position
// it believed open has corrupted state and must stop.
var ErrPositionClosed = errors.New("position already closed")

// Position is a single simulated holding of one outcome token. Owned
// exclusively by the ledger; nothing else mutates it.
type Position struct {
	ID         string
	AssetID    string
	Side       Direction // DirectionBuy (long) or DirectionSell (short)
	EntryOdds  Odds
	SizeUSD    float64
	TargetOdds Odds // zero = no target
	StopOdds   Odds // zero = no stop
	Confidence int
	Rationale  string
	OpenedAt   time.Time
	Status     PositionStatus

	// Updated on every mark while OPEN.
	CurrentOdds      Odds
	UnrealizedPnLUSD float64

	// Set exactly once at close, immutable thereafter.
	ClosedAt       *time.Time
	ExitOdds       Odds
	RealizedPnLUSD float64
	CloseReason    string
}

// NewPosition opens a position from an admitted action.
func NewPosition(action ProposedAction, now time.Time) Position {
	return Position{
		ID:          uuid.NewString(),
		AssetID:     action.AssetID,
		Side:        action.Direction,
		EntryOdds:   action.EntryOdds,
		SizeUSD:     action.SizeUSD,
		TargetOdds:  action.TargetOdds,
		StopOdds:    action.StopOdds,
		Confidence:  action.Confidence,
		Rationale:   action.Rationale,
		OpenedAt:    now,
		Status:      StatusOpen,
		CurrentOdds: action.EntryOdds,
	}
}

// Mark reprices the position at current odds, recomputing unrealized PnL
// and closing the position when the stop or target level is crossed.
// The stop is checked first: if one price update crosses both levels the
// position closes as a stop, the conservative reading.
func (p *Position) Mark(current Odds, now time.Time) (closed bool, err error) {
	if p.Status == StatusClosed {
		return false, ErrPositionClosed
	}

	p.CurrentOdds = current
	p.UnrealizedPnLUSD = PnLPerUnit(p.EntryOdds, current, p.Side) * p.SizeUSD

	if p.stopCrossed(current) {
		return true, p.Close(current, CloseReasonStop, now)
	}
	if p.targetCrossed(current) {
		return true, p.Close(current, CloseReasonTarget, now)
	}
	return false, nil
}

// Close transitions the position to CLOSED at the given exit odds,
// freezing realized PnL. Closing an already-closed position is an
// invariant violation and returns ErrPositionClosed.
func (p *Position) Close(exit Odds, reason string, now time.Time) error {
	if p.Status == StatusClosed {
		return ErrPositionClosed
	}
	p.Status = StatusClosed
	p.ClosedAt = &now
	p.ExitOdds = exit
	p.RealizedPnLUSD = PnLPerUnit(p.EntryOdds, exit, p.Side) * p.SizeUSD
	p.CurrentOdds = exit
	p.UnrealizedPnLUSD = 0
	p.CloseReason = reason
	return nil
}

func (p *Position) stopCrossed(current Odds) bool {
	if p.StopOdds == 0 {
		return false
	}
	if p.Side == DirectionSell {
		return current >= p.StopOdds
	}
	return current <= p.StopOdds
}

func (p *Position) targetCrossed(current Odds) bool {
	if p.TargetOdds == 0 {
		return false
	}
	if p.Side == DirectionSell {
		return current <= p.TargetOdds
	}
	return current >= p.TargetOdds
}
