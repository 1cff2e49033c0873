package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyAction(asset string, entry, target, stop float64) domain.ProposedAction {
	return domain.ProposedAction{
		AssetID:    asset,
		Direction:  domain.DirectionBuy,
		Confidence: 50,
		EntryOdds:  domain.Odds(entry),
		TargetOdds: domain.Odds(target),
		StopOdds:   domain.Odds(stop),
		SizeUSD:    1.0,
		Rationale:  "momentum building",
	}
}

func TestNewPosition(t *testing.T) {
	now := time.Now()
	p := domain.NewPosition(buyAction("TRUMP-YES", 0.65, 0.85, 0.55), now)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.StatusOpen, p.Status)
	assert.Equal(t, domain.Odds(0.65), p.CurrentOdds)
	assert.Zero(t, p.UnrealizedPnLUSD)
	assert.Nil(t, p.ClosedAt)
}

func TestPosition_Mark_UpdatesUnrealized(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())

	closed, err := p.Mark(0.70, time.Now())
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, domain.Odds(0.70), p.CurrentOdds)
	assert.InDelta(t, 0.05, p.UnrealizedPnLUSD, 1e-9)
	assert.Equal(t, domain.StatusOpen, p.Status)
}

func TestPosition_Mark_TargetClose(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())

	closed, err := p.Mark(0.90, time.Now())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, domain.StatusClosed, p.Status)
	assert.Equal(t, "target hit", p.CloseReason)
	// Closes at the observed odds, not the configured target level.
	assert.Equal(t, domain.Odds(0.90), p.ExitOdds)
	assert.InDelta(t, 0.25, p.RealizedPnLUSD, 1e-9)
	assert.Zero(t, p.UnrealizedPnLUSD)
	require.NotNil(t, p.ClosedAt)
}

func TestPosition_Mark_StopClose(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())

	closed, err := p.Mark(0.50, time.Now())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "stop loss hit", p.CloseReason)
	assert.Equal(t, domain.Odds(0.50), p.ExitOdds)
	assert.InDelta(t, -0.15, p.RealizedPnLUSD, 1e-9)
}

func TestPosition_Mark_StopBeatsTarget(t *testing.T) {
	// Degenerate config where a single print crosses both levels. The
	// conservative reading wins: it is a stop.
	action := buyAction("A", 0.65, 0.40, 0.50)
	p := domain.NewPosition(action, time.Now())

	closed, err := p.Mark(0.45, time.Now())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "stop loss hit", p.CloseReason)
}

func TestPosition_Mark_ZeroLevelsNeverClose(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0, 0), time.Now())

	for _, odds := range []domain.Odds{0.01, 0.99, 0.5} {
		closed, err := p.Mark(odds, time.Now())
		require.NoError(t, err)
		assert.False(t, closed)
	}
}

func TestPosition_Mark_AtExactLevel(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())
	closed, err := p.Mark(0.85, time.Now())
	require.NoError(t, err)
	assert.True(t, closed, "landing exactly on the target counts as crossed")

	p2 := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())
	closed, err = p2.Mark(0.55, time.Now())
	require.NoError(t, err)
	assert.True(t, closed, "landing exactly on the stop counts as crossed")
	assert.Equal(t, "stop loss hit", p2.CloseReason)
}

func TestPosition_ShortLevelsInverted(t *testing.T) {
	action := buyAction("A", 0.65, 0.45, 0.80)
	action.Direction = domain.DirectionSell
	p := domain.NewPosition(action, time.Now())

	closed, err := p.Mark(0.40, time.Now())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "target hit", p.CloseReason)
	assert.InDelta(t, 0.25, p.RealizedPnLUSD, 1e-9)
}

func TestPosition_CloseIsTerminal(t *testing.T) {
	p := domain.NewPosition(buyAction("A", 0.65, 0.85, 0.55), time.Now())
	require.NoError(t, p.Close(0.70, "sell signal", time.Now()))

	err := p.Close(0.75, "again", time.Now())
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	_, err = p.Mark(0.75, time.Now())
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	// The frozen close fields survived the failed attempts.
	assert.Equal(t, domain.Odds(0.70), p.ExitOdds)
	assert.Equal(t, "sell signal", p.CloseReason)
}
