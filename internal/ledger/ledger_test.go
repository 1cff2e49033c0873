package ledger_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures every exported row, in call order.
type recordingSink struct {
	records []sinkRecord
}

type sinkRecord struct {
	stream domain.Stream
	row    domain.Row
}

func (s *recordingSink) Record(_ context.Context, stream domain.Stream, row domain.Row) error {
	s.records = append(s.records, sinkRecord{stream: stream, row: row})
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(stream domain.Stream) int {
	n := 0
	for _, r := range s.records {
		if r.stream == stream {
			n++
		}
	}
	return n
}

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		PortfolioSizeUSD:   10,
		MaxPositionSizeUSD: 1.5,
		DailyLossLimitUSD:  3,
		MaxOpenPositions:   2,
		MinConfidence:      30,
	}
}

func buy(asset string, entry, target, stop, size float64) domain.ProposedAction {
	return domain.ProposedAction{
		AssetID:    asset,
		Direction:  domain.DirectionBuy,
		Confidence: 50,
		EntryOdds:  domain.Odds(entry),
		TargetOdds: domain.Odds(target),
		StopOdds:   domain.Odds(stop),
		SizeUSD:    size,
		Rationale:  "volume spike",
	}
}

func sell(asset string) domain.ProposedAction {
	return domain.ProposedAction{
		AssetID:    asset,
		Direction:  domain.DirectionSell,
		Confidence: 80,
		Rationale:  "taking profit",
	}
}

func TestLedger_BuyOpensPosition(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)

	out := led.ProposeAction(context.Background(), buy("A", 0.65, 0.85, 0.55, 1.0))
	require.Equal(t, ledger.OutcomeAdmitted, out.Status)
	assert.NotEmpty(t, out.PositionID)

	state := led.State()
	assert.Equal(t, 1, state.OpenCount)
	assert.InDelta(t, 1.0, state.OpenNotionalUSD, 1e-9)
	assert.Equal(t, 1, state.TradesAttempted)
	assert.Equal(t, 1, state.TradesAdmitted)
	assert.Equal(t, 0, state.TradesRejected)

	// Every outcome lands in signal history.
	assert.Equal(t, 1, sink.count(domain.StreamSignalHistory))
}

func TestLedger_RejectionCountsAndRecords(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)

	led.ProposeAction(context.Background(), buy("A", 0.65, 0.85, 0.55, 1.0))
	led.ProposeAction(context.Background(), buy("B", 0.5, 0.7, 0.4, 1.0))

	// Position limit is 2: the third entry bounces.
	out := led.ProposeAction(context.Background(), buy("C", 0.5, 0.7, 0.4, 1.0))
	require.Equal(t, ledger.OutcomeRejected, out.Status)
	assert.Equal(t, domain.RejectPositionLimitReached, out.Reason)

	state := led.State()
	assert.Equal(t, 3, state.TradesAttempted)
	assert.Equal(t, 2, state.TradesAdmitted)
	assert.Equal(t, 1, state.TradesRejected)
	assert.Equal(t, 2, state.OpenCount)
	assert.Equal(t, 3, sink.count(domain.StreamSignalHistory))
}

func TestLedger_HoldIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)

	out := led.ProposeAction(context.Background(),
		domain.ProposedAction{AssetID: "A", Direction: domain.DirectionHold, Confidence: 70})
	require.Equal(t, ledger.OutcomeSkipped, out.Status)

	state := led.State()
	assert.Equal(t, 1, state.TradesAttempted)
	assert.Equal(t, 0, state.TradesAdmitted)
	assert.Equal(t, 0, state.TradesRejected)
	assert.Equal(t, 1, sink.count(domain.StreamSignalHistory))
}

func TestLedger_MarkTriggersTargetClose(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.85, 0.55, 1.0))

	done, err := led.Mark(context.Background(), "A", 0.90)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, "target hit", done.CloseReason)
	assert.InDelta(t, 0.25, done.RealizedPnLUSD, 1e-9)

	state := led.State()
	assert.Equal(t, 0, state.OpenCount)
	assert.InDelta(t, 0.25, state.RealizedPnLUSD, 1e-9)
	assert.Equal(t, 1, state.ClosedTotal)
	assert.Equal(t, 1, state.ClosedWinners)
	assert.Equal(t, 1, sink.count(domain.StreamClosedPositions))
}

func TestLedger_MarkGapThroughStopClosesAtObserved(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.85, 0.55, 1.0))

	// Price gaps far past the stop level: the close books the odds that
	// were actually observed, not the configured stop.
	done, err := led.Mark(context.Background(), "A", 0.30)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, "stop loss hit", done.CloseReason)
	assert.Equal(t, domain.Odds(0.30), done.ExitOdds)
	assert.InDelta(t, -0.35, done.RealizedPnLUSD, 1e-9)
	assert.Equal(t, 0, led.State().ClosedWinners)
}

func TestLedger_MarkUnknownAssetIsNoop(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	done, err := led.Mark(context.Background(), "GHOST", 0.5)
	require.NoError(t, err)
	assert.Nil(t, done)
}

func TestLedger_SellClosesAtLastMark(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))

	_, err := led.Mark(context.Background(), "A", 0.70)
	require.NoError(t, err)

	out := led.ProposeAction(context.Background(), sell("A"))
	require.Equal(t, ledger.OutcomeAdmitted, out.Status)

	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, domain.Odds(0.70), closed[0].ExitOdds)
	assert.InDelta(t, 0.05, closed[0].RealizedPnLUSD, 1e-9)
	assert.Equal(t, "taking profit", closed[0].CloseReason)
}

func TestLedger_SellWithoutMarkClosesAtEntry(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))

	out := led.ProposeAction(context.Background(), sell("A"))
	require.Equal(t, ledger.OutcomeAdmitted, out.Status)

	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, domain.Odds(0.65), closed[0].ExitOdds)
	assert.Zero(t, closed[0].RealizedPnLUSD)
}

func TestLedger_SellUnknownAssetRejected(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	out := led.ProposeAction(context.Background(), sell("GHOST"))
	require.Equal(t, ledger.OutcomeRejected, out.Status)
	assert.Equal(t, domain.RejectNoSuchPosition, out.Reason)
}

func TestLedger_LossLimitBlocksEntriesNotExits(t *testing.T) {
	limits := testLimits()
	limits.DailyLossLimitUSD = 0.3
	led := ledger.New(limits, &recordingSink{})

	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))
	led.ProposeAction(context.Background(), buy("B", 0.65, 0.95, 0.05, 1.0))

	// Mark A down hard and sell it: realized -0.35 breaches the limit.
	_, err := led.Mark(context.Background(), "A", 0.30)
	require.NoError(t, err)
	out := led.ProposeAction(context.Background(), sell("A"))
	require.Equal(t, ledger.OutcomeAdmitted, out.Status)
	require.InDelta(t, -0.35, led.State().RealizedPnLUSD, 1e-9)

	// New entries bounce for the rest of the day.
	out = led.ProposeAction(context.Background(), buy("C", 0.5, 0.7, 0.4, 1.0))
	require.Equal(t, ledger.OutcomeRejected, out.Status)
	assert.Equal(t, domain.RejectDailyLossLimitHit, out.Reason)

	// Closing the surviving position is still allowed.
	out = led.ProposeAction(context.Background(), sell("B"))
	assert.Equal(t, ledger.OutcomeAdmitted, out.Status)
}

func TestLedger_ResetDaily(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))
	led.ProposeAction(context.Background(), buy("B", 0.65, 0.95, 0.05, 1.0))
	_, err := led.Mark(context.Background(), "A", 0.30)
	require.NoError(t, err)
	led.ProposeAction(context.Background(), sell("A"))

	led.ResetDaily()

	state := led.State()
	assert.Zero(t, state.RealizedPnLUSD)
	assert.Zero(t, state.TradesAttempted)
	assert.Zero(t, state.TradesAdmitted)
	assert.Zero(t, state.TradesRejected)
	assert.Zero(t, state.ClosedTotal)
	assert.Zero(t, state.ClosedWinners)
	// Open positions carry over into the new day.
	assert.Equal(t, 1, state.OpenCount)
}

func TestLedger_LiquidateAll(t *testing.T) {
	sink := &recordingSink{}
	led := ledger.New(testLimits(), sink)
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))
	led.ProposeAction(context.Background(), buy("B", 0.50, 0.95, 0.05, 1.0))

	_, err := led.Mark(context.Background(), "A", 0.70)
	require.NoError(t, err)

	// Final odds cover A only: B falls back to its last mark, and with no
	// mark either, to the entry odds.
	liquidated := led.LiquidateAll(context.Background(),
		map[string]domain.Odds{"A": 0.75})

	require.Len(t, liquidated, 2)
	assert.Equal(t, "A", liquidated[0].AssetID)
	assert.Equal(t, domain.Odds(0.75), liquidated[0].ExitOdds)
	assert.InDelta(t, 0.10, liquidated[0].RealizedPnLUSD, 1e-9)
	assert.Equal(t, "liquidated at shutdown", liquidated[0].CloseReason)

	assert.Equal(t, "B", liquidated[1].AssetID)
	assert.Equal(t, domain.Odds(0.50), liquidated[1].ExitOdds)
	assert.Zero(t, liquidated[1].RealizedPnLUSD)

	assert.Equal(t, 0, led.State().OpenCount)
	assert.Equal(t, 2, sink.count(domain.StreamClosedPositions))
}

func TestLedger_SnapshotAggregates(t *testing.T) {
	led := ledger.New(testLimits(), &recordingSink{})
	led.ProposeAction(context.Background(), buy("A", 0.65, 0.95, 0.05, 1.0))
	led.ProposeAction(context.Background(), buy("B", 0.50, 0.95, 0.05, 1.0))

	_, err := led.Mark(context.Background(), "A", 0.70)
	require.NoError(t, err)
	_, err = led.Mark(context.Background(), "B", 0.60)
	require.NoError(t, err)

	snap := led.Snapshot()
	assert.Equal(t, 2, snap.OpenCount)
	assert.InDelta(t, 0.15, snap.UnrealizedPnLUSD, 1e-9)
	assert.Zero(t, snap.RealizedPnLUSD)
	assert.InDelta(t, 0.15, snap.TotalPnLUSD, 1e-9)
	assert.Zero(t, snap.SuccessRate)

	// Close one winner: the success rate becomes 1/1.
	_, err = led.Mark(context.Background(), "A", 0.95)
	require.NoError(t, err)
	snap = led.Snapshot()
	assert.InDelta(t, 1.0, snap.SuccessRate, 1e-9)
	assert.Equal(t, 1, snap.ClosedWinners)
}

func TestLedger_NilSinkIsSafe(t *testing.T) {
	led := ledger.New(testLimits(), nil)
	out := led.ProposeAction(context.Background(), buy("A", 0.65, 0.85, 0.55, 1.0))
	assert.Equal(t, ledger.OutcomeAdmitted, out.Status)
	_, err := led.Mark(context.Background(), "A", 0.90)
	assert.NoError(t, err)
}
