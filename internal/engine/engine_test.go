package engine_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/engine"
	"github.com/alejandrodnm/polysim/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicks struct {
	mu    sync.Mutex
	ticks []domain.MarketTick
	err   error
	calls int
}

func (f *fakeTicks) FetchTicks(context.Context) ([]domain.MarketTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ticks, nil
}

func (f *fakeTicks) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeOracle struct {
	actions []domain.ProposedAction
	err     error
	calls   int
	seen    []domain.MarketContext
}

func (f *fakeOracle) ProposeActions(_ context.Context, mc domain.MarketContext) ([]domain.ProposedAction, error) {
	f.calls++
	f.seen = append(f.seen, mc)
	if f.err != nil {
		return nil, f.err
	}
	return f.actions, nil
}

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

func (s *recordingSink) streams() []domain.Stream {
	out := make([]domain.Stream, len(s.records))
	for i, r := range s.records {
		out[i] = r.stream
	}
	return out
}

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

func testConfig() engine.Config {
	return engine.Config{
		CycleInterval:  time.Minute,
		ReportInterval: time.Hour, // keep periodic reports out of the way
		FetchTimeout:   time.Second,
		OracleTimeout:  time.Second,
		Once:           true,
	}
}

func buyAction(asset string, entry, target, stop float64) domain.ProposedAction {
	return domain.ProposedAction{
		AssetID:    asset,
		Direction:  domain.DirectionBuy,
		Confidence: 50,
		EntryOdds:  domain.Odds(entry),
		TargetOdds: domain.Odds(target),
		StopOdds:   domain.Odds(stop),
		SizeUSD:    1.0,
	}
}

func tick(asset string, odds float64) domain.MarketTick {
	return domain.MarketTick{AssetID: asset, Odds: domain.Odds(odds), Timestamp: time.Now()}
}

func newEngine(cfg engine.Config, ticks *fakeTicks, oracle *fakeOracle, sink *recordingSink) (*engine.Engine, *ledger.Ledger) {
	led := ledger.New(testLimits(), sink)
	console := notify.NewConsoleWriter(io.Discard)
	return engine.New(cfg, ticks, nil, oracle, led, sink, console), led
}

func TestEngine_OnceOpensAndLiquidates(t *testing.T) {
	ticks := &fakeTicks{ticks: []domain.MarketTick{tick("A", 0.70)}}
	oracle := &fakeOracle{actions: []domain.ProposedAction{buyAction("A", 0.65, 0.85, 0.55)}}
	sink := &recordingSink{}
	eng, led := newEngine(testConfig(), ticks, oracle, sink)

	require.NoError(t, eng.Run(context.Background()))

	// The position opened at 0.65, was marked to 0.70, and the shutdown
	// liquidated it at the last known odds.
	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "liquidated at shutdown", closed[0].CloseReason)
	assert.Equal(t, domain.Odds(0.70), closed[0].ExitOdds)
	assert.InDelta(t, 0.05, closed[0].RealizedPnLUSD, 1e-9)

	assert.Equal(t, 1, sink.count(domain.StreamSignalHistory))
	assert.Equal(t, 1, sink.count(domain.StreamClosedPositions))
	assert.Equal(t, 1, sink.count(domain.StreamPnLReports))
	assert.Equal(t, 1, sink.count(domain.StreamTradingSummary))
}

func TestEngine_ActionsApplyBeforeMarks(t *testing.T) {
	// The tick is already below the stop: a position opened this cycle
	// must still be admitted first and then stopped out by the mark, so
	// the signal-history row precedes the closed-positions row.
	ticks := &fakeTicks{ticks: []domain.MarketTick{tick("A", 0.50)}}
	oracle := &fakeOracle{actions: []domain.ProposedAction{buyAction("A", 0.65, 0.85, 0.55)}}
	sink := &recordingSink{}
	eng, led := newEngine(testConfig(), ticks, oracle, sink)

	require.NoError(t, eng.Run(context.Background()))

	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "stop loss hit", closed[0].CloseReason)
	assert.Equal(t, domain.Odds(0.50), closed[0].ExitOdds)

	streams := sink.streams()
	require.GreaterOrEqual(t, len(streams), 2)
	assert.Equal(t, domain.StreamSignalHistory, streams[0])
	assert.Equal(t, domain.StreamClosedPositions, streams[1])
}

func TestEngine_OracleSeesPreMarkState(t *testing.T) {
	ticks := &fakeTicks{ticks: []domain.MarketTick{tick("A", 0.70)}}
	oracle := &fakeOracle{}
	sink := &recordingSink{}
	eng, led := newEngine(testConfig(), ticks, oracle, sink)

	// Pre-seed an open position so the decision-maker has something to see.
	led.ProposeAction(context.Background(), buyAction("A", 0.65, 0.95, 0.05))

	require.NoError(t, eng.Run(context.Background()))

	require.Len(t, oracle.seen, 1)
	mc := oracle.seen[0]
	require.Len(t, mc.OpenPositions, 1)
	// The context carries the state before this cycle's marks: the
	// position still shows its entry odds as current.
	assert.Equal(t, domain.Odds(0.65), mc.OpenPositions[0].CurrentOdds)
	assert.Equal(t, testLimits(), mc.Limits)
}

func TestEngine_OracleFailureStillMarks(t *testing.T) {
	ticks := &fakeTicks{ticks: []domain.MarketTick{tick("A", 0.96)}}
	oracle := &fakeOracle{err: errors.New("model overloaded")}
	sink := &recordingSink{}
	eng, led := newEngine(testConfig(), ticks, oracle, sink)

	led.ProposeAction(context.Background(), buyAction("A", 0.65, 0.95, 0.05))

	require.NoError(t, eng.Run(context.Background()))

	// No actions this cycle, but the open position still got marked and
	// hit its target.
	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "target hit", closed[0].CloseReason)
}

func TestEngine_FeedFailureWithoutDataSkipsCycle(t *testing.T) {
	ticks := &fakeTicks{err: errors.New("connection refused")}
	oracle := &fakeOracle{}
	sink := &recordingSink{}
	eng, _ := newEngine(testConfig(), ticks, oracle, sink)

	require.NoError(t, eng.Run(context.Background()))

	// Never had data: the oracle is not consulted and no signal rows are
	// written, but the shutdown summary still lands.
	assert.Equal(t, 0, oracle.calls)
	assert.Equal(t, 0, sink.count(domain.StreamSignalHistory))
	assert.Equal(t, 1, sink.count(domain.StreamTradingSummary))
}

func TestEngine_FeedFailureReusesLastSnapshot(t *testing.T) {
	ticks := &fakeTicks{ticks: []domain.MarketTick{tick("A", 0.70)}}
	oracle := &fakeOracle{}
	sink := &recordingSink{}

	cfg := testConfig()
	cfg.Once = false
	cfg.CycleInterval = 10 * time.Millisecond
	eng, led := newEngine(cfg, ticks, oracle, sink)
	led.ProposeAction(context.Background(), buyAction("A", 0.65, 0.95, 0.05))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let a couple of cycles run, then kill the feed for a few more.
		time.Sleep(35 * time.Millisecond)
		ticks.fail(errors.New("feed down"))
		time.Sleep(35 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, eng.Run(ctx))

	// Cycles kept running on the stale snapshot after the feed died, so
	// the oracle kept being consulted.
	assert.Greater(t, oracle.calls, 3)
	// The shutdown liquidation used the last good snapshot's odds.
	closed := led.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, domain.Odds(0.70), closed[0].ExitOdds)
}
