package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// MarketDataProvider fetches the current price/volume ticks for the
// tracked outcome tokens.
type MarketDataProvider interface {
	FetchTicks(ctx context.Context) ([]domain.MarketTick, error)
}

// LiquidityProvider fetches recent on-chain liquidity events. Optional
// context for the decision-maker; a failing provider never blocks the
// cycle.
type LiquidityProvider interface {
	FetchLiquidityEvents(ctx context.Context) ([]domain.LiquidityEvent, error)
}

// ActionProposer is the external decision-maker: an opaque oracle that
// turns market context into a batch of proposed actions. Any backing
// model can be substituted without touching the ledger.
type ActionProposer interface {
	ProposeActions(ctx context.Context, mc domain.MarketContext) ([]domain.ProposedAction, error)
}
