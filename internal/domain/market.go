package domain

import "time"

// MarketTick is one price/volume observation for an outcome token.
type MarketTick struct {
	AssetID    string
	Odds       Odds
	Volume     float64
	BuyVolume  float64
	SellVolume float64
	Timestamp  time.Time
}

// LiquidityEvent is one on-chain liquidity fill observed on the market.
// Passed through to the decision-maker as extra context; the ledger
// itself does not act on it.
type LiquidityEvent struct {
	TakerAssetID      string
	TakerAmountFilled float64
	MakerAmountFilled float64
	Timestamp         time.Time
}

// MarketSnapshot bundles everything fetched from the external data feed
// in one cycle. The engine keeps the last good snapshot and reuses it
// when the feed is unavailable.
type MarketSnapshot struct {
	Ticks     []MarketTick
	Liquidity []LiquidityEvent
	FetchedAt time.Time
}

// OddsByAsset returns the latest observed odds per asset. When the feed
// delivers several ticks for one asset, the most recent wins.
func (s MarketSnapshot) OddsByAsset() map[string]Odds {
	out := make(map[string]Odds, len(s.Ticks))
	seen := make(map[string]time.Time, len(s.Ticks))
	for _, t := range s.Ticks {
		if prev, ok := seen[t.AssetID]; ok && !t.Timestamp.After(prev) {
			continue
		}
		out[t.AssetID] = t.Odds
		seen[t.AssetID] = t.Timestamp
	}
	return out
}

// MarketContext is the full picture handed to the decision-maker each
// cycle: live market data plus the portfolio it is trading.
type MarketContext struct {
	Snapshot      MarketSnapshot
	OpenPositions []Position
	State         PortfolioState
	SuccessRate   float64
	Limits        RiskLimits
}
