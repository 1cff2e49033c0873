// Package replay provides offline stand-ins for the market feed and the
// decision-maker, used by dry-run mode. No network, no API keys: ticks
// follow a seeded random walk and actions come from a fixed heuristic,
// so a full simulation can be exercised end to end deterministically.
package replay

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Feed generates synthetic per-asset ticks as a bounded random walk.
type Feed struct {
	rng  *rand.Rand
	odds map[string]float64
}

var replayAssets = map[string]float64{
	"SYNTH-ELECTION-YES": 0.62,
	"SYNTH-RATECUT-YES":  0.35,
	"SYNTH-CHAMPION-YES": 0.48,
	"SYNTH-LAUNCH-YES":   0.81,
}

// NewFeed creates a feed. The same seed always produces the same tick
// sequence.
func NewFeed(seed int64) *Feed {
	odds := make(map[string]float64, len(replayAssets))
	for asset, start := range replayAssets {
		odds[asset] = start
	}
	return &Feed{rng: rand.New(rand.NewSource(seed)), odds: odds}
}

// FetchTicks advances every synthetic market one step and returns the
// ticks, deterministically ordered by asset.
func (f *Feed) FetchTicks(_ context.Context) ([]domain.MarketTick, error) {
	now := time.Now()
	ticks := make([]domain.MarketTick, 0, len(f.odds))
	for _, asset := range sortedAssets() {
		f.odds[asset] = clampOdds(f.odds[asset] + (f.rng.Float64()-0.5)*0.06)

		volume := 50 + f.rng.Float64()*150
		buyShare := f.rng.Float64()
		ticks = append(ticks, domain.MarketTick{
			AssetID:    asset,
			Odds:       domain.Odds(f.odds[asset]),
			Volume:     volume,
			BuyVolume:  volume * buyShare,
			SellVolume: volume * (1 - buyShare),
			Timestamp:  now,
		})
	}
	return ticks, nil
}

func sortedAssets() []string {
	return []string{
		"SYNTH-CHAMPION-YES",
		"SYNTH-ELECTION-YES",
		"SYNTH-LAUNCH-YES",
		"SYNTH-RATECUT-YES",
	}
}

func clampOdds(v float64) float64 {
	// The walk stays inside the open interval so generated ticks always
	// validate.
	if v < 0.02 {
		return 0.02
	}
	if v > 0.98 {
		return 0.98
	}
	return v
}

// Oracle proposes actions from a fixed momentum heuristic: buy when buy
// volume dominates and the book has room, sell a position once it moved
// a few points either way.
type Oracle struct{}

// NewOracle creates the heuristic decision-maker.
func NewOracle() *Oracle { return &Oracle{} }

// ProposeActions implements ports.ActionProposer.
func (o *Oracle) ProposeActions(_ context.Context, mc domain.MarketContext) ([]domain.ProposedAction, error) {
	var actions []domain.ProposedAction

	held := make(map[string]struct{}, len(mc.OpenPositions))
	for _, p := range mc.OpenPositions {
		held[p.AssetID] = struct{}{}
	}

	for _, pos := range mc.OpenPositions {
		move := pos.CurrentOdds.Float64() - pos.EntryOdds.Float64()
		switch {
		case move >= 0.04:
			actions = append(actions, domain.ProposedAction{
				AssetID:    pos.AssetID,
				Direction:  domain.DirectionSell,
				Confidence: 75,
				Rationale:  fmt.Sprintf("up %.2f from entry, locking in", move),
			})
		case move <= -0.04:
			actions = append(actions, domain.ProposedAction{
				AssetID:    pos.AssetID,
				Direction:  domain.DirectionSell,
				Confidence: 70,
				Rationale:  fmt.Sprintf("down %.2f from entry, cutting", -move),
			})
		default:
			actions = append(actions, domain.ProposedAction{
				AssetID:    pos.AssetID,
				Direction:  domain.DirectionHold,
				Confidence: 60,
				Rationale:  "within band, holding",
			})
		}
	}

	slots := mc.Limits.MaxOpenPositions - len(held)
	for _, tick := range mc.Snapshot.Ticks {
		if slots <= 0 {
			break
		}
		if _, ok := held[tick.AssetID]; ok {
			continue
		}
		if tick.BuyVolume <= tick.SellVolume {
			continue
		}
		entry := tick.Odds.Float64()
		target := clampOdds(entry + 0.10)
		stop := clampOdds(entry - 0.08)
		actions = append(actions, domain.ProposedAction{
			AssetID:    tick.AssetID,
			Direction:  domain.DirectionBuy,
			Confidence: 55,
			EntryOdds:  tick.Odds,
			TargetOdds: domain.Odds(target),
			StopOdds:   domain.Odds(stop),
			SizeUSD:    mc.Limits.MaxPositionSizeUSD,
			Rationale:  "buy volume dominant",
		})
		slots--
	}

	return actions, nil
}
