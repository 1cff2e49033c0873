package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const recentTradesLimit = 500

type rawTrade struct {
	ID        string      `json:"id"`
	Asset     string      `json:"asset"`
	Side      string      `json:"side"`
	Price     json.Number `json:"price"`
	Size      json.Number `json:"size"`
	Timestamp json.Number `json:"timestamp"`
}

// FetchTicks pulls the most recent public trades and aggregates them
// into one tick per outcome token: last traded price as the current
// odds, plus total/buy/sell volume over the window.
//
// Trades with prices outside [0,1] are individually dropped — bad data
// points never abort the fetch.
func (c *Client) FetchTicks(ctx context.Context) ([]domain.MarketTick, error) {
	url := fmt.Sprintf("%s/trades?limit=%d", c.dataBase, recentTradesLimit)

	var resp []rawTrade
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.FetchTicks: %w", err)
	}

	ticks := make(map[string]*domain.MarketTick)
	dropped := 0
	for _, rt := range resp {
		if rt.Asset == "" {
			dropped++
			continue
		}
		price, err := rt.Price.Float64()
		if err != nil {
			dropped++
			continue
		}
		odds, err := domain.NewOdds(price)
		if err != nil {
			slog.Debug("dropping trade with invalid odds", "asset", rt.Asset, "price", price)
			dropped++
			continue
		}
		size, _ := rt.Size.Float64()
		ts := parseTimestamp(rt.Timestamp)

		tick, ok := ticks[rt.Asset]
		if !ok {
			tick = &domain.MarketTick{AssetID: rt.Asset}
			ticks[rt.Asset] = tick
		}
		// The API returns trades newest-first: the first price seen per
		// asset is the latest.
		if tick.Timestamp.IsZero() || ts.After(tick.Timestamp) {
			tick.Odds = odds
			tick.Timestamp = ts
		}
		tick.Volume += size
		if strings.EqualFold(rt.Side, "BUY") {
			tick.BuyVolume += size
		} else {
			tick.SellVolume += size
		}
	}

	if dropped > 0 {
		slog.Debug("dropped malformed trades", "count", dropped, "total", len(resp))
	}

	out := make([]domain.MarketTick, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

// parseTimestamp handles the unix-seconds, unix-millis and ISO formats
// the Data API has been seen returning.
func parseTimestamp(n json.Number) time.Time {
	s := n.String()
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond))
		}
		return time.Unix(sec, 0)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
