package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// buildPrompt renders the market context into the model prompt. Market
// data, open positions and portfolio status go in as compact key:value
// JSON to keep the token count down.
func buildPrompt(mc domain.MarketContext) string {
	var sb strings.Builder

	sb.WriteString("You decide ALL trading actions for a simulated prediction-market portfolio. ")
	sb.WriteString("Prices are odds in [0,1]: the market-implied probability the outcome resolves true.\n\n")

	sb.WriteString("MARKET TICKS (a=asset,o=odds,v=volume,bv=buy_volume,sv=sell_volume):\n")
	sb.WriteString(compactValue(ticksForPrompt(mc.Snapshot.Ticks)))
	sb.WriteString("\n\n")

	if len(mc.Snapshot.Liquidity) > 0 {
		sb.WriteString("LIQUIDITY EVENTS (a=asset,t=taker_filled,m=maker_filled):\n")
		sb.WriteString(compactValue(liquidityForPrompt(mc.Snapshot.Liquidity)))
		sb.WriteString("\n\n")
	}

	sb.WriteString("OPEN POSITIONS (a=asset,e=entry,t=target,s=stop,c=current,v=size_usd):\n")
	sb.WriteString(compactValue(positionsForPrompt(mc.OpenPositions)))
	sb.WriteString("\n\n")

	available := mc.Limits.PortfolioSizeUSD - mc.State.OpenNotionalUSD
	fmt.Fprintf(&sb, "PORTFOLIO STATUS:\n")
	fmt.Fprintf(&sb, "- Open positions: %d/%d\n", mc.State.OpenCount, mc.Limits.MaxOpenPositions)
	fmt.Fprintf(&sb, "- Daily realized PnL: $%.4f\n", mc.State.RealizedPnLUSD)
	fmt.Fprintf(&sb, "- Unrealized PnL: $%.4f\n", mc.State.UnrealizedPnLUSD)
	fmt.Fprintf(&sb, "- Available capital: $%.2f of $%.2f\n", available, mc.Limits.PortfolioSizeUSD)
	fmt.Fprintf(&sb, "- Your success rate so far: %.1f%%\n\n", mc.SuccessRate*100)

	fmt.Fprintf(&sb, "CONSTRAINTS:\n")
	fmt.Fprintf(&sb, "- Minimum confidence: %d%%\n", mc.Limits.MinConfidence)
	fmt.Fprintf(&sb, "- Max position size: $%.2f\n", mc.Limits.MaxPositionSizeUSD)
	fmt.Fprintf(&sb, "- Max open positions: %d\n", mc.Limits.MaxOpenPositions)
	fmt.Fprintf(&sb, "- One open position per asset, no averaging in\n\n")

	sb.WriteString(`YOUR TASK:
Review the open positions (SELL to close, HOLD to keep) and look for new
BUY opportunities in the tick data. Every action needs: action, market,
confidence, reasoning. BUY additionally needs: entry_price, target_price,
stop_loss, and optionally amount_usd. All prices are odds in [0,1].

OUTPUT FORMAT (JSON array only, no markdown):
[
  {"action":"BUY","market":"ASSET_ID","confidence":45,"entry_price":0.65,"target_price":0.85,"stop_loss":0.55,"amount_usd":1.0,"reasoning":"..."},
  {"action":"SELL","market":"ASSET_ID","confidence":80,"reasoning":"..."},
  {"action":"HOLD","market":"ASSET_ID","confidence":70,"reasoning":"..."}
]
Return [] if no action is warranted.`)

	return sb.String()
}

func ticksForPrompt(ticks []domain.MarketTick) []map[string]any {
	out := make([]map[string]any, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, map[string]any{
			"a":  t.AssetID,
			"o":  round(t.Odds.Float64(), 4),
			"v":  round(t.Volume, 2),
			"bv": round(t.BuyVolume, 2),
			"sv": round(t.SellVolume, 2),
		})
	}
	return out
}

func liquidityForPrompt(events []domain.LiquidityEvent) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"a": e.TakerAssetID,
			"t": round(e.TakerAmountFilled, 4),
			"m": round(e.MakerAmountFilled, 4),
		})
	}
	return out
}

func positionsForPrompt(positions []domain.Position) []map[string]any {
	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		out = append(out, map[string]any{
			"a": p.AssetID,
			"e": round(p.EntryOdds.Float64(), 4),
			"t": round(p.TargetOdds.Float64(), 4),
			"s": round(p.StopOdds.Float64(), 4),
			"c": round(p.CurrentOdds.Float64(), 4),
			"v": round(p.SizeUSD, 2),
		})
	}
	return out
}

func round(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}

var bareTokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// compactValue renders a value as minimal JSON-ish text: simple keys and
// strings lose their quotes. The model reads it fine and it costs far
// fewer tokens than real JSON.
func compactValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		if bareTokenRe.MatchString(x) {
			return x
		}
		return quote(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			key := k
			if !bareTokenRe.MatchString(k) {
				key = quote(k)
			}
			parts = append(parts, key+":"+compactValue(x[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []map[string]any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, compactValue(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, compactValue(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "null"
		}
		return string(b)
	}
}

func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
