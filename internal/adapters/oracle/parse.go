package oracle

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polysim/internal/domain"
)

type rawAction struct {
	Action      string      `json:"action"`
	Market      string      `json:"market"`
	Confidence  json.Number `json:"confidence"`
	EntryPrice  json.Number `json:"entry_price"`
	TargetPrice json.Number `json:"target_price"`
	StopLoss    json.Number `json:"stop_loss"`
	AmountUSD   json.Number `json:"amount_usd"`
	Reasoning   string      `json:"reasoning"`
}

// parseActions extracts the JSON array from the model reply and converts
// each entry into a validated ProposedAction. Entries that fail
// validation are individually dropped: one malformed suggestion never
// discards the batch.
func parseActions(reply string, limits domain.RiskLimits) []domain.ProposedAction {
	payload := extractJSONArray(reply)
	if payload == "" {
		slog.Info("oracle returned no actions")
		return nil
	}

	var raw []rawAction
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		slog.Warn("oracle reply is not a valid JSON array", "err", err)
		return nil
	}

	actions := make([]domain.ProposedAction, 0, len(raw))
	for _, r := range raw {
		action, ok := validateAction(r, limits)
		if !ok {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

// extractJSONArray returns the outermost [...] span of s, tolerating
// markdown fences and prose around the array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// validateAction enforces the base fields every action needs and the
// price fields a BUY needs. A missing size falls back to the maximum
// position size, matching the oracle's documented default.
func validateAction(r rawAction, limits domain.RiskLimits) (domain.ProposedAction, bool) {
	if r.Market == "" {
		slog.Warn("skipping action without market")
		return domain.ProposedAction{}, false
	}

	direction, err := domain.ParseDirection(strings.ToUpper(r.Action))
	if err != nil {
		slog.Warn("skipping action with unknown verb", "market", r.Market, "action", r.Action)
		return domain.ProposedAction{}, false
	}

	confidence, err := r.Confidence.Int64()
	if err != nil {
		if f, ferr := r.Confidence.Float64(); ferr == nil {
			confidence = int64(f)
		} else {
			slog.Warn("skipping action without confidence", "market", r.Market)
			return domain.ProposedAction{}, false
		}
	}
	if confidence < 0 || confidence > 100 {
		slog.Warn("skipping action with out-of-range confidence", "market", r.Market, "confidence", confidence)
		return domain.ProposedAction{}, false
	}

	action := domain.ProposedAction{
		AssetID:    r.Market,
		Direction:  direction,
		Confidence: int(confidence),
		Rationale:  r.Reasoning,
	}

	if direction != domain.DirectionBuy {
		return action, true
	}

	entry, ok := parseOdds(r.EntryPrice, r.Market, "entry_price")
	if !ok {
		return domain.ProposedAction{}, false
	}
	target, ok := parseOdds(r.TargetPrice, r.Market, "target_price")
	if !ok {
		return domain.ProposedAction{}, false
	}
	stop, ok := parseOdds(r.StopLoss, r.Market, "stop_loss")
	if !ok {
		return domain.ProposedAction{}, false
	}

	size, err := r.AmountUSD.Float64()
	if err != nil || size <= 0 {
		size = limits.MaxPositionSizeUSD
	}

	action.EntryOdds = entry
	action.TargetOdds = target
	action.StopOdds = stop
	action.SizeUSD = size
	return action, true
}

func parseOdds(n json.Number, market, field string) (domain.Odds, bool) {
	f, err := n.Float64()
	if err != nil {
		slog.Warn("skipping BUY without required price field", "market", market, "field", field)
		return 0, false
	}
	odds, err := domain.NewOdds(f)
	if err != nil {
		slog.Warn("skipping BUY with invalid odds", "market", market, "field", field, "value", f)
		return 0, false
	}
	return odds, true
}
