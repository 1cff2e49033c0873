package bitquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"golang.org/x/time/rate"
)

const defaultBase = "https://streaming.bitquery.io/graphql"

// One query per cycle is plenty; Bitquery meters by points, not requests.
const queriesPerSec = 1

// Query for recent DEX pool events on Polygon, newest first. The taker
// and maker fill amounts per event feed the decision-maker's liquidity
// flow context.
const poolEventsQuery = `query PolygonLiquidityEvents {
  EVM(network: matic) {
    DEXPoolEvents(limit: {count: 200}, orderBy: {descending: Block_Time}) {
      Block { Time }
      PoolEvent {
        Liquidity { AmountCurrencyA AmountCurrencyB }
        Pool { CurrencyA { Symbol } CurrencyB { Symbol } }
      }
    }
  }
}`

// Client fetches on-chain liquidity events from the Bitquery streaming
// GraphQL endpoint.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
}

// NewClient creates a Client. An empty base falls back to production.
func NewClient(base, apiKey string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(queriesPerSec, 1),
	}
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data struct {
		EVM struct {
			DEXPoolEvents []rawPoolEvent `json:"DEXPoolEvents"`
		} `json:"EVM"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type rawPoolEvent struct {
	Block struct {
		Time string `json:"Time"`
	} `json:"Block"`
	PoolEvent struct {
		Liquidity struct {
			AmountCurrencyA json.Number `json:"AmountCurrencyA"`
			AmountCurrencyB json.Number `json:"AmountCurrencyB"`
		} `json:"Liquidity"`
		Pool struct {
			CurrencyA struct {
				Symbol string `json:"Symbol"`
			} `json:"CurrencyA"`
			CurrencyB struct {
				Symbol string `json:"Symbol"`
			} `json:"CurrencyB"`
		} `json:"Pool"`
	} `json:"PoolEvent"`
}

// FetchLiquidityEvents queries recent pool events and maps them to the
// ledger's liquidity event shape.
func (c *Client) FetchLiquidityEvents(ctx context.Context) ([]domain.LiquidityEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: rate limiter: %w", err)
	}

	body, err := json.Marshal(graphqlRequest{Query: poolEventsQuery})
	if err != nil {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: status %d: %s", resp.StatusCode, string(b))
	}

	var decoded graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: decode: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("bitquery.FetchLiquidityEvents: API error: %s", decoded.Errors[0].Message)
	}

	events := make([]domain.LiquidityEvent, 0, len(decoded.Data.EVM.DEXPoolEvents))
	for _, raw := range decoded.Data.EVM.DEXPoolEvents {
		symbol := raw.PoolEvent.Pool.CurrencyA.Symbol
		if symbol == "" {
			continue
		}
		taker, _ := raw.PoolEvent.Liquidity.AmountCurrencyA.Float64()
		maker, _ := raw.PoolEvent.Liquidity.AmountCurrencyB.Float64()
		ts, _ := time.Parse(time.RFC3339, raw.Block.Time)

		events = append(events, domain.LiquidityEvent{
			TakerAssetID:      symbol,
			TakerAmountFilled: taker,
			MakerAmountFilled: maker,
			Timestamp:         ts,
		})
	}
	return events, nil
}
