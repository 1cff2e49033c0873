// Package oracle implements the external decision-maker boundary: an
// OpenAI-compatible chat model that turns market context into a batch of
// proposed trade actions. The model is treated as an opaque oracle — the
// ledger applies its own risk policy to everything returned here.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	defaultBase  = "https://api.openai.com/v1"
	defaultModel = "gpt-4o"

	maxCompletionTokens = 2500
	temperature         = 0.7

	systemPrompt = "You are an advanced prediction-market trading AI. Always respond with valid JSON arrays only."
)

// Client calls a chat-completions endpoint to generate trade actions.
type Client struct {
	http   *http.Client
	base   string
	apiKey string
	model  string
}

// NewClient creates a Client. Empty base/model fall back to the OpenAI
// production endpoint and gpt-4o.
func NewClient(base, apiKey, model string) *Client {
	if base == "" {
		base = defaultBase
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		http:   &http.Client{Timeout: 90 * time.Second},
		base:   base,
		apiKey: apiKey,
		model:  model,
	}
}

// ProposeActions builds the prompt from the market context, queries the
// model, and parses its reply into validated actions. Malformed entries
// in the reply are skipped, never fatal.
func (c *Client) ProposeActions(ctx context.Context, mc domain.MarketContext) ([]domain.ProposedAction, error) {
	prompt := buildPrompt(mc)

	reply, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("oracle.ProposeActions: %w", err)
	}
	return parseActions(reply, mc.Limits), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one chat-completions request, retrying transient
// failures with exponential backoff. Client errors other than 429 are
// permanent.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	op := func() (string, error) {
		body, err := json.Marshal(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   maxCompletionTokens,
			Temperature: temperature,
		})
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("marshal request: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.base+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return "", fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return "", backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
		}

		var decoded chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if len(decoded.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("empty choices in response"))
		}
		return decoded.Choices[0].Message.Content, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(60*time.Second),
	)
}
