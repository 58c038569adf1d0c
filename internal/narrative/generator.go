package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	fallbackPrefix   = "[Auto-generated — LLM summary unavailable]"
	anthropicVersion = "2023-06-01"
	maxTokens        = 1024
)

const systemPrompt = "You are a market analyst writing a brief %s summary for %s, %s. " +
	"Write two to three short paragraphs covering the overall risk regime, what drove it, " +
	"and the notable movers. Plain prose, no headers, no investment advice."

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Generator produces summary text from a payload, via a chat-completion
// API when a key is configured.
type Generator struct {
	endpoint string
	apiKey   string
	model    string
	hc       *http.Client
}

func NewGenerator(endpoint, apiKey, model string, timeout time.Duration) *Generator {
	return &Generator{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		hc:       &http.Client{Timeout: timeout},
	}
}

// Generate writes a summary for the payload. Without an API key, or when
// the API call fails for any reason, the deterministic fallback text is
// returned so a scheduled summary never goes missing.
func (g *Generator) Generate(ctx context.Context, p Payload) string {
	if g.apiKey == "" {
		slog.Debug("no narrative API key configured, using fallback summary")
		return Fallback(p)
	}

	text, err := g.complete(ctx, p)
	if err != nil {
		slog.Warn("narrative generation failed, using fallback", "period", p.Period, "error", err)
		return Fallback(p)
	}
	return text
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (g *Generator) complete(ctx context.Context, p Payload) (string, error) {
	user, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().In(eastern)
	body, err := json.Marshal(messagesRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		System:    fmt.Sprintf(systemPrompt, p.Period, now.Weekday(), now.Format("2006-01-02")),
		Messages:  []message{{Role: "user", Content: string(user)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call narrative API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("narrative API returned status %d", resp.StatusCode)
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(mr.Content) == 0 || mr.Content[0].Text == "" {
		return "", errors.New("empty completion")
	}
	return mr.Content[0].Text, nil
}

// Fallback builds the plain-text summary used when remote generation is
// unavailable: the regime line plus the top five movers by absolute change.
func Fallback(p Payload) string {
	label := p.Regime.Label
	if label == "" {
		label = "UNKNOWN"
	}

	lines := []string{fallbackPrefix, "", "Market Regime: " + label, p.Regime.Reason}

	movers := topMovers(p.Assets, 5)
	if len(movers) > 0 {
		lines = append(lines, "", "Top movers:")
		for _, m := range movers {
			lines = append(lines, fmt.Sprintf("  %s: %+.2f%%", m.symbol, m.pct))
		}
	}

	return strings.Join(lines, "\n")
}

type mover struct {
	symbol string
	pct    float64
}

func topMovers(assets map[string]AssetMove, n int) []mover {
	movers := make([]mover, 0, len(assets))
	for sym, a := range assets {
		if a.ChangePct == nil {
			continue
		}
		movers = append(movers, mover{symbol: sym, pct: *a.ChangePct})
	}
	sort.Slice(movers, func(i, j int) bool {
		ai, aj := math.Abs(movers[i].pct), math.Abs(movers[j].pct)
		if ai != aj {
			return ai > aj
		}
		return movers[i].symbol < movers[j].symbol
	})
	if len(movers) > n {
		movers = movers[:n]
	}
	return movers
}
