// Package crossencoder is a client for a text-embeddings-inference compatible rerank server.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codevoyager1984/math-agent/internal/domain"
)

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 512

// Config holds the rerank server settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client calls POST /rerank and GET /info.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New creates a rerank client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    hc,
	}
}

// Info describes the model served by the rerank server.
type Info struct {
	ModelID string `json:"model_id"`
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Info fetches the served model description. Used as the load probe.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// Ping reports whether the rerank server answers /info.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Info(ctx)
	return err
}

// Score returns one raw relevance logit per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var hits []rerankHit
	err := c.do(ctx, http.MethodPost, "/rerank", rerankRequest{
		Model:     c.model,
		Query:     query,
		Texts:     texts,
		RawScores: true,
		Truncate:  true,
	}, &hits)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(texts) {
			return nil, fmt.Errorf("%w: rerank index %d out of range", domain.ErrRerankFailure, h.Index)
		}
		scores[h.Index] = h.Score
		seen[h.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: no score for text %d", domain.ErrRerankFailure, i)
		}
	}
	return scores, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrRerankFailure, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrRerankFailure, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s: status %d: %s",
			domain.ErrRerankFailure, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrRerankFailure, path, err)
	}
	return nil
}
