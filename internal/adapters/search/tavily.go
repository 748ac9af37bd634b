// Package search implements the evidence gathering stage against the Tavily
// web search API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainscope/chainscope/config"
	"github.com/chainscope/chainscope/internal/domain/research"
)

const (
	searchPath = "/search"

	// maxErrorBodyBytes bounds how much of an error response is surfaced.
	maxErrorBodyBytes = 4 * 1024
)

// Client calls the Tavily search API to gather evidence documents.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient constructs a Tavily search client.
func NewClient(cfg config.SearchConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("search API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("search base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "search_client"),
	}, nil
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs one search call and maps the hits to evidence documents.
// Results with no content are dropped; an empty result set is returned as-is
// and left for the caller to judge.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]research.Evidence, error) {
	if maxResults < 1 {
		maxResults = 1
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "close search response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("search API status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	evidence := make([]research.Evidence, 0, len(decoded.Results))
	for _, hit := range decoded.Results {
		if hit.Content == "" {
			continue
		}
		evidence = append(evidence, research.Evidence{
			URL:     hit.URL,
			Title:   hit.Title,
			Content: hit.Content,
		})
	}

	c.logger.DebugContext(ctx, "search completed",
		"query", query,
		"results", len(evidence),
		"duration_ms", time.Since(start).Milliseconds())

	return evidence, nil
}
