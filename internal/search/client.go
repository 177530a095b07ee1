package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/resilience"
	"github.com/aristath/researcher/internal/stage"
)

// DefaultEndpoint is the Exa API base URL.
const DefaultEndpoint = "https://api.exa.ai"

// ClientConfig configures the search API client.
type ClientConfig struct {
	Endpoint     string
	APIKey       string
	NumResults   int    // Results requested per search (default 10)
	SearchType   string // Exa search type, e.g. "auto" or "neural" (default "auto")
	BlockedHosts []string
	Timeout      time.Duration // Per request (default 30s)
	Retry        resilience.RetryConfig
}

// Client queries an Exa-compatible search API for candidate pages.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	breakers *resilience.Registry
	logger   *zap.Logger
}

var _ stage.Searcher = (*Client)(nil)

type searchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Type       string `json:"type,omitempty"`
}

type searchResponse struct {
	Results []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"results"`
}

// NewClient creates a search client. breakers may be shared with other
// clients; the search endpoint gets its own breaker.
func NewClient(cfg ClientConfig, breakers *resilience.Registry, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.NumResults <= 0 {
		cfg.NumResults = 10
	}
	if cfg.SearchType == "" {
		cfg.SearchType = "auto"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.BreakerConfig{}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
		logger:   logger,
	}
}

// Query builds the search text for a category and its comparison factors.
func Query(category string, factors []string) string {
	category = strings.TrimSpace(category)
	if len(factors) == 0 {
		return category
	}
	return fmt.Sprintf("%s comparison: %s", category, strings.Join(factors, ", "))
}

// Search returns candidate page URLs for category. No results is not an error.
func (c *Client) Search(ctx context.Context, category string, factors []string) ([]string, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("search: no API key configured")
	}

	body, err := json.Marshal(searchRequest{
		Query:      Query(category, factors),
		NumResults: c.cfg.NumResults,
		Type:       c.cfg.SearchType,
	})
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}

	endpoint := c.cfg.Endpoint + "/search"
	cb := c.breakers.Get("search:" + hostOf(c.cfg.Endpoint))
	resp, err := resilience.Do(ctx, cb, c.cfg.Retry, func(ctx context.Context) (searchResponse, error) {
		return c.post(ctx, endpoint, body)
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	urls := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		urls = append(urls, r.URL)
	}
	candidates := filterCandidates(urls, c.cfg.BlockedHosts)
	c.logger.Debug("search finished",
		zap.String("category", category),
		zap.Int("results", len(resp.Results)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return searchResponse{}, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return searchResponse{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, endpoint); err != nil {
		return searchResponse{}, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return searchResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
