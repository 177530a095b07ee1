package search

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aristath/researcher/internal/resilience"
)

// DefaultUserAgent is sent when FetcherConfig.UserAgent is empty. Plenty of
// vendor sites refuse requests without a browser agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// FetcherConfig configures page fetching.
type FetcherConfig struct {
	UserAgent   string
	Timeout     time.Duration // Per request (default 15s)
	RatePerHost float64       // Requests per second per host (default 2)
	Burst       int           // Default 1
	MaxBytes    int64         // Largest body read (default 2 MiB)
	Retry       resilience.RetryConfig
}

// Fetcher downloads pages and returns their readable text.
type Fetcher struct {
	cfg      FetcherConfig
	http     *http.Client
	breakers *resilience.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetcherConfig, breakers *resilience.Registry, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerHost <= 0 {
		cfg.RatePerHost = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 << 20
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
		cfg.Retry.MaxRetries = 2
	}
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.BreakerConfig{}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch returns the text of the page at rawURL. HTML is reduced to its
// visible text; plain text is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("fetch: unsupported url %q", rawURL)
	}

	cb := f.breakers.Get("fetch:" + u.Host)
	text, err := resilience.Do(ctx, cb, f.cfg.Retry, func(ctx context.Context) (string, error) {
		if err := f.limiter(u.Host).Wait(ctx); err != nil {
			return "", err
		}
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return "", err
	}
	f.logger.Debug("page fetched", zap.String("url", rawURL), zap.Int("chars", len(text)))
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", resilience.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, rawURL); err != nil {
		return "", err
	}

	body := io.LimitReader(resp.Body, f.cfg.MaxBytes)
	switch mediaType(resp.Header.Get("Content-Type")) {
	case "text/html", "application/xhtml+xml", "":
		return HTMLText(body)
	case "text/plain":
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return collapseLines(string(data)), nil
	default:
		return "", resilience.Permanent(fmt.Errorf("%s: unsupported content type %q", rawURL, resp.Header.Get("Content-Type")))
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RatePerHost), f.cfg.Burst)
		f.limiters[host] = l
	}
	return l
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}
