// Package scraper provides a shared HTTP client for fetching external pages
// with retry, user-agent rotation, and gzip handling.
package scraper

import (
	"compress/gzip"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"

	apperrors "github.com/AceNexus/LineBot/internal/errors"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRetries   = 3
	initialRetryDelay   = 500 * time.Millisecond
	maxResponseBodySize = 10 << 20 // 10 MB
)

// Client fetches documents from external sites. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	maxRetries int
	userAgents []string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a scraper client with sane defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: defaultMaxRetries,
		userAgents: generateUserAgents(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches a URL and returns the raw response body.
// Transient failures (network errors, 429, 5xx) are retried with backoff;
// client errors like 404 and 403 fail immediately.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := RetryWithBackoff(ctx, c.maxRetries, initialRetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", c.randomUserAgent())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := classifyStatus(resp.StatusCode, url); err != nil {
			return err
		}

		reader := io.Reader(resp.Body)
		if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to create gzip reader: %w", err)
			}
			defer func() { _ = gz.Close() }()
			reader = gz
		}

		body, err = io.ReadAll(io.LimitReader(reader, maxResponseBodySize))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetString fetches a URL and returns the body as a trimmed string.
// Used for plain-text endpoints such as URL shorteners.
func (c *Client) GetString(ctx context.Context, url string) (string, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// GetDocument fetches a URL and parses it as a goquery document.
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// classifyStatus maps HTTP status codes to retryable or permanent errors.
func classifyStatus(code int, url string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return apperrors.NewScraperError(url, code, apperrors.ErrRateLimitExceeded)
	case code >= 500:
		return apperrors.NewScraperError(url, code, fmt.Errorf("server error"))
	case code == http.StatusNotFound:
		return Permanent(apperrors.NewScraperError(url, code, apperrors.ErrNotFound))
	default:
		return Permanent(apperrors.NewScraperError(url, code, fmt.Errorf("unexpected status")))
	}
}

// randomUserAgent returns a random user agent from the pool,
// falling back to uarand's catalog.
func (c *Client) randomUserAgent() string {
	if len(c.userAgents) == 0 {
		return uarand.GetRandom()
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(c.userAgents))))
	if err != nil {
		return uarand.GetRandom()
	}
	return c.userAgents[n.Int64()]
}

func generateUserAgents() []string {
	agents := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		agents = append(agents, uarand.GetRandom())
	}
	return agents
}
