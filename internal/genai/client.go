// Package genai talks to the Groq LLM through its OpenAI-compatible API.
// It powers the chat fallback and English vocabulary generation.
package genai

import (
	"errors"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("genai: no API key configured")

// DefaultHistoryLimit bounds the retained chat turns per conversation.
const DefaultHistoryLimit = 10

// Client wraps the Groq chat completion API. A nil Client is valid and
// reports ErrDisabled from every call.
type Client struct {
	api     openai.Client
	model   string
	log     *logger.Logger
	metrics *metrics.Metrics

	historyLimit int

	mu        sync.Mutex
	histories map[string][]openai.ChatCompletionMessageParamUnion
}

// Config holds the LLM connection settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	HistoryLimit int
}

// New creates a Groq client, or nil when no API key is configured.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	if cfg.APIKey == "" {
		return nil
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	api := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &Client{
		api:          api,
		model:        cfg.Model,
		log:          log.WithModule("genai"),
		metrics:      m,
		historyLimit: cfg.HistoryLimit,
		histories:    make(map[string][]openai.ChatCompletionMessageParamUnion),
	}
}

// Enabled reports whether LLM features are available.
func (c *Client) Enabled() bool {
	return c != nil
}

func (c *Client) recordRequest(provider, status string, seconds float64) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(provider, status, seconds)
	}
}
