// Package delivery is the outbound gateway to the LINE Messaging API.
// All replies and pushes go through it so rate limiting, metrics, and
// error classification live in one place.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/ratelimit"
)

// Client is the slice of the Messaging API the gateway needs.
// *messaging_api.MessagingApiAPI satisfies it.
type Client interface {
	ReplyMessage(request *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(request *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
	GetMessageQuota() (*messaging_api.MessageQuotaResponse, error)
	GetMessageQuotaConsumption() (*messaging_api.QuotaConsumptionResponse, error)
}

// Quota is the monthly push quota and its current consumption.
type Quota struct {
	Type  string
	Limit int64
	Used  int64
}

// Gateway sends messages through the LINE API behind a global rate limit.
type Gateway struct {
	client      Client
	limiter     *ratelimit.Limiter
	log         *logger.Logger
	metrics     *metrics.Metrics
	maxMessages int
}

// Config holds gateway settings.
type Config struct {
	// GlobalRateRPS is the shared LINE API call budget per second.
	GlobalRateRPS int
	// MaxMessagesPerSend caps messages per reply or push call (LINE limit 5).
	MaxMessagesPerSend int
}

// NewGateway creates a delivery gateway.
func NewGateway(client Client, cfg Config, log *logger.Logger, m *metrics.Metrics) *Gateway {
	if cfg.GlobalRateRPS <= 0 {
		cfg.GlobalRateRPS = 100
	}
	if cfg.MaxMessagesPerSend <= 0 || cfg.MaxMessagesPerSend > 5 {
		cfg.MaxMessagesPerSend = 5
	}
	return &Gateway{
		client:      client,
		limiter:     ratelimit.New(float64(cfg.GlobalRateRPS), float64(cfg.GlobalRateRPS)),
		log:         log.WithModule("delivery"),
		metrics:     m,
		maxMessages: cfg.MaxMessagesPerSend,
	}
}

// Reply answers one webhook event. A reply token is single-use; messages
// beyond the per-call limit are dropped with a warning.
func (g *Gateway) Reply(ctx context.Context, replyToken string, messages []messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > g.maxMessages {
		g.log.Warnf("reply message count %d exceeds limit %d; truncating", len(messages), g.maxMessages)
		messages = messages[:g.maxMessages]
	}

	if err := g.limiter.Wait(ctx); err != nil {
		g.record("reply", "rate_limited")
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	_, err := g.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		g.record("reply", "error")
		g.logSendError("reply", redactToken(replyToken), err)
		return fmt.Errorf("reply failed: %w", err)
	}

	g.record("reply", "success")
	return nil
}

// Push sends messages outside a reply context, chunked to the per-call
// limit. Failed chunks are logged and skipped, not retried.
func (g *Gateway) Push(ctx context.Context, to string, messages []messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}

	var firstErr error
	for start := 0; start < len(messages); start += g.maxMessages {
		end := start + g.maxMessages
		if end > len(messages) {
			end = len(messages)
		}

		if err := g.limiter.Wait(ctx); err != nil {
			g.record("push", "rate_limited")
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		_, err := g.client.PushMessage(&messaging_api.PushMessageRequest{
			To:       to,
			Messages: messages[start:end],
		}, "")
		if err != nil {
			g.record("push", "error")
			g.logSendError("push", redactToken(to), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("push failed: %w", err)
			}
			continue
		}
		g.record("push", "success")
	}
	return firstErr
}

// GetQuota returns the monthly push quota and current consumption.
func (g *Gateway) GetQuota(ctx context.Context) (Quota, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Quota{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	quota, err := g.client.GetMessageQuota()
	if err != nil {
		return Quota{}, fmt.Errorf("get message quota: %w", err)
	}
	consumption, err := g.client.GetMessageQuotaConsumption()
	if err != nil {
		return Quota{}, fmt.Errorf("get quota consumption: %w", err)
	}

	return Quota{
		Type:  string(quota.Type),
		Limit: quota.Value,
		Used:  consumption.TotalUsage,
	}, nil
}

func (g *Gateway) record(kind, status string) {
	if g.metrics != nil {
		g.metrics.RecordDelivery(kind, status)
	}
}

func (g *Gateway) logSendError(kind, recipient string, err error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Invalid reply token"):
		g.log.WithError(err).Debugf("%s token already used or invalid", kind)
	case strings.Contains(msg, "rate limit"):
		g.log.WithError(err).Errorf("%s hit LINE API rate limit", kind)
	default:
		g.log.WithError(err).WithField("recipient", recipient).Errorf("failed to send %s", kind)
	}
}

// redactToken keeps only a short prefix for logging.
func redactToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
