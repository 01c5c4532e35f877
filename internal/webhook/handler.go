// Package webhook receives LINE webhook callbacks, verifies their
// signature, and dispatches the events to the bot processor. Events are
// processed asynchronously after the HTTP 200 so slow providers never
// trip the LINE delivery timeout.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/ctxutil"
	"github.com/AceNexus/LineBot/internal/delivery"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/sentry"
)

// loadingSeconds is the LINE loading animation duration (5-60, multiple
// of 5). Max keeps the circle visible through slow scrapes and LLM calls.
const loadingSeconds int32 = 60

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI // loading animation only; nil disables it
	gateway       *delivery.Gateway
	processor     *bot.Processor
	metrics       *metrics.Metrics
	log           *logger.Logger
	wg            sync.WaitGroup

	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a Handler.
type HandlerConfig struct {
	ChannelSecret string
	Client        *messaging_api.MessagingApiAPI
	Gateway       *delivery.Gateway
	Processor     *bot.Processor
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              cfg.Client,
		gateway:             cfg.Gateway,
		processor:           cfg.Processor,
		metrics:             cfg.Metrics,
		log:                 cfg.Logger.WithModule("webhook"),
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}
}

// Handle is the Gin handler for the webhook endpoint. LINE expects a
// prompt 200; event processing continues in the background.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.log.Warnf("invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.log.WithError(err).Errorf("failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)

	start := time.Now()
	h.metrics.RecordWebhook("batch", "received", 0)

	if len(cb.Events) > h.maxEventsPerWebhook {
		h.log.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warnf("too many events in webhook batch; truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// Copy before the HTTP handler returns and Gin recycles the request.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	// Detached from the request context: processing outlives the 200, but
	// keeps whatever tracing values middleware attached.
	ctx := ctxutil.PreserveTracing(c.Request.Context())

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.WithField("panic", r).Errorf("panic in async event processing")
			}
		}()

		for _, event := range events {
			h.processEvent(ctx, event, start)
		}
	})
}

// processEvent handles a single webhook event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, batchStart time.Time) {
	eventStart := time.Now()

	eventID, isRedelivery := extractEventMeta(event)
	log := h.log
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
		log = log.WithRequestID(eventID)
	}
	if isRedelivery {
		log = log.WithField("is_redelivery", true)
	}
	if userID := getUserID(event); userID != "" {
		ctx = ctxutil.WithUserID(ctx, userID)
	}
	if chatID := getChatID(event); chatID != "" {
		ctx = ctxutil.WithChatID(ctx, chatID)
	}

	if h.shouldShowLoading(event) {
		if err := h.showLoadingAnimation(event); err != nil {
			log.WithError(err).Warnf("failed to show loading animation")
		}
	}

	var (
		messages  []messaging_api.MessageInterface
		eventType string
		err       error
	)
	switch e := event.(type) {
	case webhook.MessageEvent:
		eventType = "message"
		messages, err = h.processor.ProcessMessage(ctx, e)
	case webhook.PostbackEvent:
		eventType = "postback"
		messages, err = h.processor.ProcessPostback(ctx, e)
	case webhook.FollowEvent:
		eventType = "follow"
		messages, err = h.processor.ProcessFollow(ctx, e)
	case webhook.JoinEvent:
		eventType = "join"
		messages, err = h.processor.ProcessJoin(ctx, e)
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debugf("unsupported event type")
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Errorf("failed to handle event")
		sentry.CaptureExceptionWithContext(ctx, err)
	}
	h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())

	if len(messages) > 0 && err == nil {
		replyToken := getReplyToken(event)
		if len(replyToken) < h.minReplyTokenLength {
			log.WithField("token_length", len(replyToken)).Debugf("missing or malformed reply token; skipping reply")
			return
		}
		if err := h.gateway.Reply(ctx, replyToken, messages); err != nil {
			h.metrics.RecordWebhook(eventType, "reply_error", time.Since(eventStart).Seconds())
		}
	}

	log.WithField("event_type", eventType).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Infof("event processed")
}

func extractEventMeta(event webhook.EventInterface) (string, bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, isRedelivery(e.DeliveryContext)
	case webhook.PostbackEvent:
		return e.WebhookEventId, isRedelivery(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, isRedelivery(e.DeliveryContext)
	case webhook.JoinEvent:
		return e.WebhookEventId, isRedelivery(e.DeliveryContext)
	default:
		return "", false
	}
}

func isRedelivery(dc *webhook.DeliveryContext) bool {
	return dc != nil && dc.IsRedelivery
}

// shouldShowLoading reports whether the event will produce a visible
// response. Group text without an @mention gets none, so no spinner.
func (h *Handler) shouldShowLoading(event webhook.EventInterface) bool {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		// Postback, follow, and join all get a response.
		_, isPostback := event.(webhook.PostbackEvent)
		_, isFollow := event.(webhook.FollowEvent)
		_, isJoin := event.(webhook.JoinEvent)
		return isPostback || isFollow || isJoin
	}

	if bot.IsPersonalChat(e.Source) {
		return true
	}

	textMsg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return false
	}
	// Group text still answers menu aliases without a mention, but a
	// spinner on every group message is worse than a missing one.
	return bot.IsBotMentioned(textMsg)
}

// showLoadingAnimation shows the typing indicator in personal chats.
func (h *Handler) showLoadingAnimation(event webhook.EventInterface) error {
	if h.client == nil {
		return nil
	}
	chatID := getChatID(event)
	if chatID == "" {
		return nil
	}

	_, err := h.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: loadingSeconds,
	})
	if err != nil {
		return fmt.Errorf("show loading animation: %w", err)
	}
	return nil
}

func getReplyToken(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	case webhook.JoinEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

func getChatID(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return bot.GetChatID(e.Source)
	case webhook.PostbackEvent:
		return bot.GetChatID(e.Source)
	case webhook.FollowEvent:
		return bot.GetChatID(e.Source)
	case webhook.JoinEvent:
		return bot.GetChatID(e.Source)
	default:
		return ""
	}
}

func getUserID(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return bot.GetUserID(e.Source)
	case webhook.PostbackEvent:
		return bot.GetUserID(e.Source)
	case webhook.FollowEvent:
		return bot.GetUserID(e.Source)
	case webhook.JoinEvent:
		return bot.GetUserID(e.Source)
	default:
		return ""
	}
}

// Shutdown waits for in-flight event processing to complete, up to the
// context deadline.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
