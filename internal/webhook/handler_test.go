package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/ctxutil"
	"github.com/AceNexus/LineBot/internal/delivery"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/session"
)

const testSecret = "test-channel-secret"

type fakeLineClient struct {
	mu      sync.Mutex
	replies []*messaging_api.ReplyMessageRequest
}

func (f *fakeLineClient) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, req)
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (f *fakeLineClient) PushMessage(*messaging_api.PushMessageRequest, string) (*messaging_api.PushMessageResponse, error) {
	return &messaging_api.PushMessageResponse{}, nil
}

func (f *fakeLineClient) GetMessageQuota() (*messaging_api.MessageQuotaResponse, error) {
	return &messaging_api.MessageQuotaResponse{}, nil
}

func (f *fakeLineClient) GetMessageQuotaConsumption() (*messaging_api.QuotaConsumptionResponse, error) {
	return &messaging_api.QuotaConsumptionResponse{}, nil
}

func (f *fakeLineClient) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

// echoModule answers every text with one fixed message.
type echoModule struct{}

func (echoModule) Name() string           { return "echo" }
func (echoModule) PostbackPrefix() string { return "echo$" }
func (echoModule) CanHandle(string) bool  { return true }

func (echoModule) HandleMessage(context.Context, string, string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: "ok"}}
}

func (echoModule) HandlePostback(context.Context, string, string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: "pb"}}
}

// ctxCaptureModule records the context its handler received.
type ctxCaptureModule struct {
	mu  sync.Mutex
	ctx context.Context
}

func (*ctxCaptureModule) Name() string           { return "capture" }
func (*ctxCaptureModule) PostbackPrefix() string { return "capture$" }
func (*ctxCaptureModule) CanHandle(string) bool  { return true }

func (m *ctxCaptureModule) HandleMessage(ctx context.Context, _, _ string) []messaging_api.MessageInterface {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	return []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: "ok"}}
}

func (m *ctxCaptureModule) HandlePostback(context.Context, string, string) []messaging_api.MessageInterface {
	return nil
}

func (m *ctxCaptureModule) captured() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func botConfig() *config.BotConfig {
	return &config.BotConfig{
		WebhookTimeout:      5 * time.Second,
		LLMTimeout:          5 * time.Second,
		PostbackCooldown:    time.Millisecond,
		MaxMessagesPerReply: 5,
		MaxEventsPerWebhook: 100,
		MinReplyTokenLength: 10,
		MaxPostbackDataSize: 300,
	}
}

func newTestHandler(t *testing.T) (*Handler, *fakeLineClient) {
	t.Helper()
	return newTestHandlerWith(t, echoModule{})
}

func newTestHandlerWith(t *testing.T, module bot.Handler) (*Handler, *fakeLineClient) {
	t.Helper()

	log := logger.New("error")
	m := metrics.New(prometheus.NewRegistry())
	cfg := botConfig()

	registry := bot.NewRegistry()
	registry.Register(module)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:  registry,
		Sessions:  session.NewStore(),
		Logger:    log,
		Metrics:   m,
		BotConfig: cfg,
	})

	client := &fakeLineClient{}
	gateway := delivery.NewGateway(client, delivery.Config{GlobalRateRPS: 100, MaxMessagesPerSend: 5}, log, m)

	h := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		Gateway:       gateway,
		Processor:     processor,
		BotConfig:     cfg,
		Metrics:       m,
		Logger:        log,
	})
	return h, client
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", sig)
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.Handle(c)
	c.Writer.WriteHeaderNow()
	return w
}

const messageEventBody = `{
	"destination": "Ubotbotbot",
	"events": [{
		"type": "message",
		"mode": "active",
		"timestamp": 1700000000000,
		"webhookEventId": "01HEVENT",
		"deliveryContext": {"isRedelivery": false},
		"replyToken": "valid-reply-token-0001",
		"source": {"type": "user", "userId": "U1"},
		"message": {"id": "m1", "type": "text", "quoteToken": "q", "text": "hello"}
	}]
}`

func TestHandle_InvalidSignature(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(messageEventBody))
	req.Header.Set("X-Line-Signature", "bm90LWEtcmVhbC1zaWduYXR1cmU=")

	w := serve(h, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandle_RepliesToMessageEvent(t *testing.T) {
	h, client := newTestHandler(t)

	w := serve(h, signedRequest(t, messageEventBody))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if client.replyCount() != 1 {
		t.Fatalf("replies = %d, want 1", client.replyCount())
	}
	if got := client.replies[0].ReplyToken; got != "valid-reply-token-0001" {
		t.Errorf("reply token = %q", got)
	}
}

func TestHandle_ShortReplyTokenSkipsReply(t *testing.T) {
	h, client := newTestHandler(t)

	body := strings.Replace(messageEventBody, "valid-reply-token-0001", "short", 1)
	serve(h, signedRequest(t, body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.Shutdown(ctx)

	if client.replyCount() != 0 {
		t.Errorf("replies = %d, want 0 for malformed token", client.replyCount())
	}
}

func TestHandle_EventTracingContext(t *testing.T) {
	module := &ctxCaptureModule{}
	h, _ := newTestHandlerWith(t, module)

	serve(h, signedRequest(t, messageEventBody))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	got := module.captured()
	if got == nil {
		t.Fatal("handler never ran")
	}
	if id, ok := ctxutil.GetRequestID(got); !ok || id != "01HEVENT" {
		t.Errorf("request ID = %q ok=%v, want webhook event ID", id, ok)
	}
	if ctxutil.GetUserID(got) != "U1" {
		t.Errorf("user ID = %q, want U1", ctxutil.GetUserID(got))
	}
	if ctxutil.GetChatID(got) != "U1" {
		t.Errorf("chat ID = %q, want U1", ctxutil.GetChatID(got))
	}
}

func TestShouldShowLoading(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)

	personal := webhook.MessageEvent{
		Source:  webhook.UserSource{UserId: "U1"},
		Message: webhook.TextMessageContent{Text: "hi"},
	}
	if !h.shouldShowLoading(personal) {
		t.Error("personal chat message should show loading")
	}

	group := webhook.MessageEvent{
		Source:  webhook.GroupSource{GroupId: "G1"},
		Message: webhook.TextMessageContent{Text: "hi"},
	}
	if h.shouldShowLoading(group) {
		t.Error("group message without mention should not show loading")
	}

	mentioned := webhook.MessageEvent{
		Source: webhook.GroupSource{GroupId: "G1"},
		Message: webhook.TextMessageContent{
			Text: "@bot hi",
			Mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{
					webhook.UserMentionee{Index: 0, Length: 4, IsSelf: true},
				},
			},
		},
	}
	if !h.shouldShowLoading(mentioned) {
		t.Error("mentioned group message should show loading")
	}

	if !h.shouldShowLoading(webhook.PostbackEvent{}) {
		t.Error("postback should show loading")
	}
	if !h.shouldShowLoading(webhook.FollowEvent{}) {
		t.Error("follow should show loading")
	}
	if h.shouldShowLoading(webhook.UnfollowEvent{}) {
		t.Error("unfollow never gets a response")
	}
}

func TestExtractEventMeta(t *testing.T) {
	t.Parallel()

	id, redelivered := extractEventMeta(webhook.MessageEvent{
		WebhookEventId:  "01HTEST",
		DeliveryContext: &webhook.DeliveryContext{IsRedelivery: true},
	})
	if id != "01HTEST" || !redelivered {
		t.Errorf("meta = %q %v", id, redelivered)
	}

	id, redelivered = extractEventMeta(webhook.UnfollowEvent{})
	if id != "" || redelivered {
		t.Errorf("unknown event meta = %q %v", id, redelivered)
	}
}
