package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/lineutil"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/ratelimit"
	"github.com/AceNexus/LineBot/internal/session"
)

// helpKeywords trigger the detailed instruction messages.
var helpKeywords = []string{"使用說明", "help"}

// maxTextLength is the LINE API limit for incoming text messages.
const maxTextLength = 20000

// Processor turns LINE events into replies. It owns the routing order:
// a command alias always wins and resets any dialog state, free text in
// a dialog state goes to the owning module, and everything else falls
// through to the AI chat (or a help message when the AI is off).
type Processor struct {
	registry    *Registry
	sessions    *session.Store
	ai          *genai.Client
	userLimiter *ratelimit.PerKeyLimiter
	cooldown    *ratelimit.Cooldown
	log         *logger.Logger
	metrics     *metrics.Metrics

	webhookTimeout      time.Duration
	llmTimeout          time.Duration
	maxPostbackDataSize int
}

// ProcessorConfig holds the dependencies for a Processor.
type ProcessorConfig struct {
	Registry    *Registry
	Sessions    *session.Store
	AI          *genai.Client // nil disables the chat fallback
	UserLimiter *ratelimit.PerKeyLimiter
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	BotConfig   *config.BotConfig
}

// NewProcessor creates an event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		registry:            cfg.Registry,
		sessions:            cfg.Sessions,
		ai:                  cfg.AI,
		userLimiter:         cfg.UserLimiter,
		cooldown:            ratelimit.NewCooldown(cfg.BotConfig.PostbackCooldown),
		log:                 cfg.Logger.WithModule("bot"),
		metrics:             cfg.Metrics,
		webhookTimeout:      cfg.BotConfig.WebhookTimeout,
		llmTimeout:          cfg.BotConfig.LLMTimeout,
		maxPostbackDataSize: cfg.BotConfig.MaxPostbackDataSize,
	}
}

// ProcessMessage handles a text message event.
func (p *Processor) ProcessMessage(ctx context.Context, event webhook.MessageEvent) ([]messaging_api.MessageInterface, error) {
	conv := GetChatID(event.Source)
	if conv == "" {
		return nil, nil
	}

	if allowed, limitMsg := p.checkUserRateLimit(event.Source, conv); !allowed {
		return limitMsg, nil
	}

	if event.Message.GetType() != "text" {
		return nil, nil
	}
	textMsg, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return nil, errors.New("failed to cast message to text")
	}

	text := textMsg.Text
	if len(text) == 0 {
		return nil, nil
	}
	if len(text) > maxTextLength {
		p.log.Warnf("text message too long: %d bytes", len(text))
		sender := lineutil.GetSender("系統小幫手")
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithConsistentSender(
				fmt.Sprintf("❌ 訊息內容過長\n\n訊息長度超過 %d 字元，請縮短後重試。", maxTextLength),
				sender,
			),
		}, nil
	}

	// Trim and collapse whitespace only. Dialog input like "3/5" or
	// "08:30" must survive sanitization intact.
	text = sanitizeText(text)
	if text == "" {
		return nil, nil
	}

	processCtx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()

	// Per-conversation lock: state reads and writes for one conversation
	// never interleave, even when LINE delivers events concurrently.
	p.sessions.Lock(conv)
	defer p.sessions.Unlock(conv)

	if slices.ContainsFunc(helpKeywords, func(k string) bool {
		return strings.EqualFold(text, k)
	}) {
		return p.instructionMessages(), nil
	}

	// A command alias always wins. Whatever half-finished dialog the
	// conversation was in is abandoned.
	if h := p.registry.HandlerFor(text); h != nil {
		p.sessions.Reset(conv)
		return h.HandleMessage(processCtx, conv, text), nil
	}

	// Free text inside a dialog goes to the module owning the state.
	if state := p.sessions.State(conv); state != session.StateNormal {
		if h := p.registry.HandlerForState(state); h != nil {
			return h.HandleState(processCtx, conv, state, text), nil
		}
		// State without an owner should not happen; recover to Normal.
		p.log.WithConversation(conv).Warnf("no handler owns state %s, resetting", state)
		p.sessions.Reset(conv)
	}

	return p.handleChatFallback(processCtx, conv, event.Source, textMsg, text)
}

// ProcessPostback handles a postback event.
func (p *Processor) ProcessPostback(ctx context.Context, event webhook.PostbackEvent) ([]messaging_api.MessageInterface, error) {
	conv := GetChatID(event.Source)
	if conv == "" {
		return nil, nil
	}

	data := strings.TrimSpace(event.Postback.Data)
	if data == "" {
		p.log.Warnf("empty postback data")
		return nil, nil
	}
	if len(data) > p.maxPostbackDataSize {
		p.log.Warnf("postback data too long: %d bytes", len(data))
		sender := lineutil.GetSender("系統小幫手")
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithConsistentSender("❌ 操作資料異常\n\n請重新使用功能。", sender),
		}, nil
	}

	// Double taps on the same button inside the cooldown run the action
	// once; the repeat is dropped without a reply.
	if !p.cooldown.Allow(conv + PostbackSplitChar + data) {
		if p.metrics != nil {
			p.metrics.RecordRateLimiterDrop("cooldown")
		}
		p.log.WithConversation(conv).Debugf("postback suppressed by cooldown")
		return nil, nil
	}

	p.log.WithConversation(conv).WithField("data", data).Debugf("received postback")

	processCtx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()

	p.sessions.Lock(conv)
	defer p.sessions.Unlock(conv)

	if msgs := p.registry.DispatchPostback(processCtx, conv, data); msgs != nil {
		return msgs, nil
	}

	sender := lineutil.GetSender("系統小幫手")
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender("操作已過期或無效", sender),
	}, nil
}

// ProcessFollow greets a new follower and shows the main menu.
func (p *Processor) ProcessFollow(ctx context.Context, event webhook.FollowEvent) ([]messaging_api.MessageInterface, error) {
	conv := GetChatID(event.Source)
	p.log.WithConversation(conv).Infof("new follower")

	sender := lineutil.GetSender("小幫手")
	messages := []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(
			"嗨～歡迎使用生活小幫手🤖\n\n新聞、電影、背單字、吃藥提醒都在這裡\n輸入「選單」或「0」隨時叫出主選單", sender),
	}
	messages = append(messages, p.registry.DispatchMessage(ctx, conv, "選單")...)
	return messages, nil
}

// ProcessJoin greets a group or room the bot was invited to.
func (p *Processor) ProcessJoin(ctx context.Context, event webhook.JoinEvent) ([]messaging_api.MessageInterface, error) {
	conv := GetChatID(event.Source)
	p.log.WithConversation(conv).Infof("joined group")

	sender := lineutil.GetSender("小幫手")
	messages := []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(
			"嗨～我是生活小幫手🤖\n\n輸入「選單」或「0」叫出主選單\n聊天功能請先 @ 我再輸入訊息", sender),
	}
	messages = append(messages, p.registry.DispatchMessage(ctx, conv, "選單")...)
	return messages, nil
}

// handleChatFallback runs free text through the AI chat. Group chats only
// get a response when the bot is mentioned, and the mention itself is
// stripped before the text reaches the model.
func (p *Processor) handleChatFallback(ctx context.Context, conv string, source webhook.SourceInterface, textMsg webhook.TextMessageContent, text string) ([]messaging_api.MessageInterface, error) {
	if !IsPersonalChat(source) {
		if !IsBotMentioned(textMsg) {
			return nil, nil
		}
		if textMsg.Mention != nil {
			text = sanitizeText(removeBotMentions(textMsg.Text, textMsg.Mention))
			if text == "" {
				return p.helpMessage(), nil
			}
		}
	}

	if !p.ai.Enabled() || !p.sessions.AIEnabled(conv) {
		return p.helpMessage(), nil
	}

	llmCtx, cancel := context.WithTimeout(ctx, p.llmTimeout)
	defer cancel()

	reply, err := p.ai.Chat(llmCtx, conv, text)
	if err != nil {
		p.log.WithConversation(conv).WithError(err).Warnf("chat fallback failed")
		sender := lineutil.GetSender("系統小幫手")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}, nil
	}

	sender := lineutil.GetSender("AI 小幫手")
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(reply, sender),
	}, nil
}

// checkUserRateLimit enforces the per-conversation token bucket. Group
// chats are throttled silently to avoid reply storms.
func (p *Processor) checkUserRateLimit(source webhook.SourceInterface, conv string) (bool, []messaging_api.MessageInterface) {
	if p.userLimiter == nil || p.userLimiter.Allow(conv) {
		return true, nil
	}

	logConv := conv
	if len(conv) > 8 {
		logConv = conv[:8] + "..."
	}
	p.log.WithField("conversation", logConv).Warnf("user rate limit exceeded")

	if IsPersonalChat(source) {
		sender := lineutil.GetSender("系統小幫手")
		return false, []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithConsistentSender("⏳ 訊息過於頻繁，請稍後再試", sender),
		}
	}
	return false, nil
}

// helpMessage is the short fallback shown when nothing matched.
func (p *Processor) helpMessage() []messaging_api.MessageInterface {
	helpText := "🤖 生活小幫手\n\n" +
		"輸入「選單」或「0」開啟主選單\n\n" +
		"• 1️⃣ 新聞快訊\n" +
		"• 2️⃣ 熱門電影\n" +
		"• 3️⃣ 日文單字\n" +
		"• 4️⃣ 英文單字\n" +
		"• 5️⃣ 單字訂閱\n" +
		"• 6️⃣ 用藥提醒\n" +
		"• 7️⃣ 其他提醒\n\n" +
		"💡 輸入「使用說明」查看完整說明"

	sender := lineutil.GetSender("小幫手")
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(helpText, sender, quickMenuItems()...),
	}
}

// quickMenuItems are the tap shortcuts attached under help replies.
func quickMenuItems() []lineutil.QuickReplyItem {
	shortcuts := []struct {
		label string
		text  string
	}{
		{"選單", "選單"},
		{"新聞", "1"},
		{"電影", "2"},
		{"英文單字", "4"},
		{"單字訂閱", "5"},
		{"用藥提醒", "6"},
		{"其他提醒", "7"},
		{"使用說明", "使用說明"},
	}

	items := make([]lineutil.QuickReplyItem, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, lineutil.QuickReplyItem{
			Action: lineutil.NewMessageAction(s.label, s.text),
		})
	}
	return items
}

// instructionMessages is the detailed walkthrough for 使用說明.
func (p *Processor) instructionMessages() []messaging_api.MessageInterface {
	sender := lineutil.GetSender("小幫手")

	var messages []messaging_api.MessageInterface

	menuMsg := "📖 使用說明\n\n" +
		"輸入「選單」或「0」開啟主選單\n" +
		"也可以直接輸入數字快速使用：\n" +
		"• 1：新聞快訊\n" +
		"• 2：熱門電影\n" +
		"• 3：日文單字\n" +
		"• 4：英文單字\n" +
		"• 5：單字訂閱\n" +
		"• 6：用藥提醒\n" +
		"• 7：其他提醒"
	messages = append(messages, lineutil.NewTextMessageWithConsistentSender(menuMsg, sender))

	newsMsg := "📰 新聞快訊\n" +
		"輸入「1」後以「主題/數量」選取\n" +
		"例：3/5 代表商業新聞 5 則\n" +
		"主題 1-7，數量 1-10\n\n" +
		"🎬 熱門電影\n" +
		"輸入「2」即可查看口碑電影排行"
	messages = append(messages, lineutil.NewTextMessageWithConsistentSender(newsMsg, sender))

	wordsMsg := "📚 英文單字\n" +
		"輸入「4」後以「難度/數量」選取\n" +
		"例：2/3 代表中級單字 3 個\n" +
		"難度 1-3，數量 1-5\n" +
		"每個單字都附發音連結 🔊\n\n" +
		"📬 單字訂閱\n" +
		"輸入「5」可設定每日自動推播"
	messages = append(messages, lineutil.NewTextMessageWithConsistentSender(wordsMsg, sender))

	remindMsg := "💊 用藥提醒\n" +
		"輸入「6」管理藥品與提醒時間\n" +
		"到點推播，可回報已服用\n\n" +
		"⏰ 其他提醒\n" +
		"輸入「7」新增任意每日提醒\n" +
		"時間格式 HH:MM，例：08:30"
	messages = append(messages, lineutil.NewTextMessageWithConsistentSender(remindMsg, sender))

	if p.ai.Enabled() {
		aiMsg := "💬 AI 聊天\n" +
			"其他訊息會直接交給 AI 回覆\n" +
			"群組中需要 @我 才會回應\n" +
			"可在主選單開關此功能"
		messages = append(messages, lineutil.NewTextMessageWithConsistentSender(aiMsg, sender))
	}

	lineutil.AddQuickReplyToMessages(messages, quickMenuItems()...)
	return messages
}

// sanitizeText trims and collapses whitespace runs to single spaces.
func sanitizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
