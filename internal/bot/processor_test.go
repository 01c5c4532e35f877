package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/AceNexus/LineBot/internal/config"
	"github.com/AceNexus/LineBot/internal/lineutil"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/ratelimit"
	"github.com/AceNexus/LineBot/internal/session"
)

// fakeModule records what the processor routed to it.
type fakeModule struct {
	name     string
	aliases  []string
	states   []session.State
	messages []string
	stated   []string
	postback []string
}

func (f *fakeModule) Name() string           { return f.name }
func (f *fakeModule) PostbackPrefix() string { return f.name + PostbackSplitChar }

func (f *fakeModule) CanHandle(text string) bool {
	for _, a := range f.aliases {
		if strings.EqualFold(text, a) {
			return true
		}
	}
	return false
}

func (f *fakeModule) HandleMessage(_ context.Context, _, text string) []messaging_api.MessageInterface {
	f.messages = append(f.messages, text)
	return textReply("message:" + text)
}

func (f *fakeModule) HandlePostback(_ context.Context, _, data string) []messaging_api.MessageInterface {
	f.postback = append(f.postback, data)
	return textReply("postback:" + data)
}

func (f *fakeModule) States() []session.State { return f.states }

func (f *fakeModule) HandleState(_ context.Context, _ string, _ session.State, text string) []messaging_api.MessageInterface {
	f.stated = append(f.stated, text)
	return textReply("state:" + text)
}

func textReply(text string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(text, lineutil.GetSender("test")),
	}
}

func botConfig() *config.BotConfig {
	return &config.BotConfig{
		WebhookTimeout:      5 * time.Second,
		LLMTimeout:          5 * time.Second,
		PostbackCooldown:    time.Minute,
		MaxPostbackDataSize: 300,
	}
}

func newTestProcessor(t *testing.T, modules ...*fakeModule) (*Processor, *session.Store) {
	t.Helper()

	registry := NewRegistry()
	for _, m := range modules {
		registry.Register(m)
	}
	sessions := session.NewStore()

	p := NewProcessor(ProcessorConfig{
		Registry:  registry,
		Sessions:  sessions,
		Logger:    logger.New("error"),
		BotConfig: botConfig(),
	})
	return p, sessions
}

func messageEvent(text string) webhook.MessageEvent {
	return webhook.MessageEvent{
		Source: webhook.UserSource{UserId: "U1"},
		Message: webhook.TextMessageContent{
			MessageContent: webhook.MessageContent{Type: "text"},
			Text:           text,
		},
	}
}

func groupMessageEvent(text string, mention *webhook.Mention) webhook.MessageEvent {
	return webhook.MessageEvent{
		Source: webhook.GroupSource{GroupId: "G1", UserId: "U1"},
		Message: webhook.TextMessageContent{
			MessageContent: webhook.MessageContent{Type: "text"},
			Text:           text,
			Mention:        mention,
		},
	}
}

func postbackEvent(data string) webhook.PostbackEvent {
	return webhook.PostbackEvent{
		Source:   webhook.UserSource{UserId: "U1"},
		Postback: &webhook.PostbackContent{Data: data},
	}
}

func messageText(t *testing.T, msgs []messaging_api.MessageInterface) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatal("no messages returned")
	}
	text, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("message type %T, want text", msgs[0])
	}
	return text.Text
}

func TestProcessMessage_AliasDispatch(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "news", aliases: []string{"1"}}
	p, _ := newTestProcessor(t, mod)

	msgs, err := p.ProcessMessage(context.Background(), messageEvent("  1  "))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := messageText(t, msgs); got != "message:1" {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessMessage_AliasResetsState(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "news", aliases: []string{"1"}, states: []session.State{session.StateAwaitingNewsTopicCount}}
	other := &fakeModule{name: "movie", aliases: []string{"2"}}
	p, sessions := newTestProcessor(t, mod, other)

	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	if _, err := p.ProcessMessage(context.Background(), messageEvent("2")); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := sessions.State("U1"); got != session.StateNormal {
		t.Errorf("state after alias = %v, want normal", got)
	}
	if len(other.messages) != 1 {
		t.Errorf("alias module calls = %d, want 1", len(other.messages))
	}
	if len(mod.stated) != 0 {
		t.Error("state handler should not run when an alias matches")
	}
}

func TestProcessMessage_StateRouting(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "news", aliases: []string{"1"}, states: []session.State{session.StateAwaitingNewsTopicCount}}
	p, sessions := newTestProcessor(t, mod)

	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	msgs, err := p.ProcessMessage(context.Background(), messageEvent("3/5"))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := messageText(t, msgs); got != "state:3/5" {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessMessage_FallbackHelpWhenAIDisabled(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t, &fakeModule{name: "news", aliases: []string{"1"}})

	msgs, err := p.ProcessMessage(context.Background(), messageEvent("隨便聊聊"))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := messageText(t, msgs); !strings.Contains(got, "選單") {
		t.Errorf("fallback reply = %q, want help text", got)
	}
	help, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok || help.QuickReply == nil || len(help.QuickReply.Items) == 0 {
		t.Error("help reply should carry quick reply shortcuts")
	}
}

func TestProcessMessage_GroupWithoutMentionIgnored(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t)

	msgs, err := p.ProcessMessage(context.Background(), groupMessageEvent("大家好", nil))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if msgs != nil {
		t.Errorf("group chat without mention should be ignored, got %d messages", len(msgs))
	}
}

func TestProcessMessage_GroupAliasStillWorks(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "movie", aliases: []string{"2"}}
	p, _ := newTestProcessor(t, mod)

	msgs, err := p.ProcessMessage(context.Background(), groupMessageEvent("2", nil))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := messageText(t, msgs); got != "message:2" {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessMessage_HelpKeyword(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t)

	msgs, err := p.ProcessMessage(context.Background(), messageEvent("使用說明"))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if len(msgs) < 2 {
		t.Fatalf("instruction messages = %d, want several", len(msgs))
	}
	last, ok := msgs[len(msgs)-1].(*messaging_api.TextMessage)
	if !ok || last.QuickReply == nil {
		t.Error("last instruction message should carry quick reply shortcuts")
	}
}

func TestProcessMessage_RateLimited(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	sessions := session.NewStore()
	limiter := ratelimit.NewPerKeyLimiter(ratelimit.PerKeyLimiterConfig{
		MaxTokens:     1,
		RefillRate:    0.0001,
		CleanupPeriod: time.Minute,
	})
	t.Cleanup(limiter.Stop)

	p := NewProcessor(ProcessorConfig{
		Registry:    registry,
		Sessions:    sessions,
		UserLimiter: limiter,
		Logger:      logger.New("error"),
		BotConfig:   botConfig(),
	})

	if _, err := p.ProcessMessage(context.Background(), messageEvent("使用說明")); err != nil {
		t.Fatalf("first ProcessMessage() error = %v", err)
	}
	msgs, err := p.ProcessMessage(context.Background(), messageEvent("使用說明"))
	if err != nil {
		t.Fatalf("second ProcessMessage() error = %v", err)
	}
	if got := messageText(t, msgs); !strings.Contains(got, "頻繁") {
		t.Errorf("rate limited reply = %q", got)
	}
}

func TestProcessPostback_Dispatch(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "news", aliases: []string{"1"}}
	p, _ := newTestProcessor(t, mod)

	msgs, err := p.ProcessPostback(context.Background(), postbackEvent("news$topic$3"))
	if err != nil {
		t.Fatalf("ProcessPostback() error = %v", err)
	}
	if got := messageText(t, msgs); got != "postback:topic$3" {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessPostback_CooldownDropsRepeat(t *testing.T) {
	t.Parallel()

	mod := &fakeModule{name: "news", aliases: []string{"1"}}
	p, _ := newTestProcessor(t, mod)

	if _, err := p.ProcessPostback(context.Background(), postbackEvent("news$topic$3")); err != nil {
		t.Fatalf("first ProcessPostback() error = %v", err)
	}
	msgs, err := p.ProcessPostback(context.Background(), postbackEvent("news$topic$3"))
	if err != nil {
		t.Fatalf("second ProcessPostback() error = %v", err)
	}
	if msgs != nil {
		t.Error("repeated postback inside cooldown should be dropped")
	}
	if len(mod.postback) != 1 {
		t.Errorf("module postback calls = %d, want 1", len(mod.postback))
	}
}

func TestProcessPostback_UnknownPrefix(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t)

	msgs, err := p.ProcessPostback(context.Background(), postbackEvent("stale$action"))
	if err != nil {
		t.Fatalf("ProcessPostback() error = %v", err)
	}
	if got := messageText(t, msgs); !strings.Contains(got, "過期") {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessPostback_TooLong(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t)

	msgs, err := p.ProcessPostback(context.Background(), postbackEvent(strings.Repeat("x", 301)))
	if err != nil {
		t.Fatalf("ProcessPostback() error = %v", err)
	}
	if got := messageText(t, msgs); !strings.Contains(got, "異常") {
		t.Errorf("reply = %q", got)
	}
}

func TestProcessFollow(t *testing.T) {
	t.Parallel()

	menu := &fakeModule{name: "menu", aliases: []string{"選單"}}
	p, _ := newTestProcessor(t, menu)

	msgs, err := p.ProcessFollow(context.Background(), webhook.FollowEvent{
		Source: webhook.UserSource{UserId: "U1"},
	})
	if err != nil {
		t.Fatalf("ProcessFollow() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("follow messages = %d, want welcome + menu", len(msgs))
	}
	if len(menu.messages) != 1 {
		t.Error("follow should open the main menu")
	}
}

func TestBuildSplitPostback(t *testing.T) {
	t.Parallel()

	data := BuildPostback("news", "fetch", "3", "5")
	if data != "news$fetch$3$5" {
		t.Errorf("BuildPostback = %q", data)
	}
	fields := SplitPostback(data)
	if len(fields) != 4 || fields[3] != "5" {
		t.Errorf("SplitPostback = %v", fields)
	}
}
