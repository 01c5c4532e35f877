// Package news implements the news module: topic selection by button or
// "topic/count" text, and headline carousels from the news provider.
package news

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/provider/news"
	"github.com/AceNexus/LineBot/internal/render"
	"github.com/AceNexus/LineBot/internal/session"
)

const senderName = "新聞小幫手"

var aliases = []string{"1", "新聞", "新聞快訊"}

// selectionPattern matches "topic/count" dialog input.
var selectionPattern = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)$`)

// Provider fetches headlines for a topic.
type Provider interface {
	Fetch(ctx context.Context, topicID, count int) ([]news.Item, error)
}

// Handler is the news module.
type Handler struct {
	provider Provider
	sessions *session.Store
	countMax int
	log      *logger.Logger
}

// New creates the news module.
func New(provider Provider, sessions *session.Store, countMax int, log *logger.Logger) *Handler {
	if countMax <= 0 || countMax > news.MaxCount {
		countMax = news.MaxCount
	}
	return &Handler{
		provider: provider,
		sessions: sessions,
		countMax: countMax,
		log:      log.WithModule("news"),
	}
}

func (h *Handler) Name() string           { return "news" }
func (h *Handler) PostbackPrefix() string { return "news" + bot.PostbackSplitChar }

func (h *Handler) States() []session.State {
	return []session.State{session.StateAwaitingNewsTopicCount}
}

func (h *Handler) CanHandle(text string) bool {
	return slices.Contains(aliases, text)
}

// HandleMessage opens the topic menu and arms the "topic/count" dialog.
func (h *Handler) HandleMessage(_ context.Context, conv, _ string) []messaging_api.MessageInterface {
	h.sessions.SetState(conv, session.StateAwaitingNewsTopicCount)
	return render.Messages(senderName, topicCard(), render.Text{Body: h.promptText()})
}

// HandleState parses "topic/count" while the dialog is armed. Bad input
// re-prompts and keeps the dialog open.
func (h *Handler) HandleState(ctx context.Context, conv string, _ session.State, text string) []messaging_api.MessageInterface {
	match := selectionPattern.FindStringSubmatch(bot.NormalizeInput(text))
	if match == nil {
		return render.Messages(senderName, render.Text{Body: "格式不正確\n\n" + h.promptText()})
	}

	topicID, _ := strconv.Atoi(match[1])
	count, _ := strconv.Atoi(match[2])
	if !news.ValidTopic(topicID) || count < 1 || count > h.countMax {
		return render.Messages(senderName, render.Text{Body: "數字超出範圍\n\n" + h.promptText()})
	}

	h.sessions.Reset(conv)
	return h.fetch(ctx, topicID, count)
}

func (h *Handler) HandlePostback(ctx context.Context, conv, data string) []messaging_api.MessageInterface {
	fields := bot.SplitPostback(data)
	switch fields[0] {
	case "topic":
		if len(fields) != 2 {
			break
		}
		topicID, err := strconv.Atoi(fields[1])
		if err != nil || !news.ValidTopic(topicID) {
			break
		}
		return render.Messages(senderName, countCard(topicID, h.countMax))

	case "fetch":
		if len(fields) != 3 {
			break
		}
		topicID, err1 := strconv.Atoi(fields[1])
		count, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || !news.ValidTopic(topicID) || count < 1 || count > h.countMax {
			break
		}
		h.sessions.Reset(conv)
		return h.fetch(ctx, topicID, count)
	}

	h.log.WithField("data", data).Warnf("invalid news postback")
	return render.Messages(senderName, render.Text{Body: "操作已過期或無效"})
}

func (h *Handler) fetch(ctx context.Context, topicID, count int) []messaging_api.MessageInterface {
	items, err := h.provider.Fetch(ctx, topicID, count)
	if err != nil {
		h.log.WithError(err).Warnf("news fetch failed")
		return render.Messages(senderName, render.Text{Body: "❌ 目前無法取得新聞，請稍後再試"})
	}

	cards := make([]render.Card, 0, len(items))
	for i, item := range items {
		cards = append(cards, render.Card{
			Title:   fmt.Sprintf("📰 %s %d", news.TopicName(topicID), i+1),
			Compact: true,
			Fields: []render.Field{
				{Label: "標題", Value: item.Title, Bold: true},
			},
			Buttons: []render.Button{
				{Kind: render.ButtonURI, Label: "閱讀全文", Value: item.URL},
			},
		})
	}

	altText := fmt.Sprintf("%s新聞 %d 則", news.TopicName(topicID), len(cards))
	return render.Messages(senderName, render.CardList{AltText: altText, Cards: cards})
}

// promptText explains the "topic/count" input format.
func (h *Handler) promptText() string {
	var b strings.Builder
	b.WriteString("請輸入「主題/數量」選取新聞\n例:3/5 代表商業新聞 5 則\n\n")
	for _, topic := range news.Topics() {
		fmt.Fprintf(&b, "%d:%s\n", topic.ID, topic.Name)
	}
	fmt.Fprintf(&b, "\n數量 1-%d", h.countMax)
	return b.String()
}

// topicCard lists the topics as postback buttons.
func topicCard() render.Card {
	topics := news.Topics()
	buttons := make([]render.Button, 0, len(topics))
	for _, topic := range topics {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       topic.Name,
			Value:       bot.BuildPostback("news", "topic", strconv.Itoa(topic.ID)),
			DisplayText: "新聞主題:" + topic.Name,
		})
	}
	return render.Card{
		Title:    "📰 新聞快訊",
		Subtitle: "請選擇主題",
		Buttons:  buttons,
	}
}

// countCard lists the article counts for a chosen topic.
func countCard(topicID, countMax int) render.Card {
	buttons := make([]render.Button, 0, countMax)
	for n := 1; n <= countMax; n++ {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       fmt.Sprintf("%d 則", n),
			Value:       bot.BuildPostback("news", "fetch", strconv.Itoa(topicID), strconv.Itoa(n)),
			DisplayText: fmt.Sprintf("%s新聞 %d 則", news.TopicName(topicID), n),
		})
	}
	return render.Card{
		Title:    "📰 " + news.TopicName(topicID),
		Subtitle: "請選擇則數",
		Buttons:  buttons,
	}
}
