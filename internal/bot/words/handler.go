// Package words implements the vocabulary module: on-demand English words
// from the LLM, the Japanese placeholder, and the daily subscription
// wizard (difficulty, count, delivery time).
package words

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/reminder"
	"github.com/AceNexus/LineBot/internal/render"
	"github.com/AceNexus/LineBot/internal/session"
)

const senderName = "單字小幫手"

// japaneseComingSoon matches the original placeholder wording.
const japaneseComingSoon = "我們正在努力開發此功能,敬請期待"

var (
	japaneseAliases  = []string{"3", "日文單字"}
	englishAliases   = []string{"4", "英文單字"}
	subscribeAliases = []string{"5", "單字訂閱", "訂閱"}
)

// selectionPattern matches "difficulty/count" dialog input.
var selectionPattern = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)$`)

// Generator produces vocabulary entries. *genai.Client satisfies it.
type Generator interface {
	Enabled() bool
	GenerateWord(ctx context.Context, difficultyID int) (genai.Word, error)
}

// Handler is the vocabulary module.
type Handler struct {
	gen      Generator
	sessions *session.Store
	store    *reminder.Store
	slots    []string // selectable subscription delivery times
	countMax int
	log      *logger.Logger
}

// New creates the vocabulary module.
func New(gen Generator, sessions *session.Store, store *reminder.Store, slots []string, countMax int, log *logger.Logger) *Handler {
	if countMax <= 0 {
		countMax = 5
	}
	return &Handler{
		gen:      gen,
		sessions: sessions,
		store:    store,
		slots:    slots,
		countMax: countMax,
		log:      log.WithModule("words"),
	}
}

func (h *Handler) Name() string           { return "words" }
func (h *Handler) PostbackPrefix() string { return "words" + bot.PostbackSplitChar }

func (h *Handler) States() []session.State {
	return []session.State{session.StateAwaitingWordCount}
}

func (h *Handler) CanHandle(text string) bool {
	return slices.Contains(japaneseAliases, text) ||
		slices.Contains(englishAliases, text) ||
		slices.Contains(subscribeAliases, text)
}

func (h *Handler) HandleMessage(_ context.Context, conv, text string) []messaging_api.MessageInterface {
	switch {
	case slices.Contains(japaneseAliases, text):
		return render.Messages(senderName, render.Text{Body: japaneseComingSoon})

	case slices.Contains(subscribeAliases, text):
		return render.Messages(senderName, subscriptionMenuCard())

	default:
		if !h.gen.Enabled() {
			return render.Messages(senderName, render.Text{Body: "❌ AI 服務未啟用，無法產生單字"})
		}
		h.sessions.SetState(conv, session.StateAwaitingWordCount)
		return render.Messages(senderName, difficultyCard("diff"), render.Text{Body: h.promptText()})
	}
}

// HandleState parses "difficulty/count" while the dialog is armed.
func (h *Handler) HandleState(ctx context.Context, conv string, _ session.State, text string) []messaging_api.MessageInterface {
	match := selectionPattern.FindStringSubmatch(bot.NormalizeInput(text))
	if match == nil {
		return render.Messages(senderName, render.Text{Body: "格式不正確\n\n" + h.promptText()})
	}

	difficultyID, _ := strconv.Atoi(match[1])
	count, _ := strconv.Atoi(match[2])
	if !genai.ValidDifficulty(difficultyID) || count < 1 || count > h.countMax {
		return render.Messages(senderName, render.Text{Body: "數字超出範圍\n\n" + h.promptText()})
	}

	h.sessions.Reset(conv)
	return h.generate(ctx, difficultyID, count)
}

func (h *Handler) HandlePostback(ctx context.Context, conv, data string) []messaging_api.MessageInterface {
	fields := bot.SplitPostback(data)

	if fields[0] == "sub" {
		return h.handleSubscription(conv, fields[1:])
	}

	switch fields[0] {
	case "diff":
		if len(fields) != 2 {
			break
		}
		difficultyID, err := strconv.Atoi(fields[1])
		if err != nil || !genai.ValidDifficulty(difficultyID) {
			break
		}
		return render.Messages(senderName, countCard(difficultyID, h.countMax))

	case "fetch":
		if len(fields) != 3 {
			break
		}
		difficultyID, err1 := strconv.Atoi(fields[1])
		count, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || !genai.ValidDifficulty(difficultyID) || count < 1 || count > h.countMax {
			break
		}
		h.sessions.Reset(conv)
		return h.generate(ctx, difficultyID, count)
	}

	h.log.WithField("data", data).Warnf("invalid words postback")
	return render.Messages(senderName, render.Text{Body: "操作已過期或無效"})
}

// generate produces count words and renders them as a carousel.
func (h *Handler) generate(ctx context.Context, difficultyID, count int) []messaging_api.MessageInterface {
	if !h.gen.Enabled() {
		return render.Messages(senderName, render.Text{Body: "❌ AI 服務未啟用，無法產生單字"})
	}

	cards := make([]render.Card, 0, count)
	for range count {
		word, err := h.gen.GenerateWord(ctx, difficultyID)
		if err != nil {
			h.log.WithError(err).Warnf("word generation failed")
			continue
		}
		cards = append(cards, WordCard(word))
	}
	if len(cards) == 0 {
		return render.Messages(senderName, render.Text{Body: "❌ 目前無法產生單字，請稍後再試"})
	}

	altText := fmt.Sprintf("%s單字 %d 個", genai.DifficultyName(difficultyID), len(cards))
	return render.Messages(senderName, render.CardList{AltText: altText, Cards: cards})
}

// WordCard renders one vocabulary entry. The scheduler reuses it for
// subscription pushes.
func WordCard(word genai.Word) render.Card {
	card := render.Card{
		Title:    word.Word,
		Subtitle: word.Pronunciation,
		Fields: []render.Field{
			{Emoji: "🏷", Label: "詞性", Value: word.PartOfSpeech},
			{Emoji: "🇬🇧", Label: "英文解釋", Value: word.DefinitionEn},
			{Emoji: "🇹🇼", Label: "中文解釋", Value: word.DefinitionZh, Bold: true},
			{Emoji: "✏️", Label: "例句", Value: word.ExampleSentence},
			{Emoji: "📖", Label: "例句翻譯", Value: word.ExampleTranslation},
		},
	}
	if url := genai.AudioURL(word.Word); url != "" {
		card.Buttons = append(card.Buttons, render.Button{Kind: render.ButtonURI, Label: "🔊 單字發音", Value: url})
	}
	if url := genai.AudioURL(word.ExampleSentence); url != "" {
		card.Buttons = append(card.Buttons, render.Button{Kind: render.ButtonURI, Label: "🔊 例句發音", Value: url})
	}
	return card
}

func (h *Handler) promptText() string {
	var b strings.Builder
	b.WriteString("請輸入「難度/數量」選取單字\n例:2/3 代表中級單字 3 個\n\n")
	for _, d := range genai.Difficulties() {
		fmt.Fprintf(&b, "%d:%s\n", d.ID, d.Name)
	}
	fmt.Fprintf(&b, "\n數量 1-%d", h.countMax)
	return b.String()
}

// difficultyCard lists the difficulty levels. action is "diff" for the
// on-demand flow and "sub$diff" for the subscription wizard.
func difficultyCard(action string) render.Card {
	levels := genai.Difficulties()
	buttons := make([]render.Button, 0, len(levels))
	for _, d := range levels {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       d.Name,
			Value:       "words" + bot.PostbackSplitChar + action + bot.PostbackSplitChar + strconv.Itoa(d.ID),
			DisplayText: "單字難度:" + d.Name,
		})
	}
	return render.Card{
		Title:    "📚 英文單字",
		Subtitle: "請選擇難度",
		Buttons:  buttons,
	}
}

// countCard lists the word counts for a chosen difficulty.
func countCard(difficultyID, countMax int) render.Card {
	buttons := make([]render.Button, 0, countMax)
	for n := 1; n <= countMax; n++ {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       fmt.Sprintf("%d 個", n),
			Value:       bot.BuildPostback("words", "fetch", strconv.Itoa(difficultyID), strconv.Itoa(n)),
			DisplayText: fmt.Sprintf("%s %d 個", genai.DifficultyName(difficultyID), n),
		})
	}
	return render.Card{
		Title:    "📚 " + genai.DifficultyName(difficultyID),
		Subtitle: "請選擇數量",
		Buttons:  buttons,
	}
}

// handleSubscription runs the subscription wizard postbacks.
func (h *Handler) handleSubscription(conv string, fields []string) []messaging_api.MessageInterface {
	if len(fields) == 0 {
		return render.Messages(senderName, subscriptionMenuCard())
	}

	switch fields[0] {
	case "start":
		if !h.gen.Enabled() {
			return render.Messages(senderName, render.Text{Body: "❌ AI 服務未啟用，無法訂閱單字"})
		}
		return render.Messages(senderName, subscriptionDifficultyCard())

	case "diff":
		if len(fields) != 2 {
			break
		}
		difficultyID, err := strconv.Atoi(fields[1])
		if err != nil || !genai.ValidDifficulty(difficultyID) {
			break
		}
		return render.Messages(senderName, subscriptionCountCard(difficultyID, h.countMax))

	case "count":
		if len(fields) != 3 {
			break
		}
		difficultyID, err1 := strconv.Atoi(fields[1])
		count, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || !genai.ValidDifficulty(difficultyID) || count < 1 || count > h.countMax {
			break
		}
		return render.Messages(senderName, subscriptionTimeCard(difficultyID, count, h.slots))

	case "time":
		if len(fields) != 4 {
			break
		}
		difficultyID, err1 := strconv.Atoi(fields[1])
		count, err2 := strconv.Atoi(fields[2])
		slot := fields[3]
		if err1 != nil || err2 != nil || !genai.ValidDifficulty(difficultyID) ||
			count < 1 || count > h.countMax || !slices.Contains(h.slots, slot) {
			break
		}
		return h.addSubscription(conv, difficultyID, count, slot)

	case "view":
		return h.viewSubscriptions(conv)

	case "cancel":
		return h.cancelSubscriptions(conv)
	}

	h.log.WithField("fields", strings.Join(fields, ",")).Warnf("invalid subscription postback")
	return render.Messages(senderName, render.Text{Body: "操作已過期或無效"})
}

func (h *Handler) addSubscription(conv string, difficultyID, count int, slot string) []messaging_api.MessageInterface {
	err := h.store.AddSubscription(reminder.Subscription{
		Conversation:   conv,
		DifficultyID:   difficultyID,
		DifficultyName: genai.DifficultyName(difficultyID),
		Count:          count,
		Time:           slot,
	})
	if err != nil {
		if errors.Is(err, reminder.ErrDuplicate) {
			return render.Messages(senderName, render.Text{Body: "此訂閱已存在"})
		}
		h.log.WithError(err).Errorf("add subscription failed")
		return render.Messages(senderName, render.Text{Body: "❌ 訂閱失敗，請稍後再試"})
	}

	body := fmt.Sprintf("✅ 訂閱成功！\n\n每天 %s 推播 %d 個%s單字",
		slot, count, genai.DifficultyName(difficultyID))
	return render.Messages(senderName, render.Text{Body: body})
}

func (h *Handler) viewSubscriptions(conv string) []messaging_api.MessageInterface {
	subs := h.store.Subscriptions(conv)
	if len(subs) == 0 {
		return render.Messages(senderName, render.Text{Body: "目前沒有任何訂閱\n\n點選「設定訂閱」開始"})
	}

	var b strings.Builder
	b.WriteString("📬 您的訂閱\n")
	for i, sub := range subs {
		fmt.Fprintf(&b, "\n%d. 每天 %s:%s %d 個", i+1, sub.Time, sub.DifficultyName, sub.Count)
	}
	return render.Messages(senderName, render.Text{Body: b.String()})
}

func (h *Handler) cancelSubscriptions(conv string) []messaging_api.MessageInterface {
	removed, err := h.store.CancelSubscriptions(conv)
	if err != nil {
		h.log.WithError(err).Errorf("cancel subscriptions failed")
		return render.Messages(senderName, render.Text{Body: "❌ 取消失敗，請稍後再試"})
	}
	if removed == 0 {
		return render.Messages(senderName, render.Text{Body: "目前沒有任何訂閱"})
	}
	return render.Messages(senderName, render.Text{Body: fmt.Sprintf("已取消 %d 筆訂閱", removed)})
}

func subscriptionMenuCard() render.Card {
	return render.Card{
		Title:    "📬 單字訂閱",
		Subtitle: "每日自動推播英文單字",
		Buttons: []render.Button{
			{Kind: render.ButtonPostback, Label: "設定訂閱", Value: "words$sub$start", DisplayText: "單字訂閱:設定訂閱"},
			{Kind: render.ButtonPostback, Label: "查閱訂閱", Value: "words$sub$view", DisplayText: "單字訂閱:查閱訂閱"},
			{Kind: render.ButtonPostback, Label: "取消訂閱", Value: "words$sub$cancel", DisplayText: "單字訂閱:取消訂閱"},
		},
	}
}

func subscriptionDifficultyCard() render.Card {
	levels := genai.Difficulties()
	buttons := make([]render.Button, 0, len(levels))
	for _, d := range levels {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       d.Name,
			Value:       bot.BuildPostback("words", "sub", "diff", strconv.Itoa(d.ID)),
			DisplayText: "訂閱難度:" + d.Name,
		})
	}
	return render.Card{
		Title:    "📬 設定訂閱",
		Subtitle: "請選擇難度",
		Buttons:  buttons,
	}
}

func subscriptionCountCard(difficultyID, countMax int) render.Card {
	buttons := make([]render.Button, 0, countMax)
	for n := 1; n <= countMax; n++ {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       fmt.Sprintf("%d 個", n),
			Value:       bot.BuildPostback("words", "sub", "count", strconv.Itoa(difficultyID), strconv.Itoa(n)),
			DisplayText: fmt.Sprintf("訂閱數量:%d 個", n),
		})
	}
	return render.Card{
		Title:    "📬 " + genai.DifficultyName(difficultyID),
		Subtitle: "請選擇每日數量",
		Buttons:  buttons,
	}
}

func subscriptionTimeCard(difficultyID, count int, slots []string) render.Card {
	buttons := make([]render.Button, 0, len(slots))
	for _, slot := range slots {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       slot,
			Value:       bot.BuildPostback("words", "sub", "time", strconv.Itoa(difficultyID), strconv.Itoa(count), slot),
			DisplayText: "訂閱時間:" + slot,
		})
	}
	return render.Card{
		Title:    "📬 選擇推播時間",
		Subtitle: "每天固定時段送達",
		Buttons:  buttons,
	}
}
