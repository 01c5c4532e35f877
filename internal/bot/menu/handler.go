// Package menu implements the main menu module: the entry card with the
// numbered feature shortcuts, the AI chat toggle, the push quota lookup,
// and the shared resource card.
package menu

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/delivery"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/render"
	"github.com/AceNexus/LineBot/internal/session"
)

const senderName = "選單小幫手"

var menuAliases = []string{"0", "選單", "menu", "主選單"}
var lumosAliases = []string{"lumos", "資源"}

// QuotaFetcher is the slice of the delivery gateway the menu needs.
type QuotaFetcher interface {
	GetQuota(ctx context.Context) (delivery.Quota, error)
}

// Handler is the menu module.
type Handler struct {
	sessions *session.Store
	ai       *genai.Client
	quota    QuotaFetcher
	log      *logger.Logger
}

// New creates the menu module.
func New(sessions *session.Store, ai *genai.Client, quota QuotaFetcher, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		ai:       ai,
		quota:    quota,
		log:      log.WithModule("menu"),
	}
}

func (h *Handler) Name() string           { return "menu" }
func (h *Handler) PostbackPrefix() string { return "menu" + bot.PostbackSplitChar }

// CanHandle matches the menu aliases and the resource card alias.
func (h *Handler) CanHandle(text string) bool {
	match := func(alias string) bool { return strings.EqualFold(text, alias) }
	return slices.ContainsFunc(menuAliases, match) || slices.ContainsFunc(lumosAliases, match)
}

func (h *Handler) HandleMessage(_ context.Context, _, text string) []messaging_api.MessageInterface {
	if slices.ContainsFunc(lumosAliases, func(a string) bool { return strings.EqualFold(text, a) }) {
		return render.Messages(senderName, resourceCard())
	}
	return render.Messages(senderName, mainMenuCard())
}

func (h *Handler) HandlePostback(ctx context.Context, conv, data string) []messaging_api.MessageInterface {
	switch data {
	case "ai":
		return h.toggleAI(conv)
	case "quota":
		return h.pushQuota(ctx)
	}
	h.log.WithField("data", data).Warnf("unknown menu postback")
	return render.Messages(senderName, render.Text{Body: "操作已過期或無效"})
}

func mainMenuCard() render.Card {
	return render.Card{
		Title:    "📋 主選單",
		Subtitle: "請選擇功能",
		Buttons: []render.Button{
			{Kind: render.ButtonMessage, Label: "1️⃣ 新聞快訊", Value: "1"},
			{Kind: render.ButtonMessage, Label: "2️⃣ 熱門電影", Value: "2"},
			{Kind: render.ButtonMessage, Label: "3️⃣ 日文單字", Value: "3"},
			{Kind: render.ButtonMessage, Label: "4️⃣ 英文單字", Value: "4"},
			{Kind: render.ButtonMessage, Label: "5️⃣ 單字訂閱", Value: "5"},
			{Kind: render.ButtonMessage, Label: "6️⃣ 用藥提醒", Value: "6"},
			{Kind: render.ButtonMessage, Label: "7️⃣ 其他提醒", Value: "7"},
			{Kind: render.ButtonPostback, Label: "🤖 AI 開關", Value: "menu$ai", DisplayText: "切換 AI 聊天"},
			{Kind: render.ButtonPostback, Label: "📊 推播額度", Value: "menu$quota", DisplayText: "查詢推播額度"},
		},
	}
}

func (h *Handler) toggleAI(conv string) []messaging_api.MessageInterface {
	if !h.ai.Enabled() {
		return render.Messages(senderName, render.Text{Body: "❌ AI 功能未啟用"})
	}

	enabled := !h.sessions.AIEnabled(conv)
	h.sessions.SetAIEnabled(conv, enabled)

	if enabled {
		return render.Messages(senderName, render.Text{Body: "🤖 AI 聊天已開啟\n\n直接輸入訊息即可與我聊天"})
	}
	// Dropping the history keeps a later re-enable from resuming a stale
	// conversation.
	h.ai.ResetHistory(conv)
	return render.Messages(senderName, render.Text{Body: "🤖 AI 聊天已關閉"})
}

func (h *Handler) pushQuota(ctx context.Context) []messaging_api.MessageInterface {
	quota, err := h.quota.GetQuota(ctx)
	if err != nil {
		h.log.WithError(err).Warnf("quota lookup failed")
		return render.Messages(senderName, render.Text{Body: "❌ 查詢失敗，請稍後再試"})
	}
	if quota.Type != "limited" {
		return render.Messages(senderName, render.Text{Body: "此帳號無推播限制"})
	}

	body := fmt.Sprintf("📊 LINE 推播額度\n\n總額度:%d\n已用額度:%d\n剩餘額度:%d\n\n(每月 1 日重置)",
		quota.Limit, quota.Used, quota.Limit-quota.Used)
	return render.Messages(senderName, render.Text{Body: body})
}
