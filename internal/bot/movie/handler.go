// Package movie implements the trending-movie module: a single command
// that renders the current chart as a carousel.
package movie

import (
	"context"
	"slices"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/provider/movie"
	"github.com/AceNexus/LineBot/internal/render"
)

const senderName = "電影小幫手"

var aliases = []string{"2", "電影", "熱門電影"}

// Provider fetches the trending movie chart.
type Provider interface {
	Fetch(ctx context.Context) ([]movie.Movie, error)
}

// Handler is the movie module.
type Handler struct {
	provider Provider
	log      *logger.Logger
}

// New creates the movie module.
func New(provider Provider, log *logger.Logger) *Handler {
	return &Handler{
		provider: provider,
		log:      log.WithModule("movie"),
	}
}

func (h *Handler) Name() string           { return "movie" }
func (h *Handler) PostbackPrefix() string { return "" }

func (h *Handler) CanHandle(text string) bool {
	return slices.Contains(aliases, text)
}

func (h *Handler) HandleMessage(ctx context.Context, _, _ string) []messaging_api.MessageInterface {
	movies, err := h.provider.Fetch(ctx)
	if err != nil {
		h.log.WithError(err).Warnf("movie fetch failed")
		return render.Messages(senderName, render.Text{Body: "❌ 目前無法取得電影資訊，請稍後再試"})
	}

	cards := make([]render.Card, 0, len(movies))
	for _, m := range movies {
		card := render.Card{
			Title:    m.Title,
			Subtitle: m.EnglishTitle,
			Fields: []render.Field{
				{Emoji: "⭐", Label: "評分", Value: m.Rating, Bold: true},
				{Emoji: "🔖", Label: "分級", Value: m.Certificate},
				{Emoji: "⏱", Label: "片長", Value: m.Runtime},
				{Emoji: "📅", Label: "上映", Value: m.ReleaseInfo},
				{Emoji: "🎭", Label: "類型", Value: m.Genres},
			},
		}
		if m.TrailerURL != "" {
			card.Buttons = append(card.Buttons, render.Button{
				Kind:  render.ButtonURI,
				Label: "觀看預告",
				Value: m.TrailerURL,
			})
		}
		cards = append(cards, card)
	}

	return render.Messages(senderName, render.CardList{AltText: "熱門電影排行", Cards: cards})
}

func (h *Handler) HandlePostback(context.Context, string, string) []messaging_api.MessageInterface {
	return nil
}
