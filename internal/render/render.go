// Package render converts provider-neutral content into LINE wire messages.
// Modules and providers build Text, Card, and CardList values; only this
// package knows how they map onto the Messaging API message types.
package render

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/lineutil"
)

// Renderable is the closed set of content types the bot can emit.
type Renderable interface {
	renderable()
}

// ButtonKind selects the action behind a card button.
type ButtonKind int

const (
	// ButtonURI opens a URL.
	ButtonURI ButtonKind = iota
	// ButtonPostback sends postback data back to the bot.
	ButtonPostback
	// ButtonMessage sends a text message on the user's behalf.
	ButtonMessage
)

// Button is an action attached to a Card footer.
type Button struct {
	Kind        ButtonKind
	Label       string
	Value       string // URL, postback data, or message text depending on Kind
	DisplayText string // optional chat echo for postback buttons
}

// Field is one labeled row in a Card body.
type Field struct {
	Emoji string
	Label string
	Value string
	Bold  bool
}

// Text is a plain text message.
type Text struct {
	Body string
}

func (Text) renderable() {}

// Card is a single flex bubble with a colored hero title, labeled body
// rows, and footer buttons.
type Card struct {
	Title    string
	Subtitle string
	Fields   []Field
	Buttons  []Button
	Compact  bool // smaller hero for carousel members
}

func (Card) renderable() {}

// CardList is a carousel of cards; it splits automatically when it
// exceeds the per-carousel bubble limit.
type CardList struct {
	AltText string
	Cards   []Card
}

func (CardList) renderable() {}

// Messages renders content into Messaging API messages with a consistent
// sender. The function is pure; callers own reply-size limits.
func Messages(senderName string, items ...Renderable) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName)

	var messages []messaging_api.MessageInterface
	for _, item := range items {
		switch v := item.(type) {
		case Text:
			messages = append(messages, lineutil.NewTextMessageWithConsistentSender(v.Body, sender))
		case Card:
			msg := lineutil.NewFlexMessage(altTextFor(v.Title), buildBubble(v))
			msg.Sender = sender
			messages = append(messages, msg)
		case CardList:
			bubbles := make([]messaging_api.FlexBubble, 0, len(v.Cards))
			for _, card := range v.Cards {
				bubbles = append(bubbles, *buildBubbleValue(card))
			}
			messages = append(messages, lineutil.BuildCarouselMessages(v.AltText, bubbles, sender)...)
		}
	}
	return messages
}

func altTextFor(title string) string {
	if title == "" {
		return "通知"
	}
	return lineutil.TruncateRunes(title, lineutil.MaxAltTextLength)
}

func buildBubble(card Card) messaging_api.FlexContainerInterface {
	return buildBubbleValue(card)
}

func buildBubbleValue(card Card) *messaging_api.FlexBubble {
	var hero *lineutil.FlexBox
	if card.Compact {
		hero = lineutil.NewCompactHeroBox(card.Title)
	} else {
		hero = lineutil.NewHeroBox(card.Title, card.Subtitle)
	}

	body := lineutil.NewBodyContentBuilder()
	for _, f := range card.Fields {
		style := lineutil.DefaultInfoRowStyle()
		if f.Bold {
			style = lineutil.BoldInfoRowStyle()
		}
		body.AddInfoRowIf(f.Emoji, f.Label, f.Value, style)
	}

	var footer *lineutil.FlexBox
	if len(card.Buttons) > 0 {
		footer = lineutil.NewButtonFooter(buttonRows(card.Buttons)...)
	}

	bubble := lineutil.NewFlexBubble(hero, nil, body.Build(), footer)
	return bubble.FlexBubble
}

// buttonRows lays footer buttons out two per row.
func buttonRows(buttons []Button) [][]*lineutil.FlexButton {
	var rows [][]*lineutil.FlexButton
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		row := make([]*lineutil.FlexButton, 0, 2)
		for _, b := range buttons[i:end] {
			row = append(row, buildButton(b))
		}
		rows = append(rows, row)
	}
	return rows
}

func buildButton(b Button) *lineutil.FlexButton {
	var action lineutil.Action
	style := "primary"
	switch b.Kind {
	case ButtonURI:
		action = lineutil.NewURIAction(b.Label, b.Value)
		style = "link"
	case ButtonMessage:
		action = lineutil.NewMessageAction(b.Label, b.Value)
	default:
		if b.DisplayText != "" {
			action = lineutil.NewPostbackActionWithDisplayText(b.Label, b.DisplayText, b.Value)
		} else {
			action = lineutil.NewPostbackAction(b.Label, b.Value)
		}
	}

	btn := lineutil.NewFlexButton(action).WithHeight("sm").WithStyle(style)
	if style == "primary" {
		btn = btn.WithColor(lineutil.ColorPrimary)
	}
	return btn
}
