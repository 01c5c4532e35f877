package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// GetSender creates a named sender so every module's messages carry a
// consistent persona in the chat. Reuse one sender for all messages in a
// single reply.
func GetSender(name string) *messaging_api.Sender {
	return &messaging_api.Sender{
		Name: name,
	}
}

// NewTextMessageWithConsistentSender creates a text message using a pre-created sender.
// LINE API limits: max 5000 characters per text message
func NewTextMessageWithConsistentSender(text string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	if len(text) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength-3) + "..."
	}

	return &messaging_api.TextMessage{
		Text:   text,
		Sender: sender,
	}
}

// ErrorMessageWithSender creates a user-friendly error message with a pre-created sender.
func ErrorMessageWithSender(sender *messaging_api.Sender) messaging_api.MessageInterface {
	return NewTextMessageWithConsistentSender("❌ 系統暫時無法處理您的請求\n\n請稍後再試。", sender)
}

// ErrorMessageWithDetailAndSender creates an error message with additional context.
func ErrorMessageWithDetailAndSender(userMessage string, sender *messaging_api.Sender) messaging_api.MessageInterface {
	return NewTextMessageWithConsistentSender("❌ "+userMessage+"\n\n請稍後再試。", sender)
}
