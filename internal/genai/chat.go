package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
)

const chatSystemPrompt = "你是一個說中文的LINE聊天機器人"

// Chat runs one turn of multi-turn conversation for a chat. History is
// kept per conversation, bounded to the configured number of messages.
func (c *Client) Chat(ctx context.Context, conversation, message string) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}

	c.mu.Lock()
	history := c.histories[conversation]
	if len(history) == 0 {
		history = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(chatSystemPrompt),
		}
	}
	history = append(history, openai.UserMessage(message))
	messages := make([]openai.ChatCompletionMessageParamUnion, len(history))
	copy(messages, history)
	c.mu.Unlock()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	duration := time.Since(start)

	if err != nil {
		c.recordRequest("chat", "error", duration.Seconds())
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.recordRequest("chat", "error", duration.Seconds())
		return "", errors.New("empty response from model")
	}
	c.recordRequest("chat", "success", duration.Seconds())

	reply := resp.Choices[0].Message.Content
	c.log.WithConversation(conversation).
		Debugf("chat turn completed in %dms (%d tokens)", duration.Milliseconds(), resp.Usage.TotalTokens)

	c.mu.Lock()
	history = append(history, openai.AssistantMessage(reply))
	c.histories[conversation] = c.trimHistory(history)
	c.mu.Unlock()

	return reply, nil
}

// ResetHistory drops the stored conversation context.
func (c *Client) ResetHistory(conversation string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.histories, conversation)
	c.mu.Unlock()
}

// trimHistory keeps the system prompt plus the most recent messages.
func (c *Client) trimHistory(history []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	if len(history) <= c.historyLimit+1 {
		return history
	}
	trimmed := make([]openai.ChatCompletionMessageParamUnion, 0, c.historyLimit+1)
	trimmed = append(trimmed, history[0])
	trimmed = append(trimmed, history[len(history)-c.historyLimit:]...)
	return trimmed
}
