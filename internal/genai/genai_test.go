package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AceNexus/LineBot/internal/logger"
)

// fakeLLM is an OpenAI-compatible chat completion endpoint for tests.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	requests []map[string]any
}

func (f *fakeLLM) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		reply := f.reply
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"model": "llama-3.3-70b-versatile",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`, reply)
	}
}

func (f *fakeLLM) lastMessages(t *testing.T) []any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	msgs, ok := f.requests[len(f.requests)-1]["messages"].([]any)
	if !ok {
		t.Fatal("request has no messages array")
	}
	return msgs
}

func newTestClient(t *testing.T, llm *fakeLLM, historyLimit int) *Client {
	t.Helper()

	server := httptest.NewServer(llm.handler())
	t.Cleanup(server.Close)

	return New(Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Model:        "llama-3.3-70b-versatile",
		HistoryLimit: historyLimit,
	}, logger.New("error"), nil)
}

func TestNew_NoAPIKeyDisabled(t *testing.T) {
	t.Parallel()

	c := New(Config{}, logger.New("error"), nil)
	if c.Enabled() {
		t.Error("client without API key should be disabled")
	}
	if _, err := c.Chat(context.Background(), "conv", "hi"); err != ErrDisabled {
		t.Errorf("Chat() error = %v, want ErrDisabled", err)
	}
	if _, err := c.GenerateWord(context.Background(), 1); err != ErrDisabled {
		t.Errorf("GenerateWord() error = %v, want ErrDisabled", err)
	}
}

func TestClient_Chat(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "你好！有什麼我可以幫忙的嗎？"}
	c := newTestClient(t, llm, 10)

	reply, err := c.Chat(context.Background(), "conv1", "哈囉")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "你好！有什麼我可以幫忙的嗎？" {
		t.Errorf("reply = %q", reply)
	}

	// system prompt + user message
	msgs := llm.lastMessages(t)
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || !strings.Contains(first["content"].(string), "LINE聊天機器人") {
		t.Errorf("first message = %v, want system prompt", first)
	}
}

func TestClient_Chat_KeepsHistory(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "回覆"}
	c := newTestClient(t, llm, 10)

	ctx := context.Background()
	if _, err := c.Chat(ctx, "conv1", "第一句"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := c.Chat(ctx, "conv1", "第二句"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	// system + user1 + assistant1 + user2
	msgs := llm.lastMessages(t)
	if len(msgs) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(msgs))
	}
}

func TestClient_Chat_TrimsHistory(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "ok"}
	c := newTestClient(t, llm, 4)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := c.Chat(ctx, "conv1", fmt.Sprintf("訊息%d", i)); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	// system + at most limit retained + current user message
	msgs := llm.lastMessages(t)
	if len(msgs) > 6 {
		t.Errorf("len(messages) = %d, want bounded by history limit", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Error("system prompt must survive trimming")
	}
}

func TestClient_ResetHistory(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "ok"}
	c := newTestClient(t, llm, 10)

	ctx := context.Background()
	_, _ = c.Chat(ctx, "conv1", "記住這個")
	c.ResetHistory("conv1")
	_, _ = c.Chat(ctx, "conv1", "新的開始")

	msgs := llm.lastMessages(t)
	if len(msgs) != 2 {
		t.Errorf("len(messages) = %d, want 2 after reset", len(msgs))
	}
}

func TestClient_GenerateWord(t *testing.T) {
	t.Parallel()

	wordJSON := `{"word":"negotiate","pronunciation":"/nɪˈɡoʊʃiˌeɪt/","part_of_speech":"verb","definition_en":"to discuss","definition_zh":"協商","example_sentence":"We negotiate.","example_translation":"我們協商。"}`
	llm := &fakeLLM{reply: wordJSON}
	c := newTestClient(t, llm, 10)

	word, err := c.GenerateWord(context.Background(), 2)
	if err != nil {
		t.Fatalf("GenerateWord() error = %v", err)
	}
	if word.Word != "negotiate" || word.DefinitionZh != "協商" {
		t.Errorf("word = %+v", word)
	}
}

func TestClient_GenerateWord_FencedJSON(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "好的，以下是單字：\n```json\n{\"word\":\"resilient\",\"definition_zh\":\"有韌性的\"}\n```"}
	c := newTestClient(t, llm, 10)

	word, err := c.GenerateWord(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateWord() error = %v", err)
	}
	if word.Word != "resilient" {
		t.Errorf("Word = %q, want resilient", word.Word)
	}
}

func TestClient_GenerateWord_FallbackOnGarbage(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "抱歉我不懂你的意思"}
	c := newTestClient(t, llm, 10)

	word, err := c.GenerateWord(context.Background(), 3)
	if err != nil {
		t.Fatalf("GenerateWord() error = %v", err)
	}
	if word.Word != "fallback" {
		t.Errorf("Word = %q, want fallback word", word.Word)
	}
}

func TestClient_GenerateWord_UnknownDifficulty(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "ok"}
	c := newTestClient(t, llm, 10)

	if _, err := c.GenerateWord(context.Background(), 9); err == nil {
		t.Fatal("expected error for unknown difficulty")
	}
}

func TestDifficulties(t *testing.T) {
	t.Parallel()

	if len(Difficulties()) != 3 {
		t.Fatalf("len(Difficulties()) = %d, want 3", len(Difficulties()))
	}
	if DifficultyName(1) != "初級 (Basic)" {
		t.Errorf("DifficultyName(1) = %q", DifficultyName(1))
	}
	if ValidDifficulty(0) || ValidDifficulty(4) {
		t.Error("out-of-range difficulties should be invalid")
	}
}

func TestAudioURL(t *testing.T) {
	t.Parallel()

	if AudioURL("") != "" {
		t.Error("empty text should produce empty URL")
	}
	got := AudioURL("hello world")
	if !strings.Contains(got, "translate_tts") || !strings.Contains(got, "hello+world") {
		t.Errorf("AudioURL = %q", got)
	}
}
