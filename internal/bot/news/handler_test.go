package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/provider/news"
	"github.com/AceNexus/LineBot/internal/session"
)

type stubProvider struct {
	topicID int
	count   int
	err     error
}

func (s *stubProvider) Fetch(_ context.Context, topicID, count int) ([]news.Item, error) {
	s.topicID, s.count = topicID, count
	if s.err != nil {
		return nil, s.err
	}
	items := make([]news.Item, count)
	for i := range items {
		items[i] = news.Item{Title: fmt.Sprintf("標題 %d", i+1), URL: "https://tinyurl.com/x"}
	}
	return items, nil
}

func newTestHandler(p *stubProvider) (*Handler, *session.Store) {
	sessions := session.NewStore()
	return New(p, sessions, 10, logger.New("error")), sessions
}

func firstText(t *testing.T, msgs []messaging_api.MessageInterface) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatal("no messages")
	}
	text, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("message type %T, want text", msgs[0])
	}
	return text.Text
}

func TestHandleMessage_ArmsDialog(t *testing.T) {
	t.Parallel()

	h, sessions := newTestHandler(&stubProvider{})

	msgs := h.HandleMessage(context.Background(), "U1", "1")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want topic card + prompt", len(msgs))
	}
	if got := sessions.State("U1"); got != session.StateAwaitingNewsTopicCount {
		t.Errorf("state = %v", got)
	}
}

func TestHandleState_ValidSelection(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{}
	h, sessions := newTestHandler(stub)
	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	msgs := h.HandleState(context.Background(), "U1", session.StateAwaitingNewsTopicCount, "3/5")
	if stub.topicID != 3 || stub.count != 5 {
		t.Errorf("fetched topic %d count %d, want 3/5", stub.topicID, stub.count)
	}
	if len(msgs) == 0 {
		t.Fatal("no carousel returned")
	}
	if got := sessions.State("U1"); got != session.StateNormal {
		t.Errorf("state after fetch = %v, want normal", got)
	}
}

func TestHandleState_FullwidthSelection(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{}
	h, sessions := newTestHandler(stub)
	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	h.HandleState(context.Background(), "U1", session.StateAwaitingNewsTopicCount, "３／５")
	if stub.topicID != 3 || stub.count != 5 {
		t.Errorf("fetched topic %d count %d, want fullwidth ３／５ to parse as 3/5", stub.topicID, stub.count)
	}
}

func TestHandleState_BadInputReprompts(t *testing.T) {
	t.Parallel()

	h, sessions := newTestHandler(&stubProvider{})
	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	for _, input := range []string{"abc", "8/5", "3/11", "0/1"} {
		got := firstText(t, h.HandleState(context.Background(), "U1", session.StateAwaitingNewsTopicCount, input))
		if !strings.Contains(got, "主題/數量") {
			t.Errorf("input %q: reply = %q, want re-prompt", input, got)
		}
		if sessions.State("U1") != session.StateAwaitingNewsTopicCount {
			t.Errorf("input %q: dialog should stay armed", input)
		}
	}
}

func TestHandlePostback_TopicThenFetch(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{}
	h, _ := newTestHandler(stub)

	msgs := h.HandlePostback(context.Background(), "U1", "topic$2")
	if len(msgs) != 1 {
		t.Fatalf("count menu messages = %d, want 1", len(msgs))
	}
	if _, ok := msgs[0].(*messaging_api.FlexMessage); !ok {
		t.Fatalf("message type %T, want flex count menu", msgs[0])
	}

	h.HandlePostback(context.Background(), "U1", "fetch$2$4")
	if stub.topicID != 2 || stub.count != 4 {
		t.Errorf("fetched topic %d count %d, want 2/4", stub.topicID, stub.count)
	}
}

func TestHandlePostback_Invalid(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(&stubProvider{})

	for _, data := range []string{"topic$99", "fetch$1$99", "fetch$abc$1", "bogus"} {
		got := firstText(t, h.HandlePostback(context.Background(), "U1", data))
		if !strings.Contains(got, "過期") {
			t.Errorf("data %q: reply = %q", data, got)
		}
	}
}

func TestFetch_ErrorApologizes(t *testing.T) {
	t.Parallel()

	h, sessions := newTestHandler(&stubProvider{err: errors.New("scrape failed")})
	sessions.SetState("U1", session.StateAwaitingNewsTopicCount)

	got := firstText(t, h.HandleState(context.Background(), "U1", session.StateAwaitingNewsTopicCount, "1/3"))
	if !strings.Contains(got, "無法取得新聞") {
		t.Errorf("reply = %q", got)
	}
}
