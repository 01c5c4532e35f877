package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/reminder"
)

type fakePusher struct {
	mu     sync.Mutex
	pushes map[string][]messaging_api.MessageInterface
	err    error
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushes: make(map[string][]messaging_api.MessageInterface)}
}

func (f *fakePusher) Push(_ context.Context, to string, msgs []messaging_api.MessageInterface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushes[to] = append(f.pushes[to], msgs...)
	return nil
}

func (f *fakePusher) count(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes[to])
}

type stubGenerator struct {
	enabled bool
	mu      sync.Mutex
	calls   int
}

func (s *stubGenerator) Enabled() bool { return s.enabled }

func (s *stubGenerator) GenerateWord(context.Context, int) (genai.Word, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return genai.Word{Word: "steady", DefinitionZh: "穩定的"}, nil
}

func newTestScheduler(pusher Pusher, gen WordGenerator) (*Scheduler, *reminder.Store) {
	store := reminder.NewStore(nil)
	s := New(store, pusher, gen, time.UTC, logger.New("error"), nil)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC) }
	return s, store
}

func TestTick_PushesDueReminders(t *testing.T) {
	t.Parallel()

	pusher := newFakePusher()
	s, store := newTestScheduler(pusher, &stubGenerator{})

	_, _ = store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")
	_, _ = store.AddEntry("U2", reminder.KindGeneral, "倒垃圾", "08:00")
	_, _ = store.AddEntry("U3", reminder.KindMedication, "鈣片", "12:00")

	s.tick()

	if pusher.count("U1") != 1 || pusher.count("U2") != 1 {
		t.Errorf("due reminders not pushed: U1=%d U2=%d", pusher.count("U1"), pusher.count("U2"))
	}
	if pusher.count("U3") != 0 {
		t.Error("reminder at 12:00 must not fire at 08:00")
	}
}

func TestTick_SkipsAcknowledgedReminder(t *testing.T) {
	t.Parallel()

	pusher := newFakePusher()
	s, store := newTestScheduler(pusher, &stubGenerator{})

	_, _ = store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")
	store.MarkTaken("U1", "魚油", "08:00", "2026-03-14")

	s.tick()

	if pusher.count("U1") != 0 {
		t.Error("acknowledged reminder must not be pushed again")
	}
}

func TestTick_PushesSubscriptions(t *testing.T) {
	t.Parallel()

	pusher := newFakePusher()
	gen := &stubGenerator{enabled: true}
	s, store := newTestScheduler(pusher, gen)

	_ = store.AddSubscription(reminder.Subscription{
		Conversation: "U1", DifficultyID: 2, DifficultyName: "中級 (Intermediate)", Count: 3, Time: "08:00",
	})
	_ = store.AddSubscription(reminder.Subscription{
		Conversation: "U2", DifficultyID: 1, DifficultyName: "初級 (Basic)", Count: 1, Time: "21:00",
	})

	s.tick()

	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
	if pusher.count("U1") != 1 {
		t.Errorf("U1 pushes = %d, want one carousel", pusher.count("U1"))
	}
	if pusher.count("U2") != 0 {
		t.Error("subscription at 21:00 must not fire at 08:00")
	}
}

func TestTick_SubscriptionsSkippedWhenGeneratorDisabled(t *testing.T) {
	t.Parallel()

	pusher := newFakePusher()
	gen := &stubGenerator{enabled: false}
	s, store := newTestScheduler(pusher, gen)

	_ = store.AddSubscription(reminder.Subscription{
		Conversation: "U1", DifficultyID: 1, DifficultyName: "初級 (Basic)", Count: 2, Time: "08:00",
	})

	s.tick()

	if gen.calls != 0 {
		t.Error("disabled generator must not be called")
	}
	if pusher.count("U1") != 0 {
		t.Error("no push without generated words")
	}
}

func TestTick_PushErrorDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	pusher := newFakePusher()
	pusher.err = errors.New("line api down")
	s, store := newTestScheduler(pusher, &stubGenerator{})

	_, _ = store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")
	_, _ = store.AddEntry("U2", reminder.KindGeneral, "倒垃圾", "08:00")

	s.tick() // must not panic or hang
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(newFakePusher(), &stubGenerator{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
