// Package scheduler pushes due reminders and word subscriptions. A cron
// job fires every minute in the bot timezone and matches the current
// HH:MM against the reminder store, so custom times added at runtime are
// picked up without re-registering cron entries.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/AceNexus/LineBot/internal/bot/remind"
	"github.com/AceNexus/LineBot/internal/bot/words"
	"github.com/AceNexus/LineBot/internal/genai"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/reminder"
	"github.com/AceNexus/LineBot/internal/render"
)

const (
	// tickTimeout bounds one minute's worth of pushes.
	tickTimeout = 50 * time.Second

	// maxConcurrentPushes caps the recipient fan-out per tick.
	maxConcurrentPushes = 8

	reminderSender = "提醒小幫手"
	wordsSender    = "單字小幫手"
)

// Pusher sends messages outside a reply context. *delivery.Gateway
// satisfies it.
type Pusher interface {
	Push(ctx context.Context, to string, messages []messaging_api.MessageInterface) error
}

// WordGenerator produces vocabulary words for subscription pushes.
// *genai.Client satisfies it.
type WordGenerator interface {
	Enabled() bool
	GenerateWord(ctx context.Context, difficultyID int) (genai.Word, error)
}

// Scheduler runs the per-minute push loop.
type Scheduler struct {
	store   *reminder.Store
	pusher  Pusher
	gen     WordGenerator
	loc     *time.Location
	log     *logger.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron

	now func() time.Time // swapped in tests
}

// New creates a scheduler. Call Start to begin ticking.
func New(store *reminder.Store, pusher Pusher, gen WordGenerator, loc *time.Location, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		store:   store,
		pusher:  pusher,
		gen:     gen,
		loc:     loc,
		log:     log.WithModule("scheduler"),
		metrics: m,
		now:     time.Now,
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	return s
}

// Start registers the minute tick and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.cron.Start()
	s.log.WithField("reminder_times", strings.Join(s.store.Times(), " ")).
		Infof("scheduler started in %s", s.loc)
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish, up to
// the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	now := s.now().In(s.loc)
	hhmm := now.Format("15:04")
	date := now.Format("2006-01-02")

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	s.runReminders(ctx, hhmm, date)
	s.runSubscriptions(ctx, hhmm)
}

// runReminders pushes every reminder due at hhmm that has not already
// been acknowledged today. One failed recipient never blocks the rest.
func (s *Scheduler) runReminders(ctx context.Context, hhmm, date string) {
	entries := s.store.At(hhmm)
	if len(entries) == 0 {
		return
	}

	start := time.Now()
	var failed atomic.Bool

	// One failed recipient never blocks or cancels the rest.
	var g errgroup.Group
	g.SetLimit(maxConcurrentPushes)
	for _, entry := range entries {
		if s.store.IsTaken(entry.Conversation, entry.Name, entry.Time, date) {
			continue
		}
		g.Go(func() error {
			msgs := render.Messages(reminderSender, remind.PushMessages(entry)...)
			if err := s.pusher.Push(ctx, entry.Conversation, msgs); err != nil {
				s.log.WithConversation(entry.Conversation).WithError(err).Errorf("reminder push failed")
				s.recordPush("reminder", "error")
				failed.Store(true)
				return nil
			}
			s.recordPush("reminder", "success")
			return nil
		})
	}
	_ = g.Wait()

	s.recordRun("reminder", runStatus(failed.Load()), time.Since(start))
	s.log.WithField("time", hhmm).WithField("count", len(entries)).Debugf("reminder run complete")
}

// runSubscriptions generates and pushes the vocabulary batch for every
// subscription due at hhmm.
func (s *Scheduler) runSubscriptions(ctx context.Context, hhmm string) {
	subs := s.store.SubscriptionsAt(hhmm)
	if len(subs) == 0 {
		return
	}
	if !s.gen.Enabled() {
		s.log.Warnf("skipping %d word subscriptions: generator disabled", len(subs))
		s.recordRun("subscription", "skipped", 0)
		return
	}

	start := time.Now()
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(maxConcurrentPushes)
	for _, sub := range subs {
		g.Go(func() error {
			if err := s.pushSubscription(ctx, sub); err != nil {
				s.log.WithConversation(sub.Conversation).WithError(err).Errorf("subscription push failed")
				s.recordPush("subscription", "error")
				failed.Store(true)
				return nil
			}
			s.recordPush("subscription", "success")
			return nil
		})
	}
	_ = g.Wait()

	s.recordRun("subscription", runStatus(failed.Load()), time.Since(start))
	s.log.WithField("time", hhmm).WithField("count", len(subs)).Debugf("subscription run complete")
}

func (s *Scheduler) pushSubscription(ctx context.Context, sub reminder.Subscription) error {
	cards := make([]render.Card, 0, sub.Count)
	for i := 0; i < sub.Count; i++ {
		word, err := s.gen.GenerateWord(ctx, sub.DifficultyID)
		if err != nil {
			s.log.WithError(err).Warnf("generate subscription word %d/%d failed", i+1, sub.Count)
			continue
		}
		cards = append(cards, words.WordCard(word))
	}
	if len(cards) == 0 {
		return fmt.Errorf("no words generated for difficulty %d", sub.DifficultyID)
	}

	msgs := render.Messages(wordsSender, render.CardList{
		AltText: fmt.Sprintf("%s單字 %d 個", sub.DifficultyName, len(cards)),
		Cards:   cards,
	})
	return s.pusher.Push(ctx, sub.Conversation, msgs)
}

func runStatus(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

func (s *Scheduler) recordRun(job, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordSchedulerRun(job, status, d.Seconds())
	}
}

func (s *Scheduler) recordPush(job, status string) {
	if s.metrics != nil {
		s.metrics.RecordSchedulerPush(job, status)
	}
}

// cronLogger adapts our logger to the cron panic-recovery chain.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debugf("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).Errorf("cron: %s %v", msg, keysAndValues)
}
