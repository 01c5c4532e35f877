// Package reminder holds medication reminders, general reminders, daily
// taken records and vocabulary subscriptions. The store is the single
// source of truth for the scheduler and the bot modules; an optional
// Persister mirrors mutations to durable storage.
package reminder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind separates medication reminders from general ones. They share the
// store and the schedule but surface in different menus.
type Kind string

const (
	KindMedication Kind = "medication"
	KindGeneral    Kind = "general"
)

// Entry is one reminder: a name to announce at a daily HH:MM time.
type Entry struct {
	ID           int64
	Conversation string
	Kind         Kind
	Name         string
	Time         string // canonical zero-padded HH:MM
	CreatedAt    time.Time
}

// Subscription is a daily vocabulary push: count words at a difficulty,
// delivered at a fixed time slot.
type Subscription struct {
	Conversation   string
	DifficultyID   int
	DifficultyName string
	Count          int
	Time           string
	CreatedAt      time.Time
}

var (
	// ErrDuplicate is returned when an equivalent entry or subscription
	// already exists for the conversation.
	ErrDuplicate = errors.New("already exists")

	// ErrNotFound is returned when an entry does not exist or belongs to a
	// different conversation.
	ErrNotFound = errors.New("not found")
)

// Persister mirrors store mutations to durable storage. Implementations
// must be safe for concurrent use. A nil Persister keeps the store
// memory-only.
type Persister interface {
	SaveEntry(e Entry) error
	DeleteEntry(id int64) error
	SaveSubscription(s Subscription) error
	DeleteSubscriptions(conversation string) error
}

type takenKey struct {
	conversation string
	name         string
	time         string
	date         string // YYYY-MM-DD
}

// Store is the locked reminder/subscription store.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]Entry
	taken   map[takenKey]struct{}
	subs    []Subscription

	persist Persister
}

// NewStore creates an empty store. persist may be nil for memory-only use.
func NewStore(persist Persister) *Store {
	return &Store{
		nextID:  1,
		entries: make(map[int64]Entry),
		taken:   make(map[takenKey]struct{}),
		persist: persist,
	}
}

// NormalizeTime zero-pads an HH:MM string ("8:05" -> "08:05"). The caller
// validates the format first; invalid input is returned unchanged.
func NormalizeTime(t string) string {
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return t
	}
	if len(parts[0]) == 1 {
		return "0" + t
	}
	return t
}

// Load seeds the store from persisted rows at startup. IDs continue past
// the highest loaded entry.
func (s *Store) Load(entries []Entry, subs []Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries[e.ID] = e
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	s.subs = append(s.subs, subs...)
}

// AddEntry stores a reminder. Two entries collide when the conversation,
// kind, case-insensitive name and time all match.
func (s *Store) AddEntry(conversation string, kind Kind, name, timeStr string) (Entry, error) {
	timeStr = NormalizeTime(timeStr)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Conversation == conversation && e.Kind == kind &&
			strings.EqualFold(e.Name, name) && e.Time == timeStr {
			return Entry{}, fmt.Errorf("%s %s at %s: %w", kind, name, timeStr, ErrDuplicate)
		}
	}

	entry := Entry{
		ID:           s.nextID,
		Conversation: conversation,
		Kind:         kind,
		Name:         name,
		Time:         timeStr,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.entries[entry.ID] = entry

	if s.persist != nil {
		if err := s.persist.SaveEntry(entry); err != nil {
			return entry, fmt.Errorf("persist entry: %w", err)
		}
	}
	return entry, nil
}

// Entries returns the conversation's reminders of one kind, earliest
// time first. Entries at the same time keep their creation order.
func (s *Store) Entries(conversation string, kind Kind) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Conversation == conversation && e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteEntry removes a reminder by ID. The conversation must own it.
func (s *Store) DeleteEntry(conversation string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.Conversation != conversation {
		return fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	delete(s.entries, id)

	if s.persist != nil {
		if err := s.persist.DeleteEntry(id); err != nil {
			return fmt.Errorf("persist delete: %w", err)
		}
	}
	return nil
}

// At returns a snapshot of every reminder scheduled for the given time,
// across all conversations and kinds. The scheduler iterates the copy
// without holding the lock.
func (s *Store) At(timeStr string) []Entry {
	timeStr = NormalizeTime(timeStr)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Time == timeStr {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkTaken records that a reminder was acknowledged on a date.
// Marking twice is a no-op.
func (s *Store) MarkTaken(conversation, name, timeStr, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[takenKey{conversation, strings.ToLower(name), NormalizeTime(timeStr), date}] = struct{}{}
}

// IsTaken reports whether a reminder was acknowledged on a date.
func (s *Store) IsTaken(conversation, name, timeStr, date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.taken[takenKey{conversation, strings.ToLower(name), NormalizeTime(timeStr), date}]
	return ok
}

// TakenToday partitions a conversation's reminders of one kind into taken
// and pending for the given date.
func (s *Store) TakenToday(conversation string, kind Kind, date string) (taken, pending []Entry) {
	for _, e := range s.Entries(conversation, kind) {
		if s.IsTaken(conversation, e.Name, e.Time, date) {
			taken = append(taken, e)
		} else {
			pending = append(pending, e)
		}
	}
	return taken, pending
}

// AddSubscription stores a vocabulary subscription. Two subscriptions
// collide when the conversation, difficulty and time all match.
func (s *Store) AddSubscription(sub Subscription) error {
	sub.Time = NormalizeTime(sub.Time)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.Conversation == sub.Conversation &&
			existing.DifficultyID == sub.DifficultyID && existing.Time == sub.Time {
			return fmt.Errorf("subscription %s at %s: %w", sub.DifficultyName, sub.Time, ErrDuplicate)
		}
	}

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subs = append(s.subs, sub)

	if s.persist != nil {
		if err := s.persist.SaveSubscription(sub); err != nil {
			return fmt.Errorf("persist subscription: %w", err)
		}
	}
	return nil
}

// Subscriptions returns a conversation's subscriptions, oldest first.
func (s *Store) Subscriptions(conversation string) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.Conversation == conversation {
			out = append(out, sub)
		}
	}
	return out
}

// SubscriptionsAt returns a snapshot of every subscription for a time slot.
func (s *Store) SubscriptionsAt(timeStr string) []Subscription {
	timeStr = NormalizeTime(timeStr)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.Time == timeStr {
			out = append(out, sub)
		}
	}
	return out
}

// CancelSubscriptions removes all of a conversation's subscriptions and
// returns how many were removed.
func (s *Store) CancelSubscriptions(conversation string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.subs[:0]
	removed := 0
	for _, sub := range s.subs {
		if sub.Conversation == conversation {
			removed++
		} else {
			kept = append(kept, sub)
		}
	}
	s.subs = kept

	if removed > 0 && s.persist != nil {
		if err := s.persist.DeleteSubscriptions(conversation); err != nil {
			return removed, fmt.Errorf("persist cancel: %w", err)
		}
	}
	return removed, nil
}

// Times returns the distinct reminder times currently stored, sorted.
func (s *Store) Times() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		seen[e.Time] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
