// Package session tracks per-conversation dialog state: which menu sub-flow
// a conversation is in, the partial input collected so far, and whether the
// AI chat fallback is enabled. State is held in memory only; a restart drops
// every conversation back to Normal.
package session

import "sync"

// State identifies where a conversation is in the menu dialog.
// The zero value is Normal, so conversations the store has never seen are
// automatically in the default state.
type State int

const (
	// StateNormal is the default state: top-level commands and chat.
	StateNormal State = iota

	// StateAwaitingNewsTopicCount waits for a "topic/count" line after the
	// news command.
	StateAwaitingNewsTopicCount

	// StateAwaitingWordCount waits for a "difficulty/count" line after the
	// English vocabulary command.
	StateAwaitingWordCount

	// StateAddingMedicationName and StateAddingMedicationTime are the two
	// steps of the medication-reminder add flow.
	StateAddingMedicationName
	StateAddingMedicationTime

	// StateAddingReminderName and StateAddingReminderTime are the two steps
	// of the general-reminder add flow.
	StateAddingReminderName
	StateAddingReminderTime
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateAwaitingNewsTopicCount:
		return "awaiting_news_topic_count"
	case StateAwaitingWordCount:
		return "awaiting_word_count"
	case StateAddingMedicationName:
		return "adding_medication_name"
	case StateAddingMedicationTime:
		return "adding_medication_time"
	case StateAddingReminderName:
		return "adding_reminder_name"
	case StateAddingReminderTime:
		return "adding_reminder_time"
	default:
		return "unknown"
	}
}

// Store holds per-conversation dialog state. All methods are safe for
// concurrent use; Lock/Unlock additionally serialize whole-event processing
// for one conversation.
type Store struct {
	mu      sync.RWMutex
	states  map[string]State
	pending map[string]string   // partial input for two-step add flows
	aiOff   map[string]struct{} // AI fallback is on unless present here

	locks sync.Map // conversation ID -> *sync.Mutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		states:  make(map[string]State),
		pending: make(map[string]string),
		aiOff:   make(map[string]struct{}),
	}
}

// State returns the current state for a conversation.
// Conversations without an entry are in StateNormal.
func (s *Store) State(conversation string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[conversation]
}

// SetState moves a conversation to the given state. Setting StateNormal
// removes the entry and any pending partial input.
func (s *Store) SetState(conversation string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == StateNormal {
		delete(s.states, conversation)
		delete(s.pending, conversation)
		return
	}
	s.states[conversation] = state
}

// Reset returns a conversation to StateNormal and drops partial input.
func (s *Store) Reset(conversation string) {
	s.SetState(conversation, StateNormal)
}

// PendingName returns the partial input collected by a two-step add flow.
func (s *Store) PendingName(conversation string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.pending[conversation]
	return name, ok
}

// SetPendingName stores the partial input for a two-step add flow.
func (s *Store) SetPendingName(conversation, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[conversation] = name
}

// AIEnabled reports whether the AI chat fallback is on for a conversation.
// It defaults to on.
func (s *Store) AIEnabled(conversation string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, off := s.aiOff[conversation]
	return !off
}

// SetAIEnabled toggles the AI chat fallback for a conversation.
func (s *Store) SetAIEnabled(conversation string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		delete(s.aiOff, conversation)
	} else {
		s.aiOff[conversation] = struct{}{}
	}
}

// Lock acquires the per-conversation mutex. Event processing holds it for
// the duration of one event so state reads and writes for a conversation
// never interleave.
func (s *Store) Lock(conversation string) {
	s.convLock(conversation).Lock()
}

// Unlock releases the per-conversation mutex.
func (s *Store) Unlock(conversation string) {
	s.convLock(conversation).Unlock()
}

func (s *Store) convLock(conversation string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(conversation, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
