package storage

import (
	"fmt"
	"time"

	"github.com/AceNexus/LineBot/internal/reminder"
)

// SaveEntry inserts or replaces a reminder row.
func (db *DB) SaveEntry(e reminder.Entry) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO reminders (id, conversation, kind, name, time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Conversation, string(e.Kind), e.Name, e.Time, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save reminder %d: %w", e.ID, err)
	}
	return nil
}

// DeleteEntry removes a reminder row by ID.
func (db *DB) DeleteEntry(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, err)
	}
	return nil
}

// SaveSubscription inserts or replaces a subscription row.
func (db *DB) SaveSubscription(s reminder.Subscription) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO subscriptions (conversation, difficulty_id, difficulty_name, count, time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Conversation, s.DifficultyID, s.DifficultyName, s.Count, s.Time, s.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscriptions removes all subscription rows for a conversation.
func (db *DB) DeleteSubscriptions(conversation string) error {
	if _, err := db.conn.Exec(`DELETE FROM subscriptions WHERE conversation = ?`, conversation); err != nil {
		return fmt.Errorf("failed to delete subscriptions: %w", err)
	}
	return nil
}

// LoadEntries reads all persisted reminders for seeding the store at startup.
func (db *DB) LoadEntries() ([]reminder.Entry, error) {
	rows, err := db.conn.Query(`SELECT id, conversation, kind, name, time, created_at FROM reminders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []reminder.Entry
	for rows.Next() {
		var e reminder.Entry
		var kind string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Conversation, &kind, &e.Name, &e.Time, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		e.Kind = reminder.Kind(kind)
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LoadSubscriptions reads all persisted subscriptions for seeding the store.
func (db *DB) LoadSubscriptions() ([]reminder.Subscription, error) {
	rows, err := db.conn.Query(`SELECT conversation, difficulty_id, difficulty_name, count, time, created_at FROM subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []reminder.Subscription
	for rows.Next() {
		var s reminder.Subscription
		var createdAt int64
		if err := rows.Scan(&s.Conversation, &s.DifficultyID, &s.DifficultyName, &s.Count, &s.Time, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
