// Package journal persists an audit trail of routed broker messages in
// SQLite. One row per handled message records where it came from and
// when, sized but not bodied: payloads stay on the broker, the journal
// keeps their length only.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/database"
)

// Entry is one routed message to journal.
type Entry struct {
	Topic      string
	Category   string
	ChannelID  string
	Action     string
	Payload    []byte
	ReceivedAt time.Time
}

// Store writes journal entries into the message_journal table.
type Store struct {
	db *database.DB
}

// NewStore wraps an open database. The message_journal table comes
// from the embedded migrations; callers run Migrate before this.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record inserts one journal row. The id is generated here so callers
// never supply one.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_journal (id, topic, category, channel_id, action, payload_bytes, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		entry.Topic,
		entry.Category,
		entry.ChannelID,
		entry.Action,
		len(entry.Payload),
		entry.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Record is one journal row read back out.
type Record struct {
	ID           string
	Topic        string
	Category     string
	ChannelID    string
	Action       string
	PayloadBytes int
	ReceivedAt   time.Time
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, category, channel_id, action, payload_bytes, received_at
		FROM message_journal
		ORDER BY received_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var receivedAt string
		if err := rows.Scan(&r.ID, &r.Topic, &r.Category, &r.ChannelID, &r.Action, &r.PayloadBytes, &receivedAt); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		r.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("journal timestamp %q: %w", receivedAt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByCategory returns how many entries exist per category.
func (s *Store) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM message_journal
		GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("journal count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("journal count scan: %w", err)
		}
		counts[category] = count
	}
	return counts, rows.Err()
}
