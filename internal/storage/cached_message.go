package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CachedMessageStore is the indexer's (MessageId, wire bytes) cache, read
// by the explorer. Pure cache: the channel library remains the source of
// truth.
type CachedMessageStore struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewCachedMessageStore returns a store bound to db.
func NewCachedMessageStore(db *DB) *CachedMessageStore {
	return &CachedMessageStore{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Write upserts one cached message.
func (s *CachedMessageStore) Write(m CachedMessage) error {
	if m.IndexedAt.IsZero() {
		m.IndexedAt = time.Now()
	}
	_, err := s.db.conn.Exec(`
		INSERT INTO cached_messages (message_id, channel_id, wire_bytes, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			wire_bytes = excluded.wire_bytes,
			indexed_at = excluded.indexed_at
	`, m.MessageID, m.ChannelID, m.WireBytes, m.IndexedAt)
	if err != nil {
		return fmt.Errorf("storage: write cached_message %q: %w", m.MessageID, err)
	}
	return nil
}

// Get returns the cached message for messageID, or (nil, nil) if none exists.
func (s *CachedMessageStore) Get(messageID string) (*CachedMessage, error) {
	row := s.qb.Select("message_id", "channel_id", "wire_bytes", "indexed_at").
		From("cached_messages").
		Where(sq.Eq{"message_id": messageID}).
		RunWith(s.db.conn).
		QueryRow()

	var m CachedMessage
	if err := row.Scan(&m.MessageID, &m.ChannelID, &m.WireBytes, &m.IndexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get cached_message %q: %w", messageID, err)
	}
	return &m, nil
}

// ListForChannel returns every cached message for channelID, oldest first.
func (s *CachedMessageStore) ListForChannel(channelID string) ([]CachedMessage, error) {
	rows, err := s.qb.Select("message_id", "channel_id", "wire_bytes", "indexed_at").
		From("cached_messages").
		Where(sq.Eq{"channel_id": channelID}).
		OrderBy("indexed_at ASC").
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: list cached_messages for %q: %w", channelID, err)
	}
	defer rows.Close()

	var out []CachedMessage
	for rows.Next() {
		var m CachedMessage
		if err := rows.Scan(&m.MessageID, &m.ChannelID, &m.WireBytes, &m.IndexedAt); err != nil {
			return nil, fmt.Errorf("storage: scan cached_message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DistinctChannels returns every channel id that has at least one cached
// message.
func (s *CachedMessageStore) DistinctChannels() ([]string, error) {
	rows, err := s.db.conn.Query(`SELECT DISTINCT channel_id FROM cached_messages ORDER BY channel_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: distinct channels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
