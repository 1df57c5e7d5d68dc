package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// BufferedMessageStore is the per-channel DAO for messages the ledger
// rejected with a validation error while the Bridge is configured to
// buffer rather than fail. FIFO per channel; a row is removed only once
// the buffered-message loop successfully re-sends it.
type BufferedMessageStore struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewBufferedMessageStore returns a store bound to db.
func NewBufferedMessageStore(db *DB) *BufferedMessageStore {
	return &BufferedMessageStore{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Write inserts a new buffered message, stamping ArrivedAt if unset.
func (s *BufferedMessageStore) Write(m BufferedMessage) (int64, error) {
	if m.ArrivedAt.IsZero() {
		m.ArrivedAt = time.Now()
	}
	result, err := s.qb.Insert("buffered_messages").
		Columns("channel_id", "wire_bytes", "arrived_at", "retry_count").
		Values(m.ChannelID, m.WireBytes, m.ArrivedAt, m.RetryCount).
		RunWith(s.db.conn).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("storage: write buffered_message for %q: %w", m.ChannelID, err)
	}
	return result.LastInsertId()
}

// FindAllByArrival returns every buffered message across all channels, in
// arrival order - the order the retry loop must preserve.
func (s *BufferedMessageStore) FindAllByArrival() ([]BufferedMessage, error) {
	rows, err := s.qb.Select("id", "channel_id", "wire_bytes", "arrived_at", "retry_count").
		From("buffered_messages").
		OrderBy("arrived_at ASC").
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: find_all buffered_messages: %w", err)
	}
	defer rows.Close()
	return scanBufferedMessages(rows)
}

// SearchStartsWith returns buffered messages for channels whose id begins
// with prefix, in arrival order.
func (s *BufferedMessageStore) SearchStartsWith(prefix string) ([]BufferedMessage, error) {
	rows, err := s.qb.Select("id", "channel_id", "wire_bytes", "arrived_at", "retry_count").
		From("buffered_messages").
		Where(sq.Like{"channel_id": prefix + "%"}).
		OrderBy("arrived_at ASC").
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: search buffered_messages prefix %q: %w", prefix, err)
	}
	defer rows.Close()
	return scanBufferedMessages(rows)
}

// Delete removes a buffered message by id, on successful re-send.
func (s *BufferedMessageStore) Delete(id int64) error {
	_, err := s.qb.Delete("buffered_messages").Where(sq.Eq{"id": id}).RunWith(s.db.conn).Exec()
	if err != nil {
		return fmt.Errorf("storage: delete buffered_message %d: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps the retry count after a failed re-send attempt.
func (s *BufferedMessageStore) IncrementRetry(id int64) error {
	_, err := s.db.conn.Exec(`UPDATE buffered_messages SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: increment retry for buffered_message %d: %w", id, err)
	}
	return nil
}

func scanBufferedMessages(rows *sql.Rows) ([]BufferedMessage, error) {
	var out []BufferedMessage
	for rows.Next() {
		var m BufferedMessage
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.WireBytes, &m.ArrivedAt, &m.RetryCount); err != nil {
			return nil, fmt.Errorf("storage: scan buffered_message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
