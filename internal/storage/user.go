package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// UserStore is the per-channel DAO for the opaque channel-state blob. The
// blob is rewritten on every channel mutation, so the hot path is an
// UPSERT keyed on channel_id rather than an insert-then-update pair.
type UserStore struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewUserStore returns a store bound to db.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Get returns the channel state for channelID, or (nil, nil) if none exists.
func (s *UserStore) Get(channelID string) (*User, error) {
	row := s.qb.Select("channel_id", "state_blob", "seed_phrase", "init_count", "updated_at").
		From("users").
		Where(sq.Eq{"channel_id": channelID}).
		RunWith(s.db.conn).
		QueryRow()

	var u User
	if err := row.Scan(&u.ChannelID, &u.StateBlob, &u.SeedPhrase, &u.InitCount, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get user %q: %w", channelID, err)
	}
	return &u, nil
}

// Write upserts the channel state for u.ChannelID.
func (s *UserStore) Write(u User) error {
	u.UpdatedAt = time.Now()
	_, err := s.db.conn.Exec(`
		INSERT INTO users (channel_id, state_blob, seed_phrase, init_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			state_blob = excluded.state_blob,
			seed_phrase = excluded.seed_phrase,
			init_count = excluded.init_count,
			updated_at = excluded.updated_at
	`, u.ChannelID, u.StateBlob, u.SeedPhrase, u.InitCount, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: write user %q: %w", u.ChannelID, err)
	}
	return nil
}

// Delete removes the channel state for channelID.
func (s *UserStore) Delete(channelID string) error {
	_, err := s.qb.Delete("users").Where(sq.Eq{"channel_id": channelID}).RunWith(s.db.conn).Exec()
	if err != nil {
		return fmt.Errorf("storage: delete user %q: %w", channelID, err)
	}
	return nil
}

// ListChannelIDs returns every channel id with persisted state, ascending.
// Used by the indexer's sync loop to discover what to walk.
func (s *UserStore) ListChannelIDs() ([]string, error) {
	rows, err := s.db.conn.Query(`SELECT channel_id FROM users ORDER BY channel_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list channel ids: %w", err)
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

// SerializeCallback returns a closure the channel manager calls after every
// mutation, capturing the channel's current state without the channel
// package needing to import storage (or hold a live DB handle) directly -
// the DAO hands back a write-only function, a weak handle into storage
// rather than a strong reference to it.
func (s *UserStore) SerializeCallback(channelID, seedPhrase string) func(blob []byte, initCount uint32) error {
	return func(blob []byte, initCount uint32) error {
		return s.Write(User{
			ChannelID:  channelID,
			StateBlob:  blob,
			SeedPhrase: seedPhrase,
			InitCount:  initCount,
		})
	}
}
