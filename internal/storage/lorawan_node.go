package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// LoraWanNodeStore is the per-device DAO for LoraWanNode rows: get, write
// (exactly once per spec's invariant, enforced by the caller - create_node
// checks existence first), prefix search, and paginated listing in stable
// primary-key order.
type LoraWanNodeStore struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewLoraWanNodeStore returns a store bound to db.
func NewLoraWanNodeStore(db *DB) *LoraWanNodeStore {
	return &LoraWanNodeStore{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Get returns the node for devEUI, or (nil, nil) if none exists.
func (s *LoraWanNodeStore) Get(devEUI string) (*LoraWanNode, error) {
	row := s.qb.Select("dev_eui", "channel_id", "created_at").
		From("lorawan_nodes").
		Where(sq.Eq{"dev_eui": devEUI}).
		RunWith(s.db.conn).
		QueryRow()

	var n LoraWanNode
	if err := row.Scan(&n.DevEUI, &n.ChannelID, &n.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get lorawan_node %q: %w", devEUI, err)
	}
	return &n, nil
}

// ChannelIDFor implements compressed.ChannelLookup.
func (s *LoraWanNodeStore) ChannelIDFor(devEUI string) (string, bool) {
	n, err := s.Get(devEUI)
	if err != nil || n == nil {
		return "", false
	}
	return n.ChannelID, true
}

// Write inserts a new LoraWanNode. Per spec, this is written exactly once
// per sensor lifetime and never updated - callers (the finalize stage and
// the admin create handler) must check Get first and skip the write if the node already exists.
func (s *LoraWanNodeStore) Write(n LoraWanNode) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.qb.Insert("lorawan_nodes").
		Columns("dev_eui", "channel_id", "created_at").
		Values(n.DevEUI, n.ChannelID, n.CreatedAt).
		RunWith(s.db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("storage: write lorawan_node %q: %w", n.DevEUI, err)
	}
	return nil
}

// Delete removes the node for devEUI, if any.
func (s *LoraWanNodeStore) Delete(devEUI string) error {
	_, err := s.qb.Delete("lorawan_nodes").Where(sq.Eq{"dev_eui": devEUI}).RunWith(s.db.conn).Exec()
	if err != nil {
		return fmt.Errorf("storage: delete lorawan_node %q: %w", devEUI, err)
	}
	return nil
}

// SearchStartsWith returns nodes whose DevEUI begins with prefix, in
// ascending DevEUI order.
func (s *LoraWanNodeStore) SearchStartsWith(prefix string) ([]LoraWanNode, error) {
	rows, err := s.qb.Select("dev_eui", "channel_id", "created_at").
		From("lorawan_nodes").
		Where(sq.Like{"dev_eui": prefix + "%"}).
		OrderBy("dev_eui ASC").
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: search lorawan_nodes prefix %q: %w", prefix, err)
	}
	defer rows.Close()
	return scanLoraWanNodes(rows)
}

// FindAll returns a page of nodes in stable ascending DevEUI order.
func (s *LoraWanNodeStore) FindAll(limit, offset int) ([]LoraWanNode, error) {
	rows, err := s.qb.Select("dev_eui", "channel_id", "created_at").
		From("lorawan_nodes").
		OrderBy("dev_eui ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: find_all lorawan_nodes: %w", err)
	}
	defer rows.Close()
	return scanLoraWanNodes(rows)
}

func scanLoraWanNodes(rows *sql.Rows) ([]LoraWanNode, error) {
	var out []LoraWanNode
	for rows.Next() {
		var n LoraWanNode
		if err := rows.Scan(&n.DevEUI, &n.ChannelID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan lorawan_node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
