package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PendingRequestStore is the per-device DAO that lets a request be resumed
// after a transient ledger-side failure without requiring the sensor to
// resend it.
type PendingRequestStore struct {
	db *DB
	qb sq.StatementBuilderType
}

// NewPendingRequestStore returns a store bound to db.
func NewPendingRequestStore(db *DB) *PendingRequestStore {
	return &PendingRequestStore{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Get returns the pending request for devEUI, or (nil, nil) if none exists.
func (s *PendingRequestStore) Get(devEUI string) (*PendingRequest, error) {
	row := s.qb.Select("dev_eui", "request_bytes", "received_at").
		From("pending_requests").
		Where(sq.Eq{"dev_eui": devEUI}).
		RunWith(s.db.conn).
		QueryRow()

	var p PendingRequest
	if err := row.Scan(&p.DevEUI, &p.RequestBytes, &p.ReceivedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get pending_request %q: %w", devEUI, err)
	}
	return &p, nil
}

// Write upserts the pending request for p.DevEUI.
func (s *PendingRequestStore) Write(p PendingRequest) error {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}
	_, err := s.db.conn.Exec(`
		INSERT INTO pending_requests (dev_eui, request_bytes, received_at)
		VALUES (?, ?, ?)
		ON CONFLICT(dev_eui) DO UPDATE SET
			request_bytes = excluded.request_bytes,
			received_at = excluded.received_at
	`, p.DevEUI, p.RequestBytes, p.ReceivedAt)
	if err != nil {
		return fmt.Errorf("storage: write pending_request %q: %w", p.DevEUI, err)
	}
	return nil
}

// Delete removes the pending request for devEUI, once resumed or
// abandoned.
func (s *PendingRequestStore) Delete(devEUI string) error {
	_, err := s.qb.Delete("pending_requests").Where(sq.Eq{"dev_eui": devEUI}).RunWith(s.db.conn).Exec()
	if err != nil {
		return fmt.Errorf("storage: delete pending_request %q: %w", devEUI, err)
	}
	return nil
}

// FindAll returns a page of pending requests in stable ascending DevEUI
// order.
func (s *PendingRequestStore) FindAll(limit, offset int) ([]PendingRequest, error) {
	rows, err := s.qb.Select("dev_eui", "request_bytes", "received_at").
		From("pending_requests").
		OrderBy("dev_eui ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		RunWith(s.db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("storage: find_all pending_requests: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var p PendingRequest
		if err := rows.Scan(&p.DevEUI, &p.RequestBytes, &p.ReceivedAt); err != nil {
			return nil, fmt.Errorf("storage: scan pending_request: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
