// Package storage persists the Bridge's durable state in an embedded
// SQLite database: one file per process, WAL mode, a small per-entity DAO
// on top.
package storage

import "time"

// LoraWanNode binds a sensor's DevEUI to the one channel it owns for its
// entire lifetime. Written exactly once, on first successful subscription;
// never updated.
type LoraWanNode struct {
	DevEUI    string    `db:"dev_eui"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
}

// User holds one channel's opaque client-state blob plus the seed-derivation
// phrase used to recreate the wallet-derived identity. Rewritten on every
// channel mutation (subscribe, keyload, send, fetch); the blob's
// initialization counter is monotonically non-decreasing.
type User struct {
	ChannelID    string    `db:"channel_id"`
	StateBlob    []byte    `db:"state_blob"`
	SeedPhrase   string    `db:"seed_phrase"`
	InitCount    uint32    `db:"init_count"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// BufferedMessage is a write the ledger rejected with a validation error,
// held for the retry loop. FIFO per channel; removed only on successful
// commit.
type BufferedMessage struct {
	ID         int64     `db:"id"`
	ChannelID  string    `db:"channel_id"`
	WireBytes  []byte    `db:"wire_bytes"`
	ArrivedAt  time.Time `db:"arrived_at"`
	RetryCount int       `db:"retry_count"`
}

// PendingRequest lets a request be resumed after a transient ledger-side
// failure without requiring the sensor to resend.
type PendingRequest struct {
	DevEUI       string    `db:"dev_eui"`
	RequestBytes []byte    `db:"request_bytes"`
	ReceivedAt   time.Time `db:"received_at"`
}

// CachedMessage is one (MessageId, wire bytes) pair populated by the sync
// loop and read by the explorer. Pure cache - never the source of truth.
type CachedMessage struct {
	MessageID string    `db:"message_id"`
	ChannelID string    `db:"channel_id"`
	WireBytes []byte    `db:"wire_bytes"`
	IndexedAt time.Time `db:"indexed_at"`
}
