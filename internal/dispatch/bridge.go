// Package dispatch implements the Bridge's central request dispatcher: the
// URI-prefix routing table, the per-request scope bag, the finalize stage,
// and the error-taxonomy-to-status mapping described by the system's
// external interface.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/compressed"
	"github.com/iotaledger/meter-bridge/internal/health"
	"github.com/iotaledger/meter-bridge/internal/queue"
	"github.com/iotaledger/meter-bridge/internal/storage"
	"github.com/iotaledger/meter-bridge/internal/transport"
)

// Bridge composes every collaborator the dispatcher needs and exposes the
// single http.Handler the listener is built around.
type Bridge struct {
	Nodes    *storage.LoraWanNodeStore
	Users    *storage.UserStore
	Pending  *storage.PendingRequestStore
	Buffered *storage.BufferedMessageStore

	CommandQueues *queue.Map // server -> sensor
	ConfirmQueues *queue.Map // sensor -> server

	Transport *transport.Pool

	// Health is the pre-flight probe consulted before any ledger write; nil
	// skips the probe (used by tests exercising the dispatcher in isolation).
	Health *health.Checker

	channelFactory channel.Factory
	strategy       ErrorHandlingStrategy
	finalize       *Finalize
	log            *slog.Logger

	mu       sync.Mutex
	managers map[string]*channel.Manager // keyed by ChannelId; the single-channel-manager-instance invariant
}

// Config bundles Bridge's constructor dependencies.
type Config struct {
	Nodes          *storage.LoraWanNodeStore
	Users          *storage.UserStore
	Pending        *storage.PendingRequestStore
	Buffered       *storage.BufferedMessageStore
	ChannelFactory channel.Factory
	Transport      *transport.Pool
	Health         *health.Checker
	Strategy       ErrorHandlingStrategy
	Log            *slog.Logger
}

// New builds a Bridge from cfg.
func New(cfg Config) *Bridge {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		Nodes:          cfg.Nodes,
		Users:          cfg.Users,
		Pending:        cfg.Pending,
		Buffered:       cfg.Buffered,
		CommandQueues:  queue.NewMap(),
		ConfirmQueues:  queue.NewMap(),
		Transport:      cfg.Transport,
		Health:         cfg.Health,
		channelFactory: cfg.ChannelFactory,
		strategy:       cfg.Strategy,
		finalize:       NewFinalize(cfg.Nodes, cfg.Buffered, log),
		log:            log,
		managers:       make(map[string]*channel.Manager),
	}
}

// managerFor returns the single Manager instance serializing writes for
// channelID, constructing and restoring it from persisted state on first
// use. Bridge.mu is held only for the map lookup/insert, not across the
// (potentially blocking) restore - callers that mutate a Manager must not
// do so concurrently with another caller holding the same ChannelId, which
// the dispatcher's per-request, per-DevEUI-serialized model guarantees in
// practice.
func (b *Bridge) managerFor(channelID string) (*channel.Manager, error) {
	b.mu.Lock()
	if m, ok := b.managers[channelID]; ok {
		b.mu.Unlock()
		return m, nil
	}
	b.mu.Unlock()

	persist := func(blob []byte, initCount uint32) error {
		u, err := b.Users.Get(channelID)
		seed := ""
		if err == nil && u != nil {
			seed = u.SeedPhrase
		}
		return b.Users.Write(storage.User{ChannelID: channelID, StateBlob: blob, SeedPhrase: seed, InitCount: initCount})
	}

	var m *channel.Manager
	existing, err := b.Users.Get(channelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m, err = channel.Restore(context.Background(), b.channelFactory, persist, existing.StateBlob)
		if err != nil {
			return nil, err
		}
	} else {
		m = channel.New(b.channelFactory, persist)
	}

	b.mu.Lock()
	b.managers[channelID] = m
	b.mu.Unlock()
	return m, nil
}

// ManagerFor returns the single channel Manager instance for channelID,
// constructing or restoring it on first use. Exported so internal/buffered's
// retry loop can re-send through the same serialized-per-channel path every
// HTTP handler uses.
func (b *Bridge) ManagerFor(channelID string) (*channel.Manager, error) {
	return b.managerFor(channelID)
}

// ChannelIDFor implements compressed.ChannelLookup by delegating to Nodes.
func (b *Bridge) ChannelIDFor(devEUI string) (string, bool) {
	return b.Nodes.ChannelIDFor(devEUI)
}

var _ compressed.ChannelLookup = (*Bridge)(nil)
