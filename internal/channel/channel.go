// Package channel wraps the out-of-scope channel-cryptography library
// (Author/Subscriber roles over an append-only ledger channel) behind a
// small Go interface, and provides the Manager that sequences operations
// against it and persists its opaque state after every mutation.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
)

// LedgerChannel is the seam between this repo and the channel-cryptography
// library: every operation a channel manager performs against one channel
// instance. A real implementation wraps the library's client; Manager never
// assumes anything about the cryptography beyond this interface.
type LedgerChannel interface {
	// Announce creates a new channel and returns its announcement link. May
	// only be called once per channel instance.
	Announce(ctx context.Context) (announcementLink string, err error)
	// AddSubscribers admits subscriberPublicKeys and returns the keyload
	// message link. May only be called after Announce.
	AddSubscribers(ctx context.Context, subscriberPublicKeys []string) (keyloadLink string, err error)
	// Subscribe processes a subscription request against announcementLink
	// and returns this subscriber's own link and public key.
	Subscribe(ctx context.Context, announcementLink string) (subscriptionLink, publicKey string, err error)
	// SendSignedPacket publishes payload anchored to prevLink and returns
	// the new message's link. May only be called once the channel has been
	// announced (Author) or admitted (Subscriber) - i.e. after a
	// prevLink exists.
	SendSignedPacket(ctx context.Context, prevLink string, payload []byte) (newLink string, err error)
	// Export serializes the channel's current cryptographic state to an
	// opaque blob for persistence.
	Export() ([]byte, error)
	// Messages walks the channel's message history to completion, oldest
	// first. Used only by the indexer's sync loop, never by the
	// dispatcher's hot path.
	Messages(ctx context.Context) ([]ChannelMessage, error)
}

// ChannelMessage is one message observed while walking a channel's history.
type ChannelMessage struct {
	Link string
	Body []byte
}

// Factory constructs a LedgerChannel, either fresh or restored from a
// previously-exported state blob.
type Factory interface {
	New(ctx context.Context) (LedgerChannel, error)
	Import(ctx context.Context, stateBlob []byte) (LedgerChannel, error)
}

// ChannelState is the JSON-marshaled form of everything a Manager persists:
// the channel-cryptography library's own opaque export plus the link-chain
// bookkeeping (previous-message, announcement, keyload links) and
// initialization counter Manager needs to resume a channel after a process
// restart without losing track of where SendSignedPacket must anchor its
// next write. CompressedModeKnown is sensor-side only - the Bridge's own
// User rows never set it - tracking whether this sensor has already
// switched into compressed mode, so that flag survives a device reboot too.
type ChannelState struct {
	CryptoBlob          []byte `json:"crypto_blob"`
	PrevMsgLink         string `json:"prev_msg_link"`
	AnnouncementLink    string `json:"announcement_link"`
	KeyloadLink         string `json:"keyload_link"`
	InitCount           uint32 `json:"init_count"`
	CompressedModeKnown bool   `json:"compressed_mode_known,omitempty"`
}

// persistFunc is the weak handle a Manager uses to durably record its
// channel's state after every mutation - supplied by
// storage.UserStore.SerializeCallback, so Manager never imports storage
// directly. blob is the JSON encoding of a ChannelState; storage treats it
// as opaque.
type persistFunc func(blob []byte, initCount uint32) error

// Manager sequences Announce/AddSubscribers/Subscribe/SendSignedPacket
// calls against one channel instance, enforcing the same call-order
// requirements the underlying library enforces, and persists state after
// every mutation via its persistFunc.
//
// A Manager is not safe for concurrent use: channel-state writes for a
// given channel must be serialized through a single Manager instance, per
// spec's invariant that the channel-state blob is never written
// concurrently.
type Manager struct {
	factory Factory
	persist persistFunc

	channel             LedgerChannel
	announced           bool
	announcementLink    string
	keyloadLink         string
	prevLink            string
	initCount           uint32
	compressedModeKnown bool
}

// New constructs a fresh, not-yet-announced Manager, starting its first
// session at initialization counter 1.
func New(factory Factory, persist persistFunc) *Manager {
	return &Manager{factory: factory, persist: persist, initCount: 1}
}

// Restore rebuilds a Manager from a previously-persisted state blob (as
// produced by flush), advancing the initialization counter by exactly one
// to mark the start of a new session - the counter increments once per
// process lifetime a channel's state is loaded, never once per mutation
// within that lifetime, so it can serve its purpose of detecting a stolen
// or concurrently-reused state blob.
func Restore(ctx context.Context, factory Factory, persist persistFunc, stateBlob []byte) (*Manager, error) {
	var state ChannelState
	if err := json.Unmarshal(stateBlob, &state); err != nil {
		return nil, fmt.Errorf("channel: parse persisted state: %w", err)
	}
	ch, err := factory.Import(ctx, state.CryptoBlob)
	if err != nil {
		return nil, fmt.Errorf("channel: import state: %w", err)
	}
	return &Manager{
		factory:             factory,
		persist:             persist,
		channel:             ch,
		announced:           true,
		announcementLink:    state.AnnouncementLink,
		keyloadLink:         state.KeyloadLink,
		prevLink:            state.PrevMsgLink,
		initCount:           state.InitCount + 1,
		compressedModeKnown: state.CompressedModeKnown,
	}, nil
}

// Announce creates the channel. It is an error to call Announce more than
// once on the same Manager.
func (m *Manager) Announce(ctx context.Context) (string, error) {
	if m.announced {
		return "", fmt.Errorf("channel: already announced")
	}
	ch, err := m.factory.New(ctx)
	if err != nil {
		return "", fmt.Errorf("channel: construct: %w", err)
	}
	link, err := ch.Announce(ctx)
	if err != nil {
		return "", fmt.Errorf("channel: announce: %w", err)
	}
	m.channel = ch
	m.announced = true
	m.announcementLink = link
	m.prevLink = link
	return link, m.flush(ctx)
}

// AddSubscribers admits the given subscriber public keys via a keyload
// message. It is an error to call this before Announce.
func (m *Manager) AddSubscribers(ctx context.Context, subscriberPublicKeys []string) (string, error) {
	if !m.announced {
		return "", fmt.Errorf("channel: cannot add subscribers before the channel has been announced")
	}
	link, err := m.channel.AddSubscribers(ctx, subscriberPublicKeys)
	if err != nil {
		return "", fmt.Errorf("channel: add subscribers: %w", err)
	}
	m.keyloadLink = link
	m.prevLink = link
	return link, m.flush(ctx)
}

// Subscribe processes a subscription request against announcementLink.
func (m *Manager) Subscribe(ctx context.Context, announcementLink string) (subscriptionLink, publicKey string, err error) {
	if m.channel == nil {
		ch, cerr := m.factory.New(ctx)
		if cerr != nil {
			return "", "", fmt.Errorf("channel: construct: %w", cerr)
		}
		m.channel = ch
	}
	subscriptionLink, publicKey, err = m.channel.Subscribe(ctx, announcementLink)
	if err != nil {
		return "", "", fmt.Errorf("channel: subscribe: %w", err)
	}
	m.announced = true
	m.announcementLink = announcementLink
	m.prevLink = subscriptionLink
	return subscriptionLink, publicKey, m.flush(ctx)
}

// SendSignedPacket publishes payload. It is an error to call this before
// the channel has a prevLink (i.e. before Announce/AddSubscribers for an
// Author, or before Subscribe for a Subscriber).
func (m *Manager) SendSignedPacket(ctx context.Context, payload []byte) (string, error) {
	if !m.announced || m.prevLink == "" {
		return "", fmt.Errorf("channel: cannot send a signed packet before the channel has been announced or subscribed")
	}
	link, err := m.channel.SendSignedPacket(ctx, m.prevLink, payload)
	if err != nil {
		return "", fmt.Errorf("channel: send signed packet: %w", err)
	}
	m.prevLink = link
	return link, m.flush(ctx)
}

// PrevLink reports the most recent message link this manager has observed.
func (m *Manager) PrevLink() string { return m.prevLink }

// Walk returns every message in this channel's history, oldest first. Used
// only by the indexer's sync loop.
func (m *Manager) Walk(ctx context.Context) ([]ChannelMessage, error) {
	if m.channel == nil {
		return nil, fmt.Errorf("channel: cannot walk before the channel has been announced or subscribed")
	}
	return m.channel.Messages(ctx)
}

// InitCount reports the current value of the monotonic initialization
// counter baked into the persisted state.
func (m *Manager) InitCount() uint32 { return m.initCount }

// CompressedModeKnown reports whether the sensor-side caller of this
// Manager has already switched into compressed mode, as last persisted.
func (m *Manager) CompressedModeKnown() bool { return m.compressedModeKnown }

// SetCompressedModeKnown records the sensor's compressed-mode flag and
// flushes it immediately, since flipping the flag is not itself a channel
// mutation that would otherwise trigger a flush on its own.
func (m *Manager) SetCompressedModeKnown(ctx context.Context, known bool) error {
	m.compressedModeKnown = known
	return m.flush(ctx)
}

// Flush forces a state export/persist cycle outside of a mutating call.
// Every mutating method already flushes before it returns, so calling Flush
// right after one persists the same state again.
func (m *Manager) Flush(ctx context.Context) error { return m.flush(ctx) }

// flush exports the channel's current state and persists it. It does not
// advance the initialization counter - that only happens once, in Restore,
// at the start of a new session; every flush within one session persists
// the same initCount, matching spec's "incremented on every fresh session"
// wording rather than "every mutation".
func (m *Manager) flush(_ context.Context) error {
	cryptoBlob, err := m.channel.Export()
	if err != nil {
		return fmt.Errorf("channel: export state: %w", err)
	}
	state := ChannelState{
		CryptoBlob:          cryptoBlob,
		PrevMsgLink:         m.prevLink,
		AnnouncementLink:    m.announcementLink,
		KeyloadLink:         m.keyloadLink,
		InitCount:           m.initCount,
		CompressedModeKnown: m.compressedModeKnown,
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("channel: marshal state: %w", err)
	}
	if err := m.persist(blob, m.initCount); err != nil {
		return fmt.Errorf("channel: persist state: %w", err)
	}
	return nil
}
