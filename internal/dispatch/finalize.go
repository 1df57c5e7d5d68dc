package dispatch

import (
	"log/slog"
	"net/http"

	"github.com/iotaledger/meter-bridge/internal/compressed"
	"github.com/iotaledger/meter-bridge/internal/storage"
)

// Finalize examines scope after the primary handler has produced status,
// and performs the deferred durable actions: creating a LoraWanNode row
// (the only other writer is the admin POST /lorawan-node handler), enqueueing a
// BufferedMessage, and rewriting the response status for compressed-state
// signalling. It never converts an error status into success - it only
// augments.
type Finalize struct {
	nodes    *storage.LoraWanNodeStore
	buffered *storage.BufferedMessageStore
	log      *slog.Logger
}

// NewFinalize builds a Finalize bound to the given stores.
func NewFinalize(nodes *storage.LoraWanNodeStore, buffered *storage.BufferedMessageStore, log *slog.Logger) *Finalize {
	if log == nil {
		log = slog.Default()
	}
	return &Finalize{nodes: nodes, buffered: buffered, log: log}
}

// Process runs every finalize step in turn, returning the (possibly
// rewritten) status code.
func (f *Finalize) Process(scope *Scope, status int) int {
	status = f.handleAddNewLorawanNode(scope, status)
	f.handleAddBufferedMessage(scope)
	return status
}

func (f *Finalize) handleAddNewLorawanNode(scope *Scope, status int) int {
	wantsCreate, ok := scope.GetBool(ScopeAddNewLorawanNodeToDB)
	if !ok || !wantsCreate || status != http.StatusOK {
		return status
	}

	devEUI, _ := scope.GetString(ScopeLorawanDevEUI)
	channelID, _ := scope.GetString(ScopeChannelID)

	existing, err := f.nodes.Get(devEUI)
	if err != nil {
		f.log.Error("finalize: failed to check existing lorawan_node", "dev_eui", devEUI, "error", err)
		return status
	}
	if existing != nil {
		f.log.Warn("finalize: attempt to recreate a lorawan_node that already exists, use the compressed-mode endpoints instead", "dev_eui", devEUI)
	} else {
		if err := f.nodes.Write(storage.LoraWanNode{DevEUI: devEUI, ChannelID: channelID}); err != nil {
			f.log.Error("finalize: failed to write new lorawan_node", "dev_eui", devEUI, "error", err)
			return status
		}
	}

	// Handlers may set ScopeAddNewLorawanNodeToDB before they know their
	// outcome, so the node is recorded only when the handler returned 200.
	// The 208 rewrite applies whether or not this call performed the write;
	// a failed lookup or write is logged and leaves the status unchanged.
	return compressed.StatusAlreadyReported
}

func (f *Finalize) handleAddBufferedMessage(scope *Scope) {
	payload, ok := scope.GetBytes(ScopeAddBufferedMessageToDB)
	if !ok {
		return
	}
	channelID, _ := scope.GetString(ScopeChannelID)
	if _, err := f.buffered.Write(storage.BufferedMessage{ChannelID: channelID, WireBytes: payload}); err != nil {
		f.log.Error("finalize: failed to enqueue buffered message, payload was not written to the ledger and is lost", "channel_id", channelID, "error", err)
	}
}
