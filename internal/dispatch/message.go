package dispatch

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/iotaledger/meter-bridge/internal/compressed"
)

type receiveView struct {
	Messages [][]byte `json:"messages"`
}

// handleMessageSend publishes a raw, already-signed packet on the channel
// bound to the requesting DevEUI (resolved compressed or uncompressed via
// compressed.Resolve), anchored to that channel's current link.
func (b *Bridge) handleMessageSend(scope *Scope, r *http.Request) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	channelID, known, err := compressed.Resolve(b, devEUI, r.URL.Query().Get("channel_id"))
	if err != nil {
		return compressed.StatusNotExtended, []byte("channel-id unknown for this device, resend uncompressed")
	}
	scope.SetString(ScopeChannelID, channelID)
	if !known {
		scope.SetBool(ScopeAddNewLorawanNodeToDB, true)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}

	if b.Health != nil {
		if healthy, reason := b.Health.IsHealthy(r.Context()); !healthy {
			b.log.Warn("message/send: ledger infrastructure unhealthy, rejecting write", "channel_id", channelID, "reason", reason)
			if b.strategy == BufferMessagesOnValidationErrors {
				scope.SetBytes(ScopeAddBufferedMessageToDB, payload)
				return http.StatusAccepted, []byte("buffered for retry")
			}
			return http.StatusServiceUnavailable, []byte("ledger infrastructure unavailable: " + reason)
		}
	}

	mgr, err := b.managerFor(channelID)
	if err != nil {
		b.log.Error("message/send: failed to acquire channel manager", "channel_id", channelID, "error", err)
		return http.StatusInternalServerError, []byte("internal error")
	}

	link, err := mgr.SendSignedPacket(r.Context(), payload)
	if err != nil {
		if b.strategy == BufferMessagesOnValidationErrors {
			scope.SetBytes(ScopeAddBufferedMessageToDB, payload)
			return http.StatusInsufficientStorage, []byte("buffered for retry")
		}
		b.log.Error("message/send: send failed", "channel_id", channelID, "error", err)
		return http.StatusInsufficientStorage, []byte(err.Error())
	}

	return http.StatusOK, []byte(link)
}

// handleMessageReceive fetches the messages the ledger node lists for the
// channel Manager's current previous-message link, using a pooled
// LedgerClient. The Manager is consulted only for that link; fetching does
// not mutate or persist channel state.
func (b *Bridge) handleMessageReceive(scope *Scope, r *http.Request) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	channelID, _, err := compressed.Resolve(b, devEUI, r.URL.Query().Get("channel_id"))
	if err != nil {
		return compressed.StatusNotExtended, []byte("channel-id unknown for this device, resend uncompressed")
	}
	scope.SetString(ScopeChannelID, channelID)

	mgr, err := b.managerFor(channelID)
	if err != nil {
		b.log.Error("message/receive: failed to acquire channel manager", "channel_id", channelID, "error", err)
		return http.StatusInternalServerError, []byte("internal error")
	}

	if b.Transport == nil {
		return http.StatusServiceUnavailable, []byte("no transport configured")
	}
	handle, ok := b.Transport.Get()
	if !ok {
		return http.StatusServiceUnavailable, []byte("transport pool saturated, try again later")
	}
	defer b.Transport.Release(handle)

	messages, err := handle.Client.FetchMessages(r.Context(), mgr.PrevLink())
	if err != nil {
		b.log.Error("message/receive: fetch failed", "channel_id", channelID, "error", err)
		return http.StatusServiceUnavailable, []byte(err.Error())
	}

	body, err := json.Marshal(receiveView{Messages: messages})
	if err != nil {
		return http.StatusInternalServerError, []byte("internal error")
	}
	return http.StatusOK, body
}
