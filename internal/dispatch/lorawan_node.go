package dispatch

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/iotaledger/meter-bridge/internal/storage"
)

type lorawanNodeView struct {
	DevEUI    string `json:"dev_eui"`
	ChannelID string `json:"channel_id"`
}

// handleLorawanNodeGet is the admin-facing lookup of a sensor's registered
// channel binding.
func (b *Bridge) handleLorawanNodeGet(scope *Scope, r *http.Request) (int, []byte) {
	devEUI := mux.Vars(r)["dev_eui"]
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	n, err := b.Nodes.Get(devEUI)
	if err != nil {
		b.log.Error("lorawan-node: get failed", "dev_eui", devEUI, "error", err)
		return http.StatusInternalServerError, []byte("internal error")
	}
	if n == nil {
		return http.StatusNotFound, []byte("lorawan_node not found")
	}

	body, err := json.Marshal(lorawanNodeView{DevEUI: n.DevEUI, ChannelID: n.ChannelID})
	if err != nil {
		return http.StatusInternalServerError, []byte("internal error")
	}
	return http.StatusOK, body
}

// handleLorawanNodeCreate is the admin-facing registration endpoint, used
// to pre-provision a sensor outside of the normal subscribe-to-announcement
// flow. It is a straight insert and fails if the DevEUI is already known.
func (b *Bridge) handleLorawanNodeCreate(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	var view lorawanNodeView
	if err := json.Unmarshal(body, &view); err != nil {
		return http.StatusBadRequest, []byte("malformed lorawan_node payload")
	}
	if view.DevEUI == "" || view.ChannelID == "" {
		return http.StatusBadRequest, []byte("dev_eui and channel_id are required")
	}
	scope.SetString(ScopeLorawanDevEUI, view.DevEUI)

	existing, err := b.Nodes.Get(view.DevEUI)
	if err != nil {
		b.log.Error("lorawan-node: existence check failed", "dev_eui", view.DevEUI, "error", err)
		return http.StatusInternalServerError, []byte("internal error")
	}
	if existing != nil {
		return http.StatusConflict, []byte("lorawan_node already registered")
	}

	if err := b.Nodes.Write(storage.LoraWanNode{DevEUI: view.DevEUI, ChannelID: view.ChannelID}); err != nil {
		b.log.Error("lorawan-node: write failed", "dev_eui", view.DevEUI, "error", err)
		return http.StatusInternalServerError, []byte("internal error")
	}
	return http.StatusOK, nil
}
