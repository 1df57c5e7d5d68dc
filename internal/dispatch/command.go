package dispatch

import (
	"io"
	"net/http"

	"github.com/iotaledger/meter-bridge/internal/queue"
	"github.com/iotaledger/meter-bridge/internal/wire"
)

// handleCommandNext is the sensor-side consumer: it pops the next
// deliverable command for the DevEUI the query parameter names, applying
// the FIFO queue's drop/defer/deliver policy.
func (b *Bridge) handleCommandNext(scope *Scope, r *http.Request) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	noCmd := make([]byte, wire.NoCommand.NeededSize())
	wire.NoCommand.ToBytes(noCmd)
	q, ok := b.CommandQueues.Get(devEUI)
	if !ok {
		return http.StatusOK, noCmd
	}
	elem, ok := q.PopFront()
	if !ok {
		return http.StatusOK, noCmd
	}
	return http.StatusOK, elem.Payload
}

// enqueueCommand is the shared producer path for every /command/* endpoint
// that pushes work for the sensor to later poll with handleCommandNext.
func (b *Bridge) enqueueCommand(r *http.Request, payload []byte, needsToWait bool) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	b.CommandQueues.GetOrCreate(devEUI).PushBack(queue.NewElement(payload, needsToWait))
	return http.StatusOK, nil
}

func (b *Bridge) handleCommandSubscribeToAnnouncement(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	announcementLink := string(body)
	cmd := wire.SubscribeToAnnouncementCommand{AnnouncementLink: announcementLink}
	buf := make([]byte, cmd.NeededSize())
	if _, err := cmd.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed subscribe_to_announcement payload")
	}
	return b.enqueueCommand(r, buf, false)
}

func (b *Bridge) handleCommandRegisterKeyloadMsg(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	reg, err := wire.RegisterKeyloadCommandFromBytes(body)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed register_keyload_msg payload")
	}
	buf := make([]byte, reg.NeededSize())
	if _, err := reg.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed register_keyload_msg payload")
	}
	return b.enqueueCommand(r, buf, false)
}

func (b *Bridge) handleCommandPrintlnSubscriberStatus(scope *Scope, r *http.Request) (int, []byte) {
	cmd := wire.PrintlnSubscriberStatus
	buf := make([]byte, cmd.NeededSize())
	cmd.ToBytes(buf)
	return b.enqueueCommand(r, buf, false)
}

func (b *Bridge) handleCommandClearClientState(scope *Scope, r *http.Request) (int, []byte) {
	cmd := wire.CommandClearClientState
	buf := make([]byte, cmd.NeededSize())
	cmd.ToBytes(buf)
	return b.enqueueCommand(r, buf, false)
}

func (b *Bridge) handleCommandSendMessages(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	send, err := wire.SendMessagesCommandFromBytes(body)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed send_messages payload")
	}
	buf := make([]byte, send.NeededSize())
	if _, err := send.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed send_messages payload")
	}
	// The command itself references nothing the sensor must wait on;
	// needs_to_wait_for_tangle_milestone belongs to the confirmation the
	// sensor reports back after executing this command, not to the command.
	return b.enqueueCommand(r, buf, false)
}
