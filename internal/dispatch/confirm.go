package dispatch

import (
	"context"
	"io"
	"net/http"

	"github.com/iotaledger/meter-bridge/internal/queue"
	"github.com/iotaledger/meter-bridge/internal/wire"
)

// handleConfirmNext is the server-side consumer: an operator-facing poll
// for the next confirmation the sensor has reported for a channel.
func (b *Bridge) handleConfirmNext(scope *Scope, r *http.Request) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	noConf := make([]byte, wire.NoConfirmation.NeededSize())
	wire.NoConfirmation.ToBytes(noConf)
	q, ok := b.ConfirmQueues.Get(devEUI)
	if !ok {
		return http.StatusOK, noConf
	}
	elem, ok := q.PopFront()
	if !ok {
		return http.StatusOK, noConf
	}
	return http.StatusOK, elem.Payload
}

// enqueueConfirm is the shared producer path for every /confirm/* endpoint
// the sensor posts to after executing a command. needsToWait is carried
// through to the queued element so fetch_next_confirmation-equivalent reads
// defer delivery until the referenced ledger message is milestone-referenced.
func (b *Bridge) enqueueConfirm(r *http.Request, payload []byte, needsToWait bool) (int, []byte) {
	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	b.ConfirmQueues.GetOrCreate(devEUI).PushBack(queue.NewElement(payload, needsToWait))
	return http.StatusOK, nil
}

// confirmationNeedsToWait reports whether a confirmation referencing the
// given ledger message links must wait for milestone referencing before a
// sensor may be handed it back. Health is nil in tests exercising the
// dispatcher in isolation, and in deployments with no indexer configured; in
// either case there is nothing to wait on, so confirmations are delivered
// immediately.
func (b *Bridge) confirmationNeedsToWait(ctx context.Context, links ...string) bool {
	if b.Health == nil {
		return false
	}
	for _, link := range links {
		if link == "" {
			continue
		}
		if !b.Health.MilestoneReferenced(ctx, link) {
			return true
		}
	}
	return false
}

// handleConfirmSubscription is the one confirmation that creates new
// durable state: a successful subscribe-to-announcement round trip is the
// first time the Bridge learns a DevEUI's ChannelId, so this is where the
// finalize stage's add-new-lorawan-node path gets armed.
func (b *Bridge) handleConfirmSubscription(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	conf, err := wire.SubscriptionConfirmationFromBytes(body)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed subscription confirmation")
	}

	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	channelID := conf.SubscriptionLink

	scope.SetString(ScopeLorawanDevEUI, devEUI)
	scope.SetString(ScopeChannelID, channelID)
	scope.SetBool(ScopeAddNewLorawanNodeToDB, true)

	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed subscription confirmation")
	}
	return b.enqueueConfirm(r, buf, b.confirmationNeedsToWait(r.Context(), conf.SubscriptionLink))
}

func (b *Bridge) handleConfirmKeyloadRegistration(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	conf, err := wire.KeyloadRegistrationConfirmationFromBytes(body)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed keyload registration confirmation")
	}
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed keyload registration confirmation")
	}
	return b.enqueueConfirm(r, buf, b.confirmationNeedsToWait(r.Context(), conf.KeyloadLink))
}

func (b *Bridge) handleConfirmSubscriberStatus(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	// Subscriber status is an opaque diagnostic string the sensor chose to
	// println; the Bridge only relays it onto the confirm queue untouched.
	// It references no ledger message, so there is nothing to wait on.
	return b.enqueueConfirm(r, body, false)
}

func (b *Bridge) handleConfirmClearClientState(scope *Scope, r *http.Request) (int, []byte) {
	conf := wire.ClearClientState
	buf := make([]byte, conf.NeededSize())
	conf.ToBytes(buf)
	return b.enqueueConfirm(r, buf, false)
}

func (b *Bridge) handleConfirmSendMessages(scope *Scope, r *http.Request) (int, []byte) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	conf, err := wire.SendMessagesConfirmationFromBytes(body)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed send_messages confirmation")
	}
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return http.StatusBadRequest, []byte("malformed send_messages confirmation")
	}
	return b.enqueueConfirm(r, buf, b.confirmationNeedsToWait(r.Context(), conf.MessageLinks...))
}
