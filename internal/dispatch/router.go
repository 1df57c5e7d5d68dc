package dispatch

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Router builds the Bridge's full HTTP routing table, wrapped in a request
// logging handler.
func (b *Bridge) Router() http.Handler {
	return handlers.LoggingHandler(slogWriter{b.log}, b.mux())
}

// mux returns the routing table without the logging wrapper, so the
// lorawan-rest tunnel handler can re-dispatch a decoded request without
// double-logging it.
func (b *Bridge) mux() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/lorawan-rest/binary_request", b.wrap(b.handleLorawanRestBinaryRequest)).Methods(http.MethodPost)

	r.HandleFunc("/message/send", b.wrap(b.handleMessageSend)).Methods(http.MethodGet)
	r.HandleFunc("/message/receive", b.wrap(b.handleMessageReceive)).Methods(http.MethodGet)

	r.HandleFunc("/command/next", b.wrap(b.handleCommandNext)).Methods(http.MethodGet)
	r.HandleFunc("/command/subscribe_to_announcement", b.wrap(b.handleCommandSubscribeToAnnouncement)).Methods(http.MethodPost)
	r.HandleFunc("/command/register_keyload_msg", b.wrap(b.handleCommandRegisterKeyloadMsg)).Methods(http.MethodPost)
	r.HandleFunc("/command/println_subscriber_status", b.wrap(b.handleCommandPrintlnSubscriberStatus)).Methods(http.MethodGet)
	r.HandleFunc("/command/clear_client_state", b.wrap(b.handleCommandClearClientState)).Methods(http.MethodGet)
	r.HandleFunc("/command/send_messages", b.wrap(b.handleCommandSendMessages)).Methods(http.MethodPost)

	r.HandleFunc("/confirm/next", b.wrap(b.handleConfirmNext)).Methods(http.MethodGet)
	r.HandleFunc("/confirm/subscription", b.wrap(b.handleConfirmSubscription)).Methods(http.MethodPost)
	r.HandleFunc("/confirm/subscriber_status", b.wrap(b.handleConfirmSubscriberStatus)).Methods(http.MethodPost)
	r.HandleFunc("/confirm/send_messages", b.wrap(b.handleConfirmSendMessages)).Methods(http.MethodPost)
	r.HandleFunc("/confirm/keyload_registration", b.wrap(b.handleConfirmKeyloadRegistration)).Methods(http.MethodGet)
	r.HandleFunc("/confirm/clear_client_state", b.wrap(b.handleConfirmClearClientState)).Methods(http.MethodGet)

	r.HandleFunc("/lorawan-node/{dev_eui}", b.wrap(b.handleLorawanNodeGet)).Methods(http.MethodGet)
	r.HandleFunc("/lorawan-node", b.wrap(b.handleLorawanNodeCreate)).Methods(http.MethodPost)

	return r
}

// handlerFunc is the shape of every dispatch-stage handler: it reads the
// request, mutates scope as needed, and returns the status and body it
// wants to send - the actual http.ResponseWriter call happens only after
// finalize has had a chance to rewrite the status.
type handlerFunc func(scope *Scope, r *http.Request) (status int, body []byte)

// wrap adapts a scope-aware handler into an http.HandlerFunc, running the
// finalize stage after the handler returns and never letting a finalize
// failure convert a successful status into a failure (per spec, finalize
// only augments).
func (b *Bridge) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := NewScope()
		status, body := h(scope, r)
		status = b.finalize.Process(scope, status)
		w.WriteHeader(status)
		if len(body) > 0 {
			w.Write(body)
		}
	}
}
