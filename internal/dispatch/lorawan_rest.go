package dispatch

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/iotaledger/meter-bridge/internal/wire"
)

// handleLorawanRestBinaryRequest is the entry point for LoRaWAN uplinks: the
// sensor has no way to speak real HTTP over its radio, so it tunnels a
// complete request - method, URI, body, headers - through a single binary
// payload. This handler decodes it, installs the DevEUI into scope, and
// re-dispatches the decoded request through the same routing table every
// directly reachable endpoint uses.
//
// httptest.NewRequest/NewRecorder are used here purely as an in-process
// http.Request/ResponseWriter pair, not as test scaffolding: they are the
// smallest way to hand a decoded request back into an http.Handler without
// opening a real socket.
func (b *Bridge) handleLorawanRestBinaryRequest(scope *Scope, r *http.Request) (int, []byte) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, []byte("cannot read body")
	}
	tunnelled, err := wire.TunnelledRequestFromBytes(raw)
	if err != nil {
		return http.StatusBadRequest, []byte("malformed tunnelled request")
	}

	devEUI := r.URL.Query().Get("deveui")
	if devEUI == "" {
		return http.StatusBadRequest, []byte("missing deveui")
	}
	scope.SetString(ScopeLorawanDevEUI, devEUI)

	method := http.MethodGet
	if tunnelled.Method == wire.MethodPost {
		method = http.MethodPost
	}

	uri := tunnelled.URI
	if strings.Contains(uri, "?") {
		uri = uri + "&deveui=" + devEUI
	} else {
		uri = uri + "?deveui=" + devEUI
	}

	inner := httptest.NewRequest(method, uri, bytes.NewReader(tunnelled.Body))
	for _, line := range strings.Split(tunnelled.Headers, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		inner.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}

	rec := httptest.NewRecorder()
	b.mux().ServeHTTP(rec, inner)

	return rec.Code, rec.Body.Bytes()
}
