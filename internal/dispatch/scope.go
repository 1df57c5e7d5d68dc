package dispatch

// ScopeKey names a recognized per-request scope entry. Handlers write to
// the scope; the finalize stage reads it back after the primary handler
// returns.
type ScopeKey string

const (
	ScopeChannelID                  ScopeKey = "channel-id"
	ScopeLorawanDevEUI              ScopeKey = "lorawan-dev-eui"
	ScopeRequestNeedsRegisteredNode ScopeKey = "request-needs-registered-lorawan-node"
	ScopeAddNewLorawanNodeToDB      ScopeKey = "add-new-lorawan-node-to-db"
	ScopeAddBufferedMessageToDB     ScopeKey = "add-buffered-message-to-db"
)

// Scope is the small key/value bag shared between dispatch stages for a
// single request. It supports the value shapes the reference scope bag
// supports across its observed uses: strings, bools, and raw bytes (for
// the buffered-message payload).
type Scope struct {
	strings map[ScopeKey]string
	bools   map[ScopeKey]bool
	bytes   map[ScopeKey][]byte
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{
		strings: make(map[ScopeKey]string),
		bools:   make(map[ScopeKey]bool),
		bytes:   make(map[ScopeKey][]byte),
	}
}

func (s *Scope) SetString(key ScopeKey, v string) { s.strings[key] = v }

func (s *Scope) GetString(key ScopeKey) (string, bool) {
	v, ok := s.strings[key]
	return v, ok
}

func (s *Scope) SetBool(key ScopeKey, v bool) { s.bools[key] = v }

func (s *Scope) GetBool(key ScopeKey) (bool, bool) {
	v, ok := s.bools[key]
	return v, ok
}

func (s *Scope) SetBytes(key ScopeKey, v []byte) { s.bytes[key] = v }

func (s *Scope) GetBytes(key ScopeKey) ([]byte, bool) {
	v, ok := s.bytes[key]
	return v, ok
}
