package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ZMQConfig configures the tunnelled-over-callback transport.
type ZMQConfig struct {
	// RequestURL is the REQ socket endpoint the radio-modem callback
	// boundary listens on.
	RequestURL string
}

// ZMQTransport stands in for the C-callback boundary a real constrained
// sensor uses to hand a tunnelled request to its LoRaWAN radio stack: one
// ZeroMQ REQ/REP round trip per Exchange, serialized behind a mutex since a
// REQ socket may only have one request in flight at a time.
type ZMQTransport struct {
	cfg  ZMQConfig
	mu   sync.Mutex
	sock zmq4.Socket
}

// NewZMQTransport dials the REQ socket at cfg.RequestURL.
func NewZMQTransport(ctx context.Context, cfg ZMQConfig) (*ZMQTransport, error) {
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(cfg.RequestURL); err != nil {
		return nil, fmt.Errorf("sensorrt/transport: dial %q: %w", cfg.RequestURL, err)
	}
	return &ZMQTransport{cfg: cfg, sock: sock}, nil
}

func (t *ZMQTransport) Exchange(_ context.Context, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := zmq4.NewMsg(payload)
	if err := t.sock.Send(msg); err != nil {
		return nil, fmt.Errorf("sensorrt/transport: send: %w", err)
	}

	resp, err := t.sock.Recv()
	if err != nil {
		return nil, fmt.Errorf("sensorrt/transport: recv: %w", err)
	}
	if len(resp.Frames) == 0 {
		return nil, fmt.Errorf("sensorrt/transport: empty response")
	}
	return resp.Frames[0], nil
}

func (t *ZMQTransport) Close() error {
	return t.sock.Close()
}
