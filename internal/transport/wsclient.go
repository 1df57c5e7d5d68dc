package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the websocket LedgerClient. Each request is answered
// by one response envelope on the same socket; the client does not listen
// for separate finality notifications.
type WSConfig struct {
	URL            string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
}

// DefaultWSConfig returns the teacher-derived defaults.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:            url,
		ReconnectDelay: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
	}
}

type wsEnvelope struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
}

// WSClient is a long-lived, reconnecting LedgerClient built over a single
// websocket connection. Outbound requests and their responses share one
// socket, matched up by envelope ID.
type WSClient struct {
	config WSConfig
	log    *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan wsEnvelope
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWSClient dials config.URL and starts the background read loop.
func NewWSClient(config WSConfig, log *slog.Logger) (*WSClient, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &WSClient{
		config:   config,
		log:      log,
		pending:  make(map[string]chan wsEnvelope),
		stopChan: make(chan struct{}),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

func (c *WSClient) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("transport: dial websocket %q: %w", c.config.URL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			time.Sleep(c.config.ReconnectDelay)
			if err := c.connect(); err != nil {
				c.log.Warn("transport: websocket reconnect failed", "error", err)
			}
			continue
		}

		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			c.log.Warn("transport: websocket read failed, reconnecting", "error", err)
			conn.Close()
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			time.Sleep(c.config.ReconnectDelay)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *WSClient) roundTrip(ctx context.Context, msgType string, id string, payload any) (wsEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return wsEnvelope{}, err
	}
	ch := make(chan wsEnvelope, 1)
	c.mu.Lock()
	conn := c.conn
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if conn == nil {
		return wsEnvelope{}, fmt.Errorf("transport: websocket not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(wsEnvelope{Type: msgType, ID: id, Payload: body}); err != nil {
		return wsEnvelope{}, fmt.Errorf("transport: websocket write: %w", err)
	}

	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		return wsEnvelope{}, ctx.Err()
	case <-time.After(c.config.ReadTimeout):
		return wsEnvelope{}, fmt.Errorf("transport: websocket round trip timed out")
	}
}

func (c *WSClient) FetchMessages(ctx context.Context, link string) ([][]byte, error) {
	env, err := c.roundTrip(ctx, "fetch_messages", link, map[string]string{"link": link})
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages [][]byte `json:"messages"`
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return nil, fmt.Errorf("transport: decode fetch_messages payload: %w", err)
	}
	return out.Messages, nil
}

func (c *WSClient) SendMessage(ctx context.Context, prevLink string, payload []byte) (string, error) {
	id := prevLink + ":" + fmt.Sprint(len(payload))
	env, err := c.roundTrip(ctx, "send_message", id, map[string]any{
		"prev_link": prevLink,
		"payload":   payload,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return "", fmt.Errorf("transport: decode send_message payload: %w", err)
	}
	return out.Link, nil
}

func (c *WSClient) Close() error {
	close(c.stopChan)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}
