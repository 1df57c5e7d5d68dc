package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures the TCP-socket transport.
type HTTPConfig struct {
	BridgeURL string
	DevEUI    string
	Timeout   time.Duration
}

// DefaultHTTPConfig returns sane development defaults.
func DefaultHTTPConfig(bridgeURL, devEUI string) HTTPConfig {
	return HTTPConfig{BridgeURL: bridgeURL, DevEUI: devEUI, Timeout: 30 * time.Second}
}

// HTTPTransport sends tunnelled requests as POST bodies over a normal TCP
// socket via net/http - the path used when the sensor runs as a regular
// process (management-console driven development, integration tests)
// rather than on constrained LoRaWAN hardware.
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPTransport dials nothing up front; the underlying *http.Client
// manages its own connection pool lazily.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPTransport{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (t *HTTPTransport) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	url := t.cfg.BridgeURL + "/lorawan-rest/binary_request?deveui=" + t.cfg.DevEUI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sensorrt/transport: build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sensorrt/transport: exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sensorrt/transport: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return body, fmt.Errorf("sensorrt/transport: bridge responded %d", resp.StatusCode)
	}
	return body, nil
}

func (t *HTTPTransport) Close() error { return nil }
