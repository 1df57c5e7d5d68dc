package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient is the synchronous-finality LedgerClient implementation: each
// call is a plain request/response round trip against the ledger node's
// REST API. Appropriate for deployments where the node returns once a
// message is final.
type HTTPClient struct {
	nodeURL string
	http    *http.Client
}

// NewHTTPClient builds an HTTPClient targeting nodeURL.
func NewHTTPClient(nodeURL string) *HTTPClient {
	return &HTTPClient{
		nodeURL: nodeURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type messageListResponse struct {
	Messages [][]byte `json:"messages"`
}

func (c *HTTPClient) FetchMessages(ctx context.Context, link string) ([][]byte, error) {
	u := fmt.Sprintf("%s/api/v1/channels/%s/messages", c.nodeURL, url.PathEscape(link))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch messages for %q: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: node returned status %d fetching %q", resp.StatusCode, link)
	}
	var out messageListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("transport: decode message list: %w", err)
	}
	return out.Messages, nil
}

type sendMessageRequest struct {
	PrevLink string `json:"prev_link"`
	Payload  []byte `json:"payload"`
}

type sendMessageResponse struct {
	Link string `json:"link"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, prevLink string, payload []byte) (string, error) {
	body, err := json.Marshal(sendMessageRequest{PrevLink: prevLink, Payload: payload})
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/api/v1/messages", c.nodeURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transport: node returned status %d sending message: %s", resp.StatusCode, data)
	}
	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transport: decode send response: %w", err)
	}
	return out.Link, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
