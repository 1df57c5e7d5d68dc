package transport

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory LedgerClient used by tests; it never dials
// out and records every call it receives.
type MockClient struct {
	mu       sync.Mutex
	closed   bool
	sent     []string
	messages map[string][][]byte
}

// NewMockClient returns a fresh MockClient.
func NewMockClient() *MockClient {
	return &MockClient{messages: make(map[string][][]byte)}
}

// NewMockFactory returns a Factory that produces independent MockClients.
func NewMockFactory() Factory {
	return func() (LedgerClient, error) {
		return NewMockClient(), nil
	}
}

func (m *MockClient) FetchMessages(_ context.Context, link string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[link], nil
}

func (m *MockClient) SendMessage(_ context.Context, prevLink string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := fmt.Sprintf("%s.%d", prevLink, len(m.sent))
	m.sent = append(m.sent, link)
	m.messages[prevLink] = append(m.messages[prevLink], payload)
	return link, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SentCount reports how many messages this client has sent.
func (m *MockClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
