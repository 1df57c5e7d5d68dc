package channel

import (
	"context"
	"fmt"
	"sync"
)

// FakeFactory constructs in-memory FakeChannels, used by dispatcher and
// buffered-loop tests in place of the real channel-cryptography library.
type FakeFactory struct {
	mu      sync.Mutex
	counter int
}

// NewFakeFactory returns a fresh FakeFactory.
func NewFakeFactory() *FakeFactory { return &FakeFactory{} }

func (f *FakeFactory) New(_ context.Context) (LedgerChannel, error) {
	f.mu.Lock()
	f.counter++
	id := f.counter
	f.mu.Unlock()
	return &FakeChannel{id: id, messages: make(map[string][]byte)}, nil
}

func (f *FakeFactory) Import(_ context.Context, stateBlob []byte) (LedgerChannel, error) {
	return &FakeChannel{id: -1, messages: make(map[string][]byte), imported: stateBlob}, nil
}

// FakeChannel is an in-memory LedgerChannel: every link is a small string
// derived from a monotonic counter, every message body is kept in a map.
type FakeChannel struct {
	mu       sync.Mutex
	id       int
	seq      int
	messages map[string][]byte
	order    []string
	imported []byte
}

func (c *FakeChannel) nextLink(kind string) string {
	c.seq++
	return fmt.Sprintf("fake-%d-%s-%d", c.id, kind, c.seq)
}

func (c *FakeChannel) Announce(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLink("announce"), nil
}

func (c *FakeChannel) AddSubscribers(_ context.Context, keys []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLink("keyload"), nil
}

func (c *FakeChannel) Subscribe(_ context.Context, announcementLink string) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLink("sub"), fmt.Sprintf("pubkey-%d", c.id), nil
}

func (c *FakeChannel) SendSignedPacket(_ context.Context, prevLink string, payload []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	link := c.nextLink("msg")
	c.messages[link] = append([]byte(nil), payload...)
	c.order = append(c.order, link)
	return link, nil
}

// Messages returns every message sent through this fake channel, oldest
// first.
func (c *FakeChannel) Messages(_ context.Context) ([]ChannelMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChannelMessage, 0, len(c.order))
	for _, link := range c.order {
		out = append(out, ChannelMessage{Link: link, Body: append([]byte(nil), c.messages[link]...)})
	}
	return out, nil
}

func (c *FakeChannel) Export() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []byte(fmt.Sprintf("fake-state-%d-%d", c.id, c.seq)), nil
}
