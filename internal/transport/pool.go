// Package transport implements the Bridge's bounded pool of ledger-client
// instances and the LedgerClient implementations that pool manages.
package transport

import (
	"context"
	"log/slog"
)

// MaxPoolSize bounds the number of live LedgerClient instances a Pool will
// ever construct. Beyond this bound Get returns (nil, false) without
// waiting, so the Bridge never holds an unbounded number of node connections.
const MaxPoolSize = 30

// LedgerClient is whatever a pooled transport instance must support: the
// operations the channel manager performs against the ledger node and
// message indexer. The concrete cryptographic channel library is an
// external collaborator; LedgerClient is the seam this repo owns.
type LedgerClient interface {
	// FetchMessages returns the raw bytes of the messages the node lists
	// for link. Implementations keep no per-call position.
	FetchMessages(ctx context.Context, link string) ([][]byte, error)
	// SendMessage publishes payload anchored to prevLink and returns the
	// new message's link.
	SendMessage(ctx context.Context, prevLink string, payload []byte) (string, error)
	// Close releases any underlying connection resources.
	Close() error
}

// Factory constructs a fresh LedgerClient instance on demand.
type Factory func() (LedgerClient, error)

// Handle wraps a pooled LedgerClient with the bookkeeping Pool needs to
// return it to the available set on Release.
type Handle struct {
	Client       LedgerClient
	instancePos  int
}

// Pool hands out LedgerClient instances up to MaxPoolSize, non-blocking:
// once the bound is reached, Get returns (nil, false) rather than waiting
// for a release. Pool is not safe for concurrent use - it is owned by the
// dispatcher's single request-handling goroutine.
type Pool struct {
	factory   Factory
	log       *slog.Logger
	instances []LedgerClient
	available []int
}

// NewPool returns an empty Pool that constructs instances via factory.
func NewPool(factory Factory, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{factory: factory, log: log}
}

// Get returns a Handle to a LedgerClient, reusing a released instance when
// one is available, constructing a new one up to MaxPoolSize otherwise, or
// returning (nil, false) when the pool is saturated.
func (p *Pool) Get() (*Handle, bool) {
	for {
		if len(p.available) > 0 {
			idx := p.available[len(p.available)-1]
			p.available = p.available[:len(p.available)-1]
			return &Handle{Client: p.instances[idx], instancePos: idx}, true
		}

		if len(p.instances) < MaxPoolSize {
			client, err := p.factory()
			if err != nil {
				p.log.Error("transport pool: failed to construct new instance", "error", err)
				return nil, false
			}
			p.instances = append(p.instances, client)
			p.available = append(p.available, len(p.instances)-1)
			continue
		}

		p.log.Warn("transport pool: MAX_POOL_SIZE reached, no instance available, try again later", "max_pool_size", MaxPoolSize)
		return nil, false
	}
}

// Release returns handle's instance to the available set so a future Get
// can reuse it.
func (p *Pool) Release(handle *Handle) {
	p.available = append(p.available, handle.instancePos)
}

// Len reports the number of instances the pool has constructed so far.
func (p *Pool) Len() int {
	return len(p.instances)
}

// Close closes every constructed instance, logging but not failing on
// individual close errors.
func (p *Pool) Close() {
	for _, inst := range p.instances {
		if err := inst.Close(); err != nil {
			p.log.Warn("transport pool: error closing instance", "error", err)
		}
	}
}
