package transport

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/goadb/hostbridge/pkg/adb/wire"
)

// ErrClosed is returned by a closed MemoryTransport's Send/Recv.
var ErrClosed = errors.New("transport: closed")

// MemoryTransport is an in-process Transport used by tests and by the
// mock-transport scenarios in spec §8 (S1-S6): it lets a test inject
// packets as if they arrived from a device, and inspect packets sent by
// the dispatcher, without any real I/O.
type MemoryTransport struct {
	mu      sync.Mutex
	closed  bool
	stopCh  chan struct{}
	inbound chan *wire.Packet
	outbound chan *wire.Packet

	maxPayload       atomic.Uint32
	checksumRequired atomic.Bool
}

// NewMemoryPair returns two ends of an in-process duplex transport,
// wired so that Send on one side becomes Recv on the other.
func NewMemoryPair() (a, b *MemoryTransport) {
	c1 := make(chan *wire.Packet, 64)
	c2 := make(chan *wire.Packet, 64)
	a = &MemoryTransport{inbound: c1, outbound: c2, stopCh: make(chan struct{})}
	b = &MemoryTransport{inbound: c2, outbound: c1, stopCh: make(chan struct{})}
	a.maxPayload.Store(wire.DefaultPayload)
	b.maxPayload.Store(wire.DefaultPayload)
	a.checksumRequired.Store(true)
	b.checksumRequired.Store(true)
	return a, b
}

func (m *MemoryTransport) SetNegotiated(maxPayload uint32, checksumRequired bool) {
	m.maxPayload.Store(maxPayload)
	m.checksumRequired.Store(checksumRequired)
}

func (m *MemoryTransport) Send(p *wire.Packet) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case m.outbound <- p:
		return nil
	case <-m.stopCh:
		return ErrClosed
	}
}

func (m *MemoryTransport) Recv() (*wire.Packet, error) {
	select {
	case p, ok := <-m.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return p, nil
	case <-m.stopCh:
		return nil, ErrClosed
	}
}

// Close closes this end only: it wakes up any blocked local Send/Recv.
// The peer end is not notified: its Send keeps succeeding into the buffered
// channel until the buffer is full and then blocks, and its Recv blocks until
// the peer end is closed by its own owner.
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stopCh)
	return nil
}

// InjectInbound lets a test push a packet as though it arrived from the peer.
// Only valid on the end that was not closed.
func (m *MemoryTransport) InjectInbound(p *wire.Packet) {
	m.inbound <- p
}
