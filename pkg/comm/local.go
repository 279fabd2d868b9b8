package comm

import (
	"context"
	"sync"
)

type mailboxKey struct {
	src, dst, tag int
}

// mailbox is an unbounded FIFO with a single consumer.
type mailbox struct {
	mu      sync.Mutex
	pending [][]byte
	ready   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) put(payload []byte) {
	m.mu.Lock()
	m.pending = append(m.pending, payload)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take(ctx context.Context, closed <-chan struct{}) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			payload := m.pending[0]
			m.pending[0] = nil
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return payload, nil
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// LocalGroup connects workers running as goroutines in one process. Every
// payload is copied on send, so workers never share a buffer.
type LocalGroup struct {
	size int

	mu     sync.Mutex
	boxes  map[mailboxKey]*mailbox
	closed chan struct{}
	once   sync.Once
}

// NewLocalGroup creates an in-process group of the given size.
func NewLocalGroup(size int) *LocalGroup {
	return &LocalGroup{
		size:   size,
		boxes:  make(map[mailboxKey]*mailbox),
		closed: make(chan struct{}),
	}
}

func (g *LocalGroup) Size() int { return g.size }

// Comm returns the handle of the worker with the given rank.
func (g *LocalGroup) Comm(rank int) (*Comm, error) {
	return New(rank, g.size, &localTransport{group: g, rank: rank})
}

// Shutdown wakes every blocked receiver with ErrClosed.
func (g *LocalGroup) Shutdown() {
	g.once.Do(func() { close(g.closed) })
}

func (g *LocalGroup) box(key mailboxKey) *mailbox {
	g.mu.Lock()
	defer g.mu.Unlock()

	box, ok := g.boxes[key]
	if !ok {
		box = newMailbox()
		g.boxes[key] = box
	}
	return box
}

type localTransport struct {
	group *LocalGroup
	rank  int
}

func (t *localTransport) Send(ctx context.Context, dst, tag int, payload []byte) error {
	select {
	case <-t.group.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.group.box(mailboxKey{src: t.rank, dst: dst, tag: tag}).put(buf)
	return nil
}

func (t *localTransport) Recv(ctx context.Context, src, tag int) ([]byte, error) {
	box := t.group.box(mailboxKey{src: src, dst: t.rank, tag: tag})
	return box.take(ctx, t.group.closed)
}

// Close is a no-op for a single worker; use Shutdown to stop the group.
func (t *localTransport) Close() error {
	return nil
}
