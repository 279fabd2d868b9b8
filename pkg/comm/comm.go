// Package comm gives each worker an identity inside a fixed-size group and
// lets workers exchange tagged byte messages. Collective operations
// (broadcast, scatter, gather, barrier) are built on top of point-to-point
// messages.
//
// Transports are assumed reliable, ordered per (source, destination, tag)
// and lossless. Communication faults are not handled: a transport error is
// returned to the caller and the group is expected to be torn down.
package comm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPeerRange    = errors.New("peer rank out of range")
	ErrSizeMismatch = errors.New("message size mismatch")
	ErrClosed       = errors.New("transport closed")
)

// Tags reserved for collectives. Point-to-point users must stay below
// tagCollective.
const (
	tagCollective = 1 << 16
	tagBcast      = tagCollective + iota
	tagScatter
	tagGather
	tagBarrier
	tagBarrierRelease
)

// Transport moves payloads between ranks. Messages with the same
// (source, destination, tag) are delivered in send order. Send must not wait
// for the receiver.
type Transport interface {
	Send(ctx context.Context, dst, tag int, payload []byte) error
	Recv(ctx context.Context, src, tag int) ([]byte, error)
	Close() error
}

// Comm is one worker's handle on the group.
type Comm struct {
	rank      int
	size      int
	transport Transport
}

// New wraps a transport for the worker with the given rank.
func New(rank, size int, transport Transport) (*Comm, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size %d: %w", size, ErrPeerRange)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d of %d: %w", rank, size, ErrPeerRange)
	}
	return &Comm{rank: rank, size: size, transport: transport}, nil
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.size }

// Close releases the underlying transport.
func (c *Comm) Close() error {
	return c.transport.Close()
}

func (c *Comm) checkPeer(peer int) error {
	if peer < 0 || peer >= c.size {
		return fmt.Errorf("rank %d of %d: %w", peer, c.size, ErrPeerRange)
	}
	return nil
}

// Send delivers payload to dst under tag.
func (c *Comm) Send(ctx context.Context, payload []byte, dst, tag int) error {
	if err := c.checkPeer(dst); err != nil {
		return err
	}
	if err := c.transport.Send(ctx, dst, tag, payload); err != nil {
		return fmt.Errorf("send to %d tag %d: %w", dst, tag, err)
	}
	return nil
}

// Recv blocks until a message from src under tag arrives.
func (c *Comm) Recv(ctx context.Context, src, tag int) ([]byte, error) {
	if err := c.checkPeer(src); err != nil {
		return nil, err
	}
	data, err := c.transport.Recv(ctx, src, tag)
	if err != nil {
		return nil, fmt.Errorf("recv from %d tag %d: %w", src, tag, err)
	}
	return data, nil
}
