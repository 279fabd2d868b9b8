package comm

import (
	"context"
	"errors"
)

// Request is the completion handle of a non-blocking send or receive.
// Neither the send buffer nor the received data may be touched until the
// request has been waited on.
type Request struct {
	done chan struct{}
	data []byte
	err  error
}

func start(fn func() ([]byte, error)) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.data, r.err = fn()
	}()
	return r
}

// Isend starts sending payload to dst.
func (c *Comm) Isend(ctx context.Context, payload []byte, dst, tag int) *Request {
	return start(func() ([]byte, error) {
		return nil, c.Send(ctx, payload, dst, tag)
	})
}

// Irecv starts receiving a message from src.
func (c *Comm) Irecv(ctx context.Context, src, tag int) *Request {
	return start(func() ([]byte, error) {
		return c.Recv(ctx, src, tag)
	})
}

// Wait blocks until the request completes and returns the received payload,
// which is nil for sends.
func (r *Request) Wait() ([]byte, error) {
	<-r.done
	return r.data, r.err
}

// WaitAll blocks until every request has completed, even when some fail,
// and joins their errors.
func WaitAll(reqs ...*Request) error {
	var errs []error
	for _, r := range reqs {
		if _, err := r.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
