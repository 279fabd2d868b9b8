// Package halo swaps partition boundary rows between neighboring workers so
// that 3x3 stencils can be evaluated at partition seams.
package halo

import (
	"context"
	"fmt"

	"go-blur-halo/pkg/comm"
	"go-blur-halo/pkg/partition"
)

// Distinct tags keep the two directions apart when a worker is sending and
// receiving on both sides at once.
const (
	TagUp   = 0 // row travelling to the worker above
	TagDown = 1 // row travelling to the worker below
)

// Rows holds the neighbor rows received in one exchange. A nil row means
// there is no neighbor in that direction.
type Rows struct {
	Top    []byte
	Bottom []byte
}

// Exchange sends the first local row up and the last local row down, and
// receives the matching rows from each neighbor. It returns only after
// every posted send and receive has completed.
func Exchange(ctx context.Context, c *comm.Comm, peer partition.Peer, local []byte, rowBytes int) (Rows, error) {
	var rows Rows
	if !peer.HasUp() && !peer.HasDown() {
		return rows, nil
	}
	if rowBytes <= 0 || len(local) < rowBytes || len(local)%rowBytes != 0 {
		return rows, fmt.Errorf("halo exchange: %w: %d local bytes, %d-byte rows",
			comm.ErrSizeMismatch, len(local), rowBytes)
	}

	var reqs []*comm.Request
	var top, bottom *comm.Request

	if peer.HasUp() {
		reqs = append(reqs, c.Isend(ctx, local[:rowBytes], peer.Up, TagUp))
		top = c.Irecv(ctx, peer.Up, TagDown)
		reqs = append(reqs, top)
	}
	if peer.HasDown() {
		reqs = append(reqs, c.Isend(ctx, local[len(local)-rowBytes:], peer.Down, TagDown))
		bottom = c.Irecv(ctx, peer.Down, TagUp)
		reqs = append(reqs, bottom)
	}

	if err := comm.WaitAll(reqs...); err != nil {
		return Rows{}, fmt.Errorf("halo exchange: %w", err)
	}

	var err error
	if top != nil {
		if rows.Top, err = received(top, rowBytes); err != nil {
			return Rows{}, err
		}
	}
	if bottom != nil {
		if rows.Bottom, err = received(bottom, rowBytes); err != nil {
			return Rows{}, err
		}
	}
	return rows, nil
}

func received(r *comm.Request, rowBytes int) ([]byte, error) {
	data, err := r.Wait()
	if err != nil {
		return nil, err
	}
	if len(data) != rowBytes {
		return nil, fmt.Errorf("halo exchange: %w: got %d-byte row, want %d",
			comm.ErrSizeMismatch, len(data), rowBytes)
	}
	return data, nil
}
