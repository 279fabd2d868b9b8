package comm

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// Bcast sends payload from root to every worker. Every worker must call it;
// non-root workers pass nil and get the root's payload back.
func Bcast(ctx context.Context, c *Comm, root int, payload []byte) ([]byte, error) {
	if err := c.checkPeer(root); err != nil {
		return nil, err
	}
	if c.rank != root {
		return c.Recv(ctx, root, tagBcast)
	}

	reqs := make([]*Request, 0, c.size-1)
	for dst := 0; dst < c.size; dst++ {
		if dst == root {
			continue
		}
		reqs = append(reqs, c.Isend(ctx, payload, dst, tagBcast))
	}
	if err := WaitAll(reqs...); err != nil {
		return nil, fmt.Errorf("bcast: %w", err)
	}
	return payload, nil
}

func checkVectors(c *Comm, counts, displs []int) error {
	if len(counts) != c.size || len(displs) != c.size {
		return fmt.Errorf("%w: %d counts and %d displacements for %d workers",
			ErrSizeMismatch, len(counts), len(displs), c.size)
	}
	return nil
}

func checkExtent(global []byte, counts, displs []int) error {
	for i := range counts {
		if displs[i] < 0 || counts[i] < 0 || displs[i]+counts[i] > len(global) {
			return fmt.Errorf("%w: worker %d range [%d,%d) outside %d-byte buffer",
				ErrSizeMismatch, i, displs[i], displs[i]+counts[i], len(global))
		}
	}
	return nil
}

// Scatterv distributes counts[i] bytes starting at displs[i] of the root's
// global buffer to worker i. Only the root reads global. Every worker gets
// its own copy, possibly empty.
func Scatterv(ctx context.Context, c *Comm, root int, global []byte, counts, displs []int) ([]byte, error) {
	if err := c.checkPeer(root); err != nil {
		return nil, err
	}
	if err := checkVectors(c, counts, displs); err != nil {
		return nil, err
	}

	if c.rank != root {
		local, err := c.Recv(ctx, root, tagScatter)
		if err != nil {
			return nil, fmt.Errorf("scatter: %w", err)
		}
		if len(local) != counts[c.rank] {
			return nil, fmt.Errorf("scatter: %w: got %d bytes, want %d",
				ErrSizeMismatch, len(local), counts[c.rank])
		}
		return local, nil
	}

	if err := checkExtent(global, counts, displs); err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	reqs := make([]*Request, 0, c.size-1)
	for dst := 0; dst < c.size; dst++ {
		if dst == root {
			continue
		}
		chunk := global[displs[dst] : displs[dst]+counts[dst]]
		reqs = append(reqs, c.Isend(ctx, chunk, dst, tagScatter))
	}

	local := make([]byte, counts[root])
	copy(local, global[displs[root]:displs[root]+counts[root]])

	if err := WaitAll(reqs...); err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	return local, nil
}

// Gatherv collects every worker's local buffer into the root's global
// buffer at displs[i]. Only the root writes global.
func Gatherv(ctx context.Context, c *Comm, root int, local, global []byte, counts, displs []int) error {
	if err := c.checkPeer(root); err != nil {
		return err
	}
	if err := checkVectors(c, counts, displs); err != nil {
		return err
	}
	if len(local) != counts[c.rank] {
		return fmt.Errorf("gather: %w: local buffer has %d bytes, want %d",
			ErrSizeMismatch, len(local), counts[c.rank])
	}

	if c.rank != root {
		if err := c.Send(ctx, local, root, tagGather); err != nil {
			return fmt.Errorf("gather: %w", err)
		}
		return nil
	}

	if err := checkExtent(global, counts, displs); err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	reqs := make([]*Request, c.size)
	for src := 0; src < c.size; src++ {
		if src == root {
			continue
		}
		reqs[src] = c.Irecv(ctx, src, tagGather)
	}
	copy(global[displs[root]:], local)

	if err := WaitAll(lo.Compact(reqs)...); err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	for src, req := range reqs {
		if req == nil {
			continue
		}
		data, _ := req.Wait()
		if len(data) != counts[src] {
			return fmt.Errorf("gather: %w: worker %d sent %d bytes, want %d",
				ErrSizeMismatch, src, len(data), counts[src])
		}
		copy(global[displs[src]:], data)
	}
	return nil
}

// Barrier returns once every worker in the group has entered it.
func Barrier(ctx context.Context, c *Comm) error {
	const root = 0

	if c.rank != root {
		if err := c.Send(ctx, nil, root, tagBarrier); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		if _, err := c.Recv(ctx, root, tagBarrierRelease); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		return nil
	}

	for src := 1; src < c.size; src++ {
		if _, err := c.Recv(ctx, src, tagBarrier); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
	}
	for dst := 1; dst < c.size; dst++ {
		if err := c.Send(ctx, nil, dst, tagBarrierRelease); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
	}
	return nil
}
