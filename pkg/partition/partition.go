// Package partition maps an image height onto a fixed group of workers.
// Every worker recomputes the same plan locally; nothing here is ever sent
// over the wire.
package partition

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// NoNeighbor marks a missing link in the worker chain.
const NoNeighbor = -1

var (
	ErrNoWorkers     = errors.New("worker count must be at least 1")
	ErrWorkerRange   = errors.New("worker id out of range")
	ErrBadDimensions = errors.New("image dimensions must be positive")
)

// Partition is the contiguous row range owned by one worker.
type Partition struct {
	WorkerID   int
	RowStart   int
	RowCount   int
	ByteOffset int
	ByteCount  int
}

// RowEnd is one past the last global row of the partition.
func (p Partition) RowEnd() int {
	return p.RowStart + p.RowCount
}

// Empty reports whether the worker owns no rows.
func (p Partition) Empty() bool {
	return p.RowCount == 0
}

// rows returns the row count for worker id out of n for a height of h.
func rows(h, n, id int) int {
	count := h / n
	if id < h%n {
		count++
	}
	return count
}

// Compute returns the partition of worker id for an image of the given
// dimensions split across n workers.
func Compute(width, height, channels, n, id int) (Partition, error) {
	if n < 1 {
		return Partition{}, ErrNoWorkers
	}
	if id < 0 || id >= n {
		return Partition{}, fmt.Errorf("%w: %d not in [0,%d)", ErrWorkerRange, id, n)
	}
	if width <= 0 || height <= 0 || channels <= 0 {
		return Partition{}, fmt.Errorf("%w: %dx%dx%d", ErrBadDimensions, width, height, channels)
	}

	rowBytes := width * channels
	start := 0
	for i := 0; i < id; i++ {
		start += rows(height, n, i)
	}
	count := rows(height, n, id)

	return Partition{
		WorkerID:   id,
		RowStart:   start,
		RowCount:   count,
		ByteOffset: start * rowBytes,
		ByteCount:  count * rowBytes,
	}, nil
}

// Plan returns the partitions of all n workers, indexed by worker id.
func Plan(width, height, channels, n int) ([]Partition, error) {
	if n < 1 {
		return nil, ErrNoWorkers
	}
	plan := make([]Partition, n)
	for id := range plan {
		p, err := Compute(width, height, channels, n, id)
		if err != nil {
			return nil, err
		}
		plan[id] = p
	}
	return plan, nil
}

// Counts returns the per-worker byte counts of a plan.
func Counts(plan []Partition) []int {
	return lo.Map(plan, func(p Partition, _ int) int { return p.ByteCount })
}

// Displacements returns the per-worker byte offsets of a plan.
func Displacements(plan []Partition) []int {
	return lo.Map(plan, func(p Partition, _ int) int { return p.ByteOffset })
}

// TotalRows sums the row counts of a plan.
func TotalRows(plan []Partition) int {
	return lo.SumBy(plan, func(p Partition) int { return p.RowCount })
}
