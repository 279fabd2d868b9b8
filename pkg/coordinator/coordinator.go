// Package coordinator drives one worker through a distributed filter run.
// The worker with rank Root loads the image, announces the run to the group
// and saves the result; every worker filters its own partition.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"go-blur-halo/pkg/comm"
	"go-blur-halo/pkg/filter"
	"go-blur-halo/pkg/halo"
	"go-blur-halo/pkg/partition"
	"go-blur-halo/pkg/ppm"
)

// Root is the rank that owns the global image.
const Root = 0

// ErrAborted is returned by non-root workers when the root gives up before
// any data moves.
var ErrAborted = errors.New("run aborted by coordinator")

// Header is broadcast from the root before any partition math happens.
type Header struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Filter   string `json:"filter"`
	Abort    bool   `json:"abort,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Config describes one run. Input, Output and Image are only read on the
// root. When Image is set it is used instead of loading Input, and an empty
// Output skips the save.
type Config struct {
	Input  string
	Output string
	Filter string
	Image  *ppm.Image
	Logger *log.Logger
}

// Result is what a worker reports after a successful run. Image, Digest and
// Elapsed are only set on the root.
type Result struct {
	Header    Header
	Partition partition.Partition
	Image     *ppm.Image
	Digest    uint64
	Elapsed   time.Duration
}

type Worker struct {
	comm  *comm.Comm
	cfg   Config
	log   *log.Logger
	state atomic.Int32
}

func NewWorker(c *comm.Comm, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Worker{comm: c, cfg: cfg, log: logger}
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Worker) isRoot() bool {
	return w.comm.Rank() == Root
}

// Run executes the whole run on this worker. Every worker of the group must
// call Run concurrently.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	res, err := w.run(ctx)
	if err != nil {
		w.setState(Aborted)
		return nil, err
	}
	w.setState(Idle)
	return res, nil
}

func (w *Worker) run(ctx context.Context) (*Result, error) {
	w.setState(Idle)
	rank, size := w.comm.Rank(), w.comm.Size()

	hdr, img, err := w.announce(ctx)
	if err != nil {
		return nil, err
	}
	w.setState(DimensionsKnown)

	kind, err := filter.Parse(hdr.Filter)
	if err != nil {
		return nil, err
	}

	plan, err := partition.Plan(hdr.Width, hdr.Height, hdr.Channels, size)
	if err != nil {
		return nil, err
	}
	peers := partition.Chain(plan)
	counts, displs := partition.Counts(plan), partition.Displacements(plan)
	me := plan[rank]
	w.setState(Partitioned)

	if err := comm.Barrier(ctx, w.comm); err != nil {
		return nil, err
	}
	start := time.Now()

	var global []byte
	if w.isRoot() {
		global = img.Pix
	}
	local, err := comm.Scatterv(ctx, w.comm, Root, global, counts, displs)
	if err != nil {
		return nil, err
	}
	w.setState(DataReceived)

	block := &filter.Block{
		Pix:      local,
		Width:    hdr.Width,
		Channels: hdr.Channels,
		RowStart: me.RowStart,
		Height:   hdr.Height,
	}
	if kind.Stencil() && size > 1 {
		rows, err := halo.Exchange(ctx, w.comm, peers[rank], local, hdr.Width*hdr.Channels)
		if err != nil {
			return nil, err
		}
		block.Top, block.Bottom = rows.Top, rows.Bottom
		w.setState(HaloExchanged)
	}

	if err := filter.Apply(kind, block); err != nil {
		return nil, fmt.Errorf("worker %d: %w", rank, err)
	}
	w.setState(Filtered)

	if err := comm.Gatherv(ctx, w.comm, Root, local, global, counts, displs); err != nil {
		return nil, err
	}
	w.setState(DataSent)

	if err := comm.Barrier(ctx, w.comm); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &Result{Header: hdr, Partition: me}
	if !w.isRoot() {
		return res, nil
	}

	res.Image = img
	res.Elapsed = elapsed
	res.Digest = xxhash.Sum64(img.Pix)
	w.log.Printf("Coordinator: processing time %.6fs (digest %016x)", elapsed.Seconds(), res.Digest)

	if w.cfg.Output != "" {
		w.log.Printf("Coordinator: saving %s", w.cfg.Output)
		if err := ppm.Save(w.cfg.Output, img); err != nil {
			return nil, fmt.Errorf("save %s: %w", w.cfg.Output, err)
		}
	}
	return res, nil
}

// announce loads the image on the root and broadcasts the run header. A
// root-side failure is broadcast as an aborting header so that no worker
// waits on data that will never come.
func (w *Worker) announce(ctx context.Context) (Header, *ppm.Image, error) {
	if !w.isRoot() {
		raw, err := comm.Bcast(ctx, w.comm, Root, nil)
		if err != nil {
			return Header{}, nil, err
		}
		var hdr Header
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return Header{}, nil, fmt.Errorf("decode header: %w", err)
		}
		if hdr.Abort {
			return Header{}, nil, fmt.Errorf("%w: %s", ErrAborted, hdr.Reason)
		}
		return hdr, nil, nil
	}

	img, hdr, err := w.prepare()
	if err != nil {
		w.log.Printf("Coordinator: %v", err)
		w.abort(ctx, err)
		return Header{}, nil, err
	}

	raw, err := json.Marshal(hdr)
	if err != nil {
		return Header{}, nil, err
	}
	if _, err := comm.Bcast(ctx, w.comm, Root, raw); err != nil {
		return Header{}, nil, err
	}
	return hdr, img, nil
}

func (w *Worker) prepare() (*ppm.Image, Header, error) {
	kind, err := filter.Parse(w.cfg.Filter)
	if err != nil {
		return nil, Header{}, err
	}

	img := w.cfg.Image
	if img == nil {
		w.log.Printf("Coordinator: loading %s", w.cfg.Input)
		if img, err = ppm.Load(w.cfg.Input); err != nil {
			return nil, Header{}, fmt.Errorf("load %s: %w", w.cfg.Input, err)
		}
	}
	if img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 ||
		len(img.Pix) != img.Width*img.Height*img.Channels {
		return nil, Header{}, fmt.Errorf("%w: %dx%dx%d with %d bytes",
			ppm.ErrBadDimensions, img.Width, img.Height, img.Channels, len(img.Pix))
	}

	w.log.Printf("Coordinator: image %dx%d, %d channels, filter %s, %d workers",
		img.Width, img.Height, img.Channels, kind, w.comm.Size())

	return img, Header{
		Width:    img.Width,
		Height:   img.Height,
		Channels: img.Channels,
		Filter:   kind.String(),
	}, nil
}

func (w *Worker) abort(ctx context.Context, cause error) {
	raw, err := json.Marshal(Header{Abort: true, Reason: cause.Error()})
	if err != nil {
		return
	}
	if _, err := comm.Bcast(ctx, w.comm, Root, raw); err != nil {
		w.log.Printf("Coordinator: abort broadcast failed: %v", err)
	}
}
