// Package filter implements the pixel transformations applied to a worker's
// partition. Kernels are picked by Kind through a dispatch table.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrMissingHalo   = errors.New("stencil needs a halo row that was not received")
	ErrBadBlock      = errors.New("malformed pixel block")
)

// Kind names one of the supported transformations.
type Kind int

const (
	Grayscale Kind = iota
	Brighten
	Blur
	Edge
)

var names = map[Kind]string{
	Grayscale: "grayscale",
	Brighten:  "brighten",
	Blur:      "blur",
	Edge:      "edge",
}

func (k Kind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Stencil reports whether the kernel reads a 3x3 neighborhood and so needs
// halo rows at partition edges.
func (k Kind) Stencil() bool {
	return k == Blur || k == Edge
}

// Names lists the accepted filter names in sorted order.
func Names() []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parse maps a command-line filter name to its Kind.
func Parse(name string) (Kind, error) {
	for kind, n := range names {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w %q (want one of %s)", ErrUnknownFilter, name, strings.Join(Names(), ", "))
}

// Block is a worker's partition placed in global image coordinates. Top and
// Bottom are the neighbor rows around it; nil when there is no neighbor.
type Block struct {
	Pix      []byte
	Width    int
	Channels int
	RowStart int
	Height   int
	Top      []byte
	Bottom   []byte
}

func (b *Block) rowBytes() int {
	return b.Width * b.Channels
}

// Rows is the number of local rows in the block.
func (b *Block) Rows() int {
	if b.rowBytes() == 0 {
		return 0
	}
	return len(b.Pix) / b.rowBytes()
}

func (b *Block) validate() error {
	if b.Width <= 0 || b.Channels <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrBadBlock, b.Width, b.Height, b.Channels)
	}
	if len(b.Pix)%b.rowBytes() != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d-byte rows", ErrBadBlock, len(b.Pix), b.rowBytes())
	}
	if b.RowStart < 0 || b.RowStart+b.Rows() > b.Height {
		return fmt.Errorf("%w: rows [%d,%d) outside image height %d", ErrBadBlock, b.RowStart, b.RowStart+b.Rows(), b.Height)
	}
	return nil
}

type kernel func(b *Block) error

var kernels = map[Kind]kernel{
	Grayscale: grayscale,
	Brighten:  brighten,
	Blur:      blur,
	Edge:      edge,
}

// Apply runs the kernel for kind over the block, in place.
func Apply(kind Kind, b *Block) error {
	k, ok := kernels[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFilter, kind)
	}
	if err := b.validate(); err != nil {
		return err
	}
	return k(b)
}
