package filter

import (
	"fmt"
	"math"
)

// Gaussian is the 3x3 blur kernel; weights sum to gaussianNorm.
var Gaussian = [3][3]int{
	{1, 2, 1},
	{2, 4, 2},
	{1, 2, 1},
}

const gaussianNorm = 16

// Sobel gradient kernels.
var (
	SobelX = [3][3]int{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	SobelY = [3][3]int{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// source returns local row i of the unfiltered snapshot, reaching into the
// halo rows for i == -1 and i == Rows().
func (b *Block) source(snapshot []byte, i int) ([]byte, error) {
	rb := b.rowBytes()
	switch {
	case i < 0:
		if b.Top == nil {
			return nil, fmt.Errorf("%w: above global row %d", ErrMissingHalo, b.RowStart)
		}
		if len(b.Top) != rb {
			return nil, fmt.Errorf("%w: top halo has %d bytes, want %d", ErrBadBlock, len(b.Top), rb)
		}
		return b.Top, nil
	case i >= b.Rows():
		if b.Bottom == nil {
			return nil, fmt.Errorf("%w: below global row %d", ErrMissingHalo, b.RowStart+b.Rows()-1)
		}
		if len(b.Bottom) != rb {
			return nil, fmt.Errorf("%w: bottom halo has %d bytes, want %d", ErrBadBlock, len(b.Bottom), rb)
		}
		return b.Bottom, nil
	default:
		return snapshot[i*rb : (i+1)*rb], nil
	}
}

// stencil visits every filterable pixel with its three source rows. The
// global first and last rows and the first and last columns keep their
// input values.
func stencil(b *Block, visit func(out []byte, above, row, below []byte, x int)) error {
	rb := b.rowBytes()
	snapshot := make([]byte, len(b.Pix))
	copy(snapshot, b.Pix)

	for i := 0; i < b.Rows(); i++ {
		global := b.RowStart + i
		if global == 0 || global == b.Height-1 {
			continue
		}

		above, err := b.source(snapshot, i-1)
		if err != nil {
			return err
		}
		below, err := b.source(snapshot, i+1)
		if err != nil {
			return err
		}
		row := snapshot[i*rb : (i+1)*rb]
		out := b.Pix[i*rb : (i+1)*rb]

		for x := 1; x < b.Width-1; x++ {
			visit(out, above, row, below, x)
		}
	}
	return nil
}

func blur(b *Block) error {
	ch := b.Channels
	return stencil(b, func(out, above, row, below []byte, x int) {
		rows := [3][]byte{above, row, below}
		for c := 0; c < ch; c++ {
			sum := 0
			for dy := 0; dy < 3; dy++ {
				for dx := 0; dx < 3; dx++ {
					sum += Gaussian[dy][dx] * int(rows[dy][(x+dx-1)*ch+c])
				}
			}
			out[x*ch+c] = uint8(sum / gaussianNorm)
		}
	})
}

func edge(b *Block) error {
	ch := b.Channels
	return stencil(b, func(out, above, row, below []byte, x int) {
		rows := [3][]byte{above, row, below}
		gx, gy := 0, 0
		for dy := 0; dy < 3; dy++ {
			for dx := 0; dx < 3; dx++ {
				v := int(rows[dy][(x+dx-1)*ch])
				gx += SobelX[dy][dx] * v
				gy += SobelY[dy][dx] * v
			}
		}

		magnitude := math.Sqrt(float64(gx*gx + gy*gy))
		if magnitude > 255 {
			magnitude = 255
		}
		value := uint8(magnitude)
		for c := 0; c < ch; c++ {
			out[x*ch+c] = value
		}
	})
}
