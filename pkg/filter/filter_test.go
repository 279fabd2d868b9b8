package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h, ch int) []byte {
	pix := make([]byte, w*h*ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				pix[(y*w+x)*ch+c] = byte((y*37 + x*23 + c*61 + (x*y)%7*19) % 256)
			}
		}
	}
	return pix
}

func whole(pix []byte, w, h, ch int) *Block {
	return &Block{Pix: pix, Width: w, Channels: ch, RowStart: 0, Height: h}
}

// split filters rows [start, start+n) of src as its own block, with halo
// rows taken from src where they exist.
func split(t *testing.T, kind Kind, src []byte, w, h, ch int, counts []int) []byte {
	t.Helper()
	rb := w * ch
	out := make([]byte, 0, len(src))
	start := 0
	for _, n := range counts {
		local := make([]byte, n*rb)
		copy(local, src[start*rb:(start+n)*rb])
		b := &Block{Pix: local, Width: w, Channels: ch, RowStart: start, Height: h}
		if start > 0 && n > 0 {
			b.Top = src[(start-1)*rb : start*rb]
		}
		if start+n < h && n > 0 {
			b.Bottom = src[(start+n)*rb : (start+n+1)*rb]
		}
		require.NoError(t, Apply(kind, b))
		out = append(out, local...)
		start += n
	}
	return out
}

func TestParse(t *testing.T) {
	for name, want := range map[string]Kind{
		"grayscale": Grayscale,
		"brighten":  Brighten,
		"blur":      Blur,
		"edge":      Edge,
	} {
		got, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := Parse("sharpen")
	assert.ErrorIs(t, err, ErrUnknownFilter)
	assert.Equal(t, []string{"blur", "brighten", "edge", "grayscale"}, Names())
}

func TestStencilFlag(t *testing.T) {
	assert.False(t, Grayscale.Stencil())
	assert.False(t, Brighten.Stencil())
	assert.True(t, Blur.Stencil())
	assert.True(t, Edge.Stencil())
}

func TestGrayscale(t *testing.T) {
	pix := []byte{10, 20, 30, 255, 255, 255, 0, 0, 0}
	require.NoError(t, Apply(Grayscale, whole(pix, 3, 1, 3)))
	assert.Equal(t, []byte{18, 18, 18}, pix[:3])
	assert.Equal(t, pix[3], pix[4])
	assert.Equal(t, pix[4], pix[5])
	assert.Equal(t, []byte{0, 0, 0}, pix[6:])
}

func TestGrayscaleKeepsAlpha(t *testing.T) {
	pix := []byte{100, 100, 100, 7}
	require.NoError(t, Apply(Grayscale, whole(pix, 1, 1, 4)))
	assert.Equal(t, byte(7), pix[3])
	assert.Equal(t, pix[0], pix[1])
}

func TestBrightenClamps(t *testing.T) {
	pix := []byte{0, 100, 205, 206, 255, 50}
	require.NoError(t, Apply(Brighten, whole(pix, 2, 1, 3)))
	assert.Equal(t, []byte{50, 150, 255, 255, 255, 100}, pix)
}

func TestBlurSinglePeak(t *testing.T) {
	pix := make([]byte, 3*3*3)
	for c := 0; c < 3; c++ {
		pix[(1*3+1)*3+c] = 160
	}
	require.NoError(t, Apply(Blur, whole(pix, 3, 3, 3)))
	assert.Equal(t, byte(40), pix[(1*3+1)*3])
	assert.Equal(t, byte(40), pix[(1*3+1)*3+2])
}

func TestBlurFloorsWeightedSum(t *testing.T) {
	pix := make([]byte, 3*3)
	pix[0] = 15 // top-left corner, weight 1
	require.NoError(t, Apply(Blur, whole(pix, 3, 3, 1)))
	assert.Equal(t, byte(0), pix[4])
}

func TestEdgeStep(t *testing.T) {
	const w, h = 4, 3
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 2; x < w; x++ {
			for c := 0; c < 3; c++ {
				pix[(y*w+x)*3+c] = 200
			}
		}
	}
	require.NoError(t, Apply(Edge, whole(pix, w, h, 3)))

	// gx = 4*200 at x=1 and x=2 of the middle row.
	assert.Equal(t, []byte{255, 255, 255}, pix[(1*w+1)*3:(1*w+2)*3])
	assert.Equal(t, []byte{255, 255, 255}, pix[(1*w+2)*3:(1*w+3)*3])
}

func TestEdgeUniformIsZero(t *testing.T) {
	pix := make([]byte, 4*4*3)
	for i := range pix {
		pix[i] = 90
	}
	require.NoError(t, Apply(Edge, whole(pix, 4, 4, 3)))
	assert.Equal(t, byte(0), pix[(1*4+1)*3])
	assert.Equal(t, byte(90), pix[0])
}

func TestStencilKeepsImageBorder(t *testing.T) {
	const w, h, ch = 6, 5, 3
	for _, kind := range []Kind{Blur, Edge} {
		src := gradient(w, h, ch)
		pix := append([]byte(nil), src...)
		require.NoError(t, Apply(kind, whole(pix, w, h, ch)))

		rb := w * ch
		assert.Equal(t, src[:rb], pix[:rb], kind.String())
		assert.Equal(t, src[(h-1)*rb:], pix[(h-1)*rb:], kind.String())
		for y := 0; y < h; y++ {
			assert.Equal(t, src[y*rb:y*rb+ch], pix[y*rb:y*rb+ch])
			assert.Equal(t, src[(y+1)*rb-ch:(y+1)*rb], pix[(y+1)*rb-ch:(y+1)*rb])
		}
	}
}

func TestSplitMatchesWhole(t *testing.T) {
	const w, h, ch = 5, 10, 3
	splits := [][]int{{10}, {5, 5}, {4, 3, 3}, {3, 3, 2, 2}, {1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, {4, 4, 2, 0}}
	for _, kind := range []Kind{Grayscale, Brighten, Blur, Edge} {
		src := gradient(w, h, ch)
		want := append([]byte(nil), src...)
		require.NoError(t, Apply(kind, whole(want, w, h, ch)))

		for _, counts := range splits {
			got := split(t, kind, src, w, h, ch, counts)
			assert.Equal(t, want, got, "%s %v", kind, counts)
		}
	}
}

func TestMissingHaloIsAnError(t *testing.T) {
	const w, h, ch = 4, 10, 3
	src := gradient(w, h, ch)
	rb := w * ch

	b := &Block{Pix: append([]byte(nil), src[3*rb:6*rb]...), Width: w, Channels: ch, RowStart: 3, Height: h}
	b.Bottom = src[6*rb : 7*rb]
	assert.ErrorIs(t, Apply(Blur, b), ErrMissingHalo)

	b = &Block{Pix: append([]byte(nil), src[3*rb:6*rb]...), Width: w, Channels: ch, RowStart: 3, Height: h}
	b.Top = src[2*rb : 3*rb]
	assert.ErrorIs(t, Apply(Edge, b), ErrMissingHalo)
}

func TestBoundaryBlocksNeedNoHalo(t *testing.T) {
	const w, h, ch = 4, 6, 3
	src := gradient(w, h, ch)
	rb := w * ch

	first := &Block{Pix: append([]byte(nil), src[:rb]...), Width: w, Channels: ch, RowStart: 0, Height: h}
	require.NoError(t, Apply(Blur, first))
	assert.Equal(t, src[:rb], first.Pix)

	last := &Block{Pix: append([]byte(nil), src[(h-1)*rb:]...), Width: w, Channels: ch, RowStart: h - 1, Height: h}
	require.NoError(t, Apply(Edge, last))
	assert.Equal(t, src[(h-1)*rb:], last.Pix)
}

func TestApplyRejectsBadBlock(t *testing.T) {
	assert.ErrorIs(t, Apply(Blur, &Block{Pix: make([]byte, 7), Width: 2, Channels: 3, Height: 2}), ErrBadBlock)
	assert.ErrorIs(t, Apply(Blur, &Block{Pix: make([]byte, 12), Width: 2, Channels: 3, RowStart: 1, Height: 2}), ErrBadBlock)
	assert.ErrorIs(t, Apply(Kind(42), whole(make([]byte, 3), 1, 1, 3)), ErrUnknownFilter)
}

func TestEmptyBlock(t *testing.T) {
	for _, kind := range []Kind{Grayscale, Brighten, Blur, Edge} {
		b := &Block{Pix: nil, Width: 3, Channels: 3, RowStart: 3, Height: 3}
		assert.NoError(t, Apply(kind, b))
	}
}
