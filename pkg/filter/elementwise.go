package filter

import "math"

// BrightnessDelta is added to every channel by the brighten filter.
const BrightnessDelta = 50

// grayscale writes the luma of each pixel into its color channels. A fourth
// channel is left untouched.
func grayscale(b *Block) error {
	ch := b.Channels
	for idx := 0; idx+ch <= len(b.Pix); idx += ch {
		r := b.Pix[idx]
		g, bl := r, r
		if ch > 1 {
			g = b.Pix[idx+1]
		}
		if ch > 2 {
			bl = b.Pix[idx+2]
		}

		gray := uint8(math.Floor(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)))

		b.Pix[idx] = gray
		if ch > 1 {
			b.Pix[idx+1] = gray
		}
		if ch > 2 {
			b.Pix[idx+2] = gray
		}
	}
	return nil
}

func brighten(b *Block) error {
	for i, v := range b.Pix {
		b.Pix[i] = clamp(int(v) + BrightnessDelta)
	}
	return nil
}

func clamp(v int) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}
