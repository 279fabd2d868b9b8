// Package ppm reads and writes binary P6 images as flat RGB buffers. Other
// formats (png, jpeg, ...) are decoded and encoded through imaging and
// converted to the same flat layout.
package ppm

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Channels is the channel count of every image this package produces.
const Channels = 3

const (
	magic  = "P6"
	maxVal = 255
)

var (
	ErrBadMagic      = errors.New("not a binary P6 image")
	ErrBadHeader     = errors.New("malformed P6 header")
	ErrBadDimensions = errors.New("image dimensions must be positive")
	ErrTruncated     = errors.New("pixel data truncated")
	ErrTrailingData  = errors.New("data after pixel body")
)

// Image is a row-major, channel-interleaved pixel buffer.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a zeroed image.
func New(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrBadDimensions, width, height, channels)
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}, nil
}

// RowBytes is the length of one row in bytes.
func (im *Image) RowBytes() int {
	return im.Width * im.Channels
}

func isPPM(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ppm")
}

// Load reads an image from path. Content starting with the P6 magic, and
// any file with a .ppm extension, is decoded as P6; anything else is
// handed to imaging.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(magic))

	var img *Image
	if string(head) == magic || isPPM(path) {
		img, err = Decode(br)
	} else {
		img, err = decodeOther(br)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Decode parses a P6 stream. Header fields may be separated by any
// whitespace and '#' comments; a single whitespace byte separates the
// header from the pixel data, and nothing may follow the pixel data.
func Decode(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)

	tok, err := token(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if tok != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, tok)
	}

	var fields [3]int
	for i := range fields {
		tok, err := token(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
		}
		if fields[i], err = strconv.Atoi(tok); err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrBadHeader, tok)
		}
	}
	width, height, mv := fields[0], fields[1], fields[2]
	if mv != maxVal {
		return nil, fmt.Errorf("%w: max value %d, want %d", ErrBadHeader, mv, maxVal)
	}

	img, err := New(width, height, Channels)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(br, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes", ErrTruncated, len(img.Pix))
		}
		return nil, err
	}
	switch _, err := br.ReadByte(); {
	case err == nil:
		return nil, fmt.Errorf("%w: after %d pixel bytes", ErrTrailingData, len(img.Pix))
	case !errors.Is(err, io.EOF):
		return nil, err
	}
	return img, nil
}

// token reads the next whitespace-delimited header field and consumes the
// single whitespace byte that ends it.
func token(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		c, err := br.ReadByte()
		if err != nil {
			if sb.Len() > 0 && errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return "", err
		}
		switch {
		case c == '#' && sb.Len() == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", err
			}
		case isSpace(c):
			if sb.Len() > 0 {
				return sb.String(), nil
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// Encode writes img as P6.
func Encode(w io.Writer, img *Image) error {
	if img.Channels != Channels {
		return fmt.Errorf("%w: P6 needs %d channels, image has %d", ErrBadDimensions, Channels, img.Channels)
	}
	if len(img.Pix) != img.Width*img.Height*img.Channels {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrTruncated, len(img.Pix), img.Width, img.Height)
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n%d\n", magic, img.Width, img.Height, maxVal); err != nil {
		return err
	}
	_, err := w.Write(img.Pix)
	return err
}

// Save writes img to path. Extensions imaging knows (png, jpg, ...) are
// encoded in that format; every other path gets P6. The file is written
// under a temporary name and renamed into place, so a failed save leaves no
// partial output.
func Save(path string, img *Image) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return writeFile(path, func(w io.Writer) error {
			return Encode(w, img)
		})
	}

	nrgba, err := img.NRGBA()
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return imaging.Encode(w, nrgba, format)
	})
}

func writeFile(path string, encode func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := encode(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func decodeOther(r io.Reader) (*Image, error) {
	src, err := imaging.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(src)
}

// FromImage flattens any image.Image into RGB. Alpha is dropped.
func FromImage(src image.Image) (*Image, error) {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	img, err := New(b.Dx(), b.Dy(), Channels)
	if err != nil {
		return nil, err
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			s := nrgba.PixOffset(x+b.Min.X, y+b.Min.Y)
			d := (y*img.Width + x) * Channels
			copy(img.Pix[d:d+Channels], nrgba.Pix[s:s+Channels])
		}
	}
	return img, nil
}

// NRGBA converts the buffer to an opaque *image.NRGBA.
func (im *Image) NRGBA() (*image.NRGBA, error) {
	if im.Channels != Channels {
		return nil, fmt.Errorf("%w: need %d channels, image has %d", ErrBadDimensions, Channels, im.Channels)
	}
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for i, j := 0, 0; i+Channels <= len(im.Pix); i, j = i+Channels, j+4 {
		copy(out.Pix[j:j+3], im.Pix[i:i+3])
		out.Pix[j+3] = 0xff
	}
	return out, nil
}
