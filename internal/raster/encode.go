package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/bmp"
)

// Format is the bitmap encoding of a rendered banner.
type Format string

const (
	PNG Format = "png"
	BMP Format = "bmp"
	// BMP1 is a Floyd-Steinberg dithered 1-bit BMP for e-ink panels.
	BMP1 Format = "bmp1"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case PNG, BMP, BMP1:
		return f, nil
	case "":
		return PNG, nil
	}
	return "", fmt.Errorf("unknown bitmap format %q", s)
}

func (f Format) ContentType() string {
	if f == BMP || f == BMP1 {
		return "image/bmp"
	}
	return "image/png"
}

func (f Format) Ext() string {
	if f == BMP1 {
		return "bmp"
	}
	return string(f)
}

// Encode serializes img in format f.
func Encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case PNG, "":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("unable encode png: %w", err)
		}
	case BMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("unable encode bmp: %w", err)
		}
	case BMP1:
		b, err := encode1bppBMP(ditherFloydSteinberg(img))
		if err != nil {
			return nil, fmt.Errorf("unable encode bmp1: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bitmap format %q", f)
	}
	return buf.Bytes(), nil
}

// ditherFloydSteinberg reduces src to black and white, diffusing the
// quantization error to the neighbours. Transparent pixels count as white.
func ditherFloydSteinberg(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(bounds)

	// luminance 0..1
	buf := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
			// composite over white
			alpha := float64(a) / 65535.0
			buf[y*w+x] = gray + (1 - alpha)
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			old := buf[i]
			var quant float64
			if old >= 0.5 {
				quant = 1.0
			}
			diff := old - quant

			if quant < 0.5 {
				out.SetRGBA(bounds.Min.X+x, bounds.Min.Y+y, color.RGBA{0, 0, 0, 255})
			} else {
				out.SetRGBA(bounds.Min.X+x, bounds.Min.Y+y, color.RGBA{255, 255, 255, 255})
			}

			spread := func(xx, yy int, factor float64) {
				if xx < 0 || xx >= w || yy < 0 || yy >= h {
					return
				}
				buf[yy*w+xx] += diff * factor
			}
			spread(x+1, y, 7.0/16.0)
			spread(x-1, y+1, 3.0/16.0)
			spread(x, y+1, 5.0/16.0)
			spread(x+1, y+1, 1.0/16.0)
		}
	}
	return out
}

// encode1bppBMP writes a bottom-up BITMAPINFOHEADER BMP with a two-entry
// palette (0 white, 1 black).
func encode1bppBMP(img image.Image) ([]byte, error) {
	b := img.Bounds()
	width := b.Dx()
	height := b.Dy()

	rawRowBytes := (width + 7) / 8
	// rows are padded to 4 bytes
	rowSize := (rawRowBytes + 3) &^ 3
	imageSize := rowSize * height

	const fileHeaderSize = 14
	const dibHeaderSize = 40
	const paletteSize = 8
	pixelOffset := fileHeaderSize + dibHeaderSize + paletteSize
	fileSize := uint32(pixelOffset + imageSize)

	buf := &bytes.Buffer{}
	buf.Grow(int(fileSize))

	header := []any{
		[2]byte{'B', 'M'},
		fileSize,
		uint16(0), uint16(0),
		uint32(pixelOffset),

		uint32(dibHeaderSize),
		int32(width),
		int32(height),
		uint16(1),  // planes
		uint16(1),  // bits per pixel
		uint32(0),  // BI_RGB
		uint32(imageSize),
		int32(0), int32(0),
		uint32(2), // colors used
		uint32(2), // important colors
	}
	for _, v := range header {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	// palette, BGRA
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0x00})
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})

	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		var current uint8
		bitPos := 7
		written := 0

		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, b2, _ := img.At(x, y).RGBA()
			lum := 299*r + 587*g + 114*b2
			if lum < 32768*1000 {
				current |= 1 << uint(bitPos)
			}
			bitPos--
			if bitPos < 0 {
				buf.WriteByte(current)
				written++
				current = 0
				bitPos = 7
			}
		}
		if bitPos != 7 {
			buf.WriteByte(current)
			written++
		}
		for written < rowSize {
			buf.WriteByte(0x00)
			written++
		}
	}

	return buf.Bytes(), nil
}
