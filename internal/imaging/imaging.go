// Package imaging turns a canvas drawing sent as a PNG data URL into the
// 28x28 grayscale feature vector the digit model was trained on.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
)

// Size is the side length of the digit bitmap
const Size = 28

// MaxPixels bounds the declared width x height of an uploaded image.
// Canvas drawings are a few hundred pixels on a side.
const MaxPixels = 4096 * 4096

var (
	// ErrEmptyImage is returned for an empty data URL or payload
	ErrEmptyImage = errors.New("empty image")
	// ErrImageTooLarge is returned when the image header declares more
	// than MaxPixels pixels
	ErrImageTooLarge = errors.New("image too large")
)

// DecodeDataURL returns the raw bytes of a base64 data URL. A bare base64
// payload without the "data:...;base64," header is accepted as well.
func DecodeDataURL(dataURL string) ([]byte, error) {
	payload := strings.TrimSpace(dataURL)
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL: missing ',' separator")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("malformed data URL: payload is not base64 encoded")
		}
		payload = rest
	}
	if payload == "" {
		return nil, ErrEmptyImage
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	return raw, nil
}

// EncodeDataURL encodes img as a PNG data URL
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Grayscale converts img to a single 8-bit channel with its origin at 0,0
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Resample scales a grayscale image to Size x Size with bilinear
// interpolation. Images that already have that size are returned as is.
func Resample(g *image.Gray) *image.Gray {
	b := g.Bounds()
	if b.Dx() == Size && b.Dy() == Size {
		return g
	}

	resized := resize.Resize(Size, Size, g, resize.Bilinear)
	if out, ok := resized.(*image.Gray); ok && out.Bounds().Min == (image.Point{}) {
		return out
	}
	return Grayscale(resized)
}

// Invert returns a copy of g with every intensity v replaced by 255-v
func Invert(g *image.Gray) *image.Gray {
	out := &image.Gray{
		Pix:    make([]uint8, len(g.Pix)),
		Stride: g.Stride,
		Rect:   g.Rect,
	}
	for i, v := range g.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}

// Features flattens g row by row into raw 0-255 intensities
func Features(g *image.Gray) []float64 {
	b := g.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, float64(g.GrayAt(x, y).Y))
		}
	}
	return out
}

// Bitmap returns the pixel matrix of g as rows of intensities
func Bitmap(g *image.Gray) [][]uint8 {
	b := g.Bounds()
	rows := make([][]uint8, b.Dy())
	for y := range rows {
		rows[y] = make([]uint8, b.Dx())
		for x := range rows[y] {
			rows[y][x] = g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
		}
	}
	return rows
}

// FromBitmap builds a grayscale image from rows of intensities
func FromBitmap(rows [][]uint8) *image.Gray {
	h := len(rows)
	w := 0
	if h > 0 {
		w = len(rows[0])
	}
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y, row := range rows {
		for x, v := range row {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

// Preprocess decodes a data URL into a Size x Size grayscale image,
// inverting it when invert is set so dark ink on a light canvas becomes
// light ink on a dark background.
func Preprocess(dataURL string, invert bool) (*image.Gray, error) {
	raw, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	g := Resample(Grayscale(img))
	if invert {
		g = Invert(g)
	}
	return g, nil
}
