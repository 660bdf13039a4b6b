package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"
)

// testBitmap returns a 28x28 bitmap with a gradient and a vertical stroke
func testBitmap() [][]uint8 {
	rows := make([][]uint8, Size)
	for y := range rows {
		rows[y] = make([]uint8, Size)
		for x := range rows[y] {
			rows[y][x] = uint8((x*9 + y*3) % 256)
		}
		rows[y][14] = 255
	}
	return rows
}

// oversizedDataURL encodes a 1x1 PNG whose header declares w x h pixels
func oversizedDataURL(t *testing.T, w, h uint32) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	raw := buf.Bytes()
	// signature (8), IHDR length (4), "IHDR" (4), width, height
	binary.BigEndian.PutUint32(raw[16:], w)
	binary.BigEndian.PutUint32(raw[20:], h)
	binary.BigEndian.PutUint32(raw[29:], crc32.ChecksumIEEE(raw[12:29]))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func absDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func TestDataURLRoundTrip(t *testing.T) {
	want := testBitmap()

	dataURL, err := EncodeDataURL(FromBitmap(want))
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Errorf("Expected PNG data URL, got prefix '%.30s'", dataURL)
	}

	g, err := Preprocess(dataURL, false)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if got := Bitmap(g); !reflect.DeepEqual(got, want) {
		t.Error("Decoded bitmap differs from the encoded one")
	}
}

func TestInvertIsAnInvolution(t *testing.T) {
	g := FromBitmap(testBitmap())

	once := Invert(g)
	if v := once.GrayAt(14, 0).Y; v != 0 {
		t.Errorf("Expected inverted stroke 0, got %d", v)
	}
	if got, want := once.GrayAt(3, 5).Y, 255-g.GrayAt(3, 5).Y; got != want {
		t.Errorf("Expected %d at (3,5), got %d", want, got)
	}

	twice := Invert(once)
	if !reflect.DeepEqual(Bitmap(g), Bitmap(twice)) {
		t.Error("Inverting twice should restore the original")
	}
}

func TestPreprocessInverts(t *testing.T) {
	rows := testBitmap()
	dataURL, err := EncodeDataURL(FromBitmap(rows))
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}

	g, err := Preprocess(dataURL, true)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !reflect.DeepEqual(Bitmap(Invert(FromBitmap(rows))), Bitmap(g)) {
		t.Error("Expected preprocessed bitmap to be the inverted input")
	}
}

func TestPreprocessResamplesAnySize(t *testing.T) {
	sizes := []image.Point{{100, 60}, {7, 7}, {28, 280}, {1, 1}}

	for _, size := range sizes {
		img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
		dataURL, err := EncodeDataURL(img)
		if err != nil {
			t.Fatalf("EncodeDataURL failed: %v", err)
		}

		g, err := Preprocess(dataURL, true)
		if err != nil {
			t.Fatalf("Preprocess failed for %v: %v", size, err)
		}
		if g.Bounds().Dx() != Size || g.Bounds().Dy() != Size {
			t.Errorf("Expected %dx%d for %v, got %v", Size, Size, size, g.Bounds())
		}
		if n := len(Features(g)); n != Size*Size {
			t.Errorf("Expected %d features for %v, got %d", Size*Size, size, n)
		}
		// white canvas inverts to black
		if v := g.GrayAt(10, 10).Y; v > 2 {
			t.Errorf("Expected near-black pixel for %v, got %d", size, v)
		}
	}
}

func TestPreprocessRejectsOversizedImage(t *testing.T) {
	_, err := Preprocess(oversizedDataURL(t, 15000, 15000), true)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("Expected ErrImageTooLarge, got %v", err)
	}

	// a long thin strip under the pixel budget is still decoded
	_, err = Preprocess(oversizedDataURL(t, 1, 4096), true)
	if errors.Is(err, ErrImageTooLarge) {
		t.Errorf("Expected 1x4096 header to pass the size check, got %v", err)
	}
}

func TestGrayscaleFromColour(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 7, 6))
	img.Set(5, 5, color.RGBA{R: 255, A: 255})
	img.Set(6, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	g := Grayscale(img)
	if g.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Errorf("Expected bounds at origin, got %v", g.Bounds())
	}
	if v := g.GrayAt(1, 0).Y; v != 255 {
		t.Errorf("Expected white 255, got %d", v)
	}
	// ITU-R 601 luma for pure red
	if v := g.GrayAt(0, 0).Y; absDiff(v, 76) > 1 {
		t.Errorf("Expected red luma near 76, got %d", v)
	}
}

func TestFeaturesRowMajor(t *testing.T) {
	g := FromBitmap([][]uint8{{1, 2}, {3, 4}})
	want := []float64{1, 2, 3, 4}
	if got := Features(g); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"with header", "data:image/png;base64,aGVsbG8=", "hello", false},
		{"bare payload", "aGVsbG8=", "hello", false},
		{"unpadded", "data:image/png;base64,aGVsbG8", "hello", false},
		{"empty", "", "", true},
		{"header only", "data:image/png;base64,", "", true},
		{"no separator", "data:image/png;base64", "", true},
		{"not base64 header", "data:text/plain,hello", "", true},
		{"garbage", "data:image/png;base64,@@@", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURL failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, string(got))
			}
		})
	}
}

func TestPreprocessRejectsNonImage(t *testing.T) {
	if _, err := Preprocess("data:image/png;base64,aGVsbG8=", true); err == nil {
		t.Error("Expected error for non-image payload")
	}
}
