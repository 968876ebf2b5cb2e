package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/uber-go/tally/v4"
)

// noise returns a w×h image of random pixels, which compresses badly.
func noise(w, h int) image.Image {
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func flat(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func TestTranscode_Dimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxDim       int
		wantW, wantH int
	}{
		{name: "landscape downscaled", w: 800, h: 600, maxDim: 192, wantW: 192, wantH: 144},
		{name: "portrait downscaled", w: 300, h: 1000, maxDim: 200, wantW: 60, wantH: 200},
		{name: "small image not upscaled", w: 120, h: 80, maxDim: 1920, wantW: 120, wantH: 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Transcode(encodePNG(t, flat(tt.w, tt.h)), tt.maxDim, DefaultTargetBytes)
			if err != nil {
				t.Fatalf("Transcode() error: %v", err)
			}
			if res.Width != tt.wantW || res.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", res.Width, res.Height, tt.wantW, tt.wantH)
			}
			if res.FinalQuality != DefaultQuality {
				t.Errorf("FinalQuality = %d, want %d", res.FinalQuality, DefaultQuality)
			}

			decoded, err := jpeg.Decode(bytes.NewReader(res.Data))
			if err != nil {
				t.Fatalf("output is not JPEG: %v", err)
			}
			if b := decoded.Bounds(); b.Dx() != res.Width || b.Dy() != res.Height {
				t.Errorf("reported %dx%d, encoded %dx%d", res.Width, res.Height, b.Dx(), b.Dy())
			}
		})
	}
}

func TestTranscode_FallbackQuality(t *testing.T) {
	raw := encodeJPEG(t, noise(400, 300))

	res, err := Transcode(raw, 192, 1024)
	if err != nil {
		t.Fatalf("Transcode() error: %v", err)
	}
	if res.FinalQuality != DefaultFallbackQuality {
		t.Errorf("FinalQuality = %d, want %d", res.FinalQuality, DefaultFallbackQuality)
	}
	// still over budget: the second pass is returned anyway
	if len(res.Data) <= 1024 {
		t.Errorf("expected best-effort output over budget, got %d bytes", len(res.Data))
	}
}

func TestTranscode_LargePhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("large image")
	}
	raw := encodeJPEG(t, noise(4000, 3000))

	res, err := Transcode(raw, 1920, 64<<10)
	if err != nil {
		t.Fatalf("Transcode() error: %v", err)
	}
	if res.Width != 1920 || res.Height != 1440 {
		t.Errorf("got %dx%d, want 1920x1440", res.Width, res.Height)
	}
	if res.FinalQuality != DefaultFallbackQuality {
		t.Errorf("FinalQuality = %d, want fallback", res.FinalQuality)
	}
}

func TestTranscode_Undecodable(t *testing.T) {
	_, err := Transcode([]byte("definitely not an image"), 1920, 1<<20)
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
}

func TestTranscoder_Metrics(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	tr := NewTranscoder(Options{MaxDimension: 192, TargetBytes: 1024, Workers: 1}, scope)

	if _, err := tr.Transcode(context.Background(), encodeJPEG(t, noise(400, 300))); err != nil {
		t.Fatalf("Transcode() error: %v", err)
	}
	if _, err := tr.Transcode(context.Background(), []byte("nope")); err == nil {
		t.Fatal("expected error")
	}

	counters := map[string]int64{}
	for _, c := range scope.Snapshot().Counters() {
		counters[c.Name()] = c.Value()
	}
	if counters["transcode.fallback"] != 1 {
		t.Errorf("fallback counter = %d", counters["transcode.fallback"])
	}
	if counters["transcode.failed"] != 1 {
		t.Errorf("failed counter = %d", counters["transcode.failed"])
	}
}

func TestTranscoder_CanceledWhileWaiting(t *testing.T) {
	tr := NewTranscoder(Options{Workers: 1}, nil)
	if err := tr.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer tr.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Transcode(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{Quality: 50, FallbackQuality: 70}.withDefaults()
	if o.FallbackQuality >= o.Quality {
		t.Errorf("fallback %d not below quality %d", o.FallbackQuality, o.Quality)
	}
	if o.MaxDimension != DefaultMaxDimension || o.TargetBytes != DefaultTargetBytes {
		t.Errorf("defaults not applied: %+v", o)
	}
}
