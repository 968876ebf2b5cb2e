// Package imaging re-encodes uploaded photos so they fit a maximum
// dimension and, on a best-effort basis, a byte budget.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
	"golang.org/x/sync/semaphore"

	// registers WebP input
	_ "golang.org/x/image/webp"
)

var ErrTranscode = errors.New("image could not be transcoded")

const (
	DefaultMaxDimension    = 1920
	DefaultTargetBytes     = 1 << 20
	DefaultQuality         = 80
	DefaultFallbackQuality = 65

	ContentType = "image/jpeg"
	Extension   = "jpg"
)

// Result is a transcoded photo.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	FinalQuality int
}

// Options controls a Transcoder. Zero fields take the defaults above.
type Options struct {
	MaxDimension    int
	TargetBytes     int
	Quality         int
	FallbackQuality int
	// Workers bounds concurrent transcodes. Zero means unbounded.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.TargetBytes <= 0 {
		o.TargetBytes = DefaultTargetBytes
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.FallbackQuality <= 0 || o.FallbackQuality >= o.Quality {
		o.FallbackQuality = min(DefaultFallbackQuality, o.Quality-1)
	}
	return o
}

// Transcoder runs transcodes on a bounded number of workers.
type Transcoder struct {
	opts    Options
	sem     *semaphore.Weighted
	metrics tally.Scope
}

func NewTranscoder(opts Options, scope tally.Scope) *Transcoder {
	opts = opts.withDefaults()
	if scope == nil {
		scope = tally.NoopScope
	}
	t := &Transcoder{opts: opts, metrics: scope.SubScope("transcode")}
	if opts.Workers > 0 {
		t.sem = semaphore.NewWeighted(int64(opts.Workers))
	}
	return t
}

// Transcode waits for a free worker, then transcodes raw.
func (t *Transcoder) Transcode(ctx context.Context, raw []byte) (*Result, error) {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer t.sem.Release(1)
	}

	sw := t.metrics.Timer("duration").Start()
	defer sw.Stop()

	res, err := transcode(raw, t.opts)
	if err != nil {
		t.metrics.Counter("failed").Inc(1)
		return nil, err
	}
	if res.FinalQuality != t.opts.Quality {
		t.metrics.Counter("fallback").Inc(1)
	}
	return res, nil
}

// Transcode decodes raw, fits it inside maxDimension and encodes it as
// JPEG. When the first encode exceeds targetBytes it is redone once at a
// lower quality and that result is returned whatever its size.
func Transcode(raw []byte, maxDimension, targetBytes int) (*Result, error) {
	return transcode(raw, Options{MaxDimension: maxDimension, TargetBytes: targetBytes}.withDefaults())
}

func transcode(raw []byte, opts Options) (*Result, error) {
	start := time.Now()

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscode, err)
	}
	img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)

	quality := opts.Quality
	data, err := encode(img, quality)
	if err != nil {
		return nil, err
	}
	if len(data) > opts.TargetBytes {
		log.WithFields(log.Fields{
			"prefix":  "imaging",
			"size":    humanize.Bytes(uint64(len(data))),
			"target":  humanize.Bytes(uint64(opts.TargetBytes)),
			"quality": opts.FallbackQuality,
		}).Debug("photo over budget, re-encoding")

		quality = opts.FallbackQuality
		if data, err = encode(img, quality); err != nil {
			return nil, err
		}
	}

	b := img.Bounds()
	log.WithFields(log.Fields{
		"prefix":  "imaging",
		"input":   humanize.Bytes(uint64(len(raw))),
		"output":  humanize.Bytes(uint64(len(data))),
		"quality": quality,
		"took":    time.Since(start),
	}).Debugf("transcoded photo to %dx%d", b.Dx(), b.Dy())

	return &Result{
		Data:         data,
		Width:        b.Dx(),
		Height:       b.Dy(),
		FinalQuality: quality,
	}, nil
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrTranscode, err)
	}
	return buf.Bytes(), nil
}
