// Package ingest turns trip submissions into stored trips.
//
// An ingestion parses the track log, derives its geometry, uploads the raw
// log and the transcoded photos to the blob store and finally persists the
// trip record. Blobs written before a later step fails are deleted again on
// a best-effort basis; blobs that cannot be deleted are reported as orphans.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mkmilan/travel-server/internal/dedupe"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/orphan"
	"github.com/mkmilan/travel-server/internal/pipeline"
	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/mkmilan/travel-server/pkg/imaging"
	"github.com/mkmilan/travel-server/pkg/location"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

// TripStore is the document store contract the service relies on.
type TripStore interface {
	CreateTripRecord(ctx context.Context, rec *models.TripRecord) (string, error)
	FindTripRecordByID(ctx context.Context, id string) (*models.TripRecord, error)
	DeleteTripRecord(ctx context.Context, id string) error
	AppendPhotos(ctx context.Context, id string, blobIDs []string) error
	RemovePhoto(ctx context.Context, id, blobID string) error
	AppendWaypoint(ctx context.Context, id string, wp models.Waypoint) error
}

type Transcoder interface {
	Transcode(ctx context.Context, raw []byte) (*imaging.Result, error)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*location.Location, error)
}

const defaultCompensationTimeout = 30 * time.Second

type Service struct {
	blobs      storage.BlobStore
	trips      TripStore
	transcoder Transcoder
	geocoder   Geocoder
	guard      *dedupe.Guard
	orphans    orphan.Reporter
	metrics    tally.Scope
	limits     Limits

	now                 func() time.Time
	newID               func() string
	compensationTimeout time.Duration

	pipeline *pipeline.Pipeline[ingestion]
	logger   *log.Entry
}

type Option func(*Service)

// WithGeocoder names trip endpoints the submitter left blank.
func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

func WithGuard(g *dedupe.Guard) Option {
	return func(s *Service) { s.guard = g }
}

func WithOrphanReporter(r orphan.Reporter) Option {
	return func(s *Service) { s.orphans = r }
}

func WithMetrics(scope tally.Scope) Option {
	return func(s *Service) { s.metrics = scope }
}

func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Service) { s.compensationTimeout = d }
}

func NewService(blobs storage.BlobStore, trips TripStore, transcoder Transcoder, opts ...Option) *Service {
	s := &Service{
		blobs:               blobs,
		trips:               trips,
		transcoder:          transcoder,
		metrics:             tally.NoopScope,
		limits:              DefaultLimits,
		now:                 time.Now,
		newID:               uuid.NewString,
		compensationTimeout: defaultCompensationTimeout,
		logger:              log.WithField("prefix", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = s.newPipeline()
	return s
}
