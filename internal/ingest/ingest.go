package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getsentry/sentry-go"
	"github.com/mkmilan/travel-server/internal/geo"
	"github.com/mkmilan/travel-server/internal/keys"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/orphan"
	"github.com/mkmilan/travel-server/internal/pipeline"
	"github.com/mkmilan/travel-server/internal/track"
	"github.com/mkmilan/travel-server/pkg/imaging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	stageValidate    = "validate"
	stageParse       = "parse"
	stageClaim       = "claim"
	stageDerive      = "derive"
	stageUploadTrack = "upload-track"
	stageMedia       = "media"
	stagePersist     = "persist"

	geocodeTimeout = 5 * time.Second
)

// ingestion is the state of one submission as it moves through the stages.
type ingestion struct {
	req     Request
	tripID  string
	started time.Time

	parsed  *track.ParsedTrack
	geom    geo.Geometry
	pois    []models.Waypoint
	claimed bool

	trackBlobID  string
	photoBlobIDs []string

	startName string
	endName   string

	record *models.TripRecord
}

// blobIDs lists every blob written so far, track first.
func (it *ingestion) blobIDs() []string {
	ids := make([]string, 0, len(it.photoBlobIDs)+1)
	if it.trackBlobID != "" {
		ids = append(ids, it.trackBlobID)
	}
	for _, id := range it.photoBlobIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) newPipeline() *pipeline.Pipeline[ingestion] {
	return pipeline.New(
		pipeline.NewStage(stageParse, s.parse),
		pipeline.NewStage(stageClaim, s.claim),
		pipeline.NewStage(stageDerive, s.derive),
		pipeline.NewStage(stageUploadTrack, s.uploadTrack),
		pipeline.NewStage(stageMedia, s.uploadPhotos, s.locate),
		pipeline.NewStage(stagePersist, s.persist),
	)
}

// Ingest runs a submission to completion. On failure the returned error is
// an *Error carrying the terminal state, and every blob written for the
// submission has been deleted or reported as an orphan.
func (s *Service) Ingest(ctx context.Context, req Request) (*models.TripRecord, error) {
	sw := s.metrics.SubScope("ingest").Timer("duration").Start()
	defer sw.Stop()

	if err := req.normalize(s.limits); err != nil {
		return nil, s.finish(ctx, nil, &req, rejected(stageValidate, err))
	}

	it := &ingestion{req: req, tripID: s.newID(), started: s.now().UTC()}
	if err := s.pipeline.Run(ctx, it); err != nil {
		return nil, s.finish(ctx, it, &it.req, classify(err))
	}
	return it.record, s.finish(ctx, it, &it.req, nil)
}

// classify maps the failing stage onto a terminal state.
func classify(err error) error {
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		return &Error{State: StatePersistFailed, Err: err}
	}
	switch se.Stage {
	case stageParse, stageClaim, stageDerive:
		return rejected(se.Stage, se.Err)
	case stageUploadTrack:
		return &Error{State: StateStorageFailed, Stage: se.Stage, Err: se.Err}
	case stageMedia:
		if errors.Is(se.Err, imaging.ErrTranscode) {
			return rejected(se.Stage, se.Err)
		}
		return &Error{State: StateStorageFailed, Stage: se.Stage, Err: se.Err}
	}
	return &Error{State: StatePersistFailed, Stage: se.Stage, Err: se.Err}
}

func (s *Service) finish(ctx context.Context, it *ingestion, req *Request, err error) error {
	state := StateOf(err)
	s.metrics.SubScope("ingest").Counter(string(state)).Inc(1)

	fields := log.Fields{"owner": req.OwnerID, "state": state}
	if it != nil {
		fields["trip"] = it.tripID
	}

	if err == nil {
		if it.claimed {
			if err := s.guard.Complete(ctx, req.OwnerID, it.parsed.ClientID, it.tripID); err != nil {
				s.logger.WithFields(fields).WithError(err).Warn("could not record completed submission")
			}
		}
		fields["distance"] = humanize.FormatFloat("#,###.", it.record.DistanceMeters) + " m"
		fields["photos"] = len(it.record.PhotoBlobIDs)
		s.logger.WithFields(fields).Info("trip committed")
		return nil
	}

	if it != nil {
		s.compensate(ctx, req.OwnerID, it.tripID, it.blobIDs())
		if it.claimed {
			if err := s.guard.Release(context.WithoutCancel(ctx), req.OwnerID, it.parsed.ClientID); err != nil {
				s.logger.WithFields(fields).WithError(err).Warn("could not release submission claim")
			}
		}
	}

	if state == StateRejected {
		s.logger.WithFields(fields).WithError(err).Info("trip rejected")
	} else {
		s.logger.WithFields(fields).WithError(err).Error("trip ingestion failed")
		sentry.CaptureException(err)
	}
	return err
}

// compensate deletes blobs written for a failed operation. Delete failures
// are logged and reported as orphans and never replace the caller's error.
func (s *Service) compensate(ctx context.Context, ownerID, tripID string, blobIDs []string) {
	if len(blobIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	scope := s.metrics.SubScope("compensation")
	for _, id := range blobIDs {
		if err := s.blobs.Delete(ctx, id); err != nil {
			scope.Counter("failed").Inc(1)
			s.logger.WithFields(log.Fields{"trip": tripID, "blob": id}).WithError(err).
				Error("compensation could not delete blob")
			s.reportOrphan(ctx, orphan.Event{
				BlobID:  id,
				TripID:  tripID,
				OwnerID: ownerID,
				Reason:  orphan.ReasonCompensation,
				Error:   err.Error(),
			})
			continue
		}
		scope.Counter("deleted").Inc(1)
	}
}

func (s *Service) reportOrphan(ctx context.Context, ev orphan.Event) {
	if s.orphans == nil {
		return
	}
	if err := s.orphans.Report(ctx, ev); err != nil {
		s.logger.WithFields(log.Fields{"blob": ev.BlobID, "trip": ev.TripID}).WithError(err).
			Error("could not report orphan blob")
		sentry.CaptureException(fmt.Errorf("orphan blob %s unreported: %w", ev.BlobID, err))
	}
}

func (s *Service) parse(_ context.Context, it *ingestion) error {
	parsed, err := track.Parse(it.req.Track)
	if err != nil {
		return err
	}
	it.parsed = parsed
	return nil
}

// claim stops a retried client submission from creating a second trip.
// The guard failing open keeps ingestion available without Redis.
func (s *Service) claim(ctx context.Context, it *ingestion) error {
	clientID := it.parsed.ClientID
	if s.guard == nil || clientID == "" {
		return nil
	}
	ok, err := s.guard.Claim(ctx, it.req.OwnerID, clientID)
	if err != nil {
		s.logger.WithField("owner", it.req.OwnerID).WithError(err).Warn("submission guard unavailable")
		return nil
	}
	if !ok {
		if existing, _ := s.guard.Lookup(ctx, it.req.OwnerID, clientID); existing != "" {
			return fmt.Errorf("%w: trip %s", ErrDuplicate, existing)
		}
		return fmt.Errorf("%w: submission %s in progress", ErrDuplicate, clientID)
	}
	it.claimed = true
	return nil
}

func (s *Service) derive(_ context.Context, it *ingestion) error {
	g, err := geo.Derive(it.parsed.Points)
	if err != nil {
		return err
	}
	if err := g.Retime(it.parsed.Start, it.parsed.End); err != nil {
		return err
	}
	it.geom = g
	it.pois = geo.MapWaypoints(it.parsed.Waypoints, it.started)
	return nil
}

func (s *Service) uploadTrack(ctx context.Context, it *ingestion) error {
	body, contentType, ext, err := trackBody(it.req.Track)
	if err != nil {
		return err
	}
	meta := map[string]string{
		metaKind: kindTrack,
		"userId": it.req.OwnerID,
		"tripId": it.tripID,
	}
	if it.req.TrackFilename != "" {
		meta["originalFilename"] = it.req.TrackFilename
	}

	id, err := s.blobs.Upload(ctx, bytes.NewReader(body), keys.Track(it.req.OwnerID, it.started, ext), contentType, meta)
	if err != nil {
		return err
	}
	it.trackBlobID = id
	return nil
}

func trackBody(doc track.Document) ([]byte, string, string, error) {
	switch d := doc.(type) {
	case track.LegacyTrack:
		return d.Raw, "application/gpx+xml", "gpx", nil
	case *track.LegacyTrack:
		return d.Raw, "application/gpx+xml", "gpx", nil
	case track.StructuredTrack, *track.StructuredTrack:
		body, err := json.Marshal(d)
		return body, "application/json", "json", err
	}
	return nil, "", "", fmt.Errorf("unsupported track document %T", doc)
}

func (s *Service) uploadPhotos(ctx context.Context, it *ingestion) error {
	ids, err := s.storePhotos(ctx, it.req.OwnerID, it.tripID, it.req.Photos)
	it.photoBlobIDs = ids
	return err
}

// storePhotos transcodes and uploads photos concurrently. The returned ids
// follow the input order; on error, entries for photos that were not
// stored are empty.
func (s *Service) storePhotos(ctx context.Context, ownerID, tripID string, photos []Photo) ([]string, error) {
	ids := make([]string, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range photos {
		i, p := i, p
		g.Go(func() error {
			res, err := s.transcoder.Transcode(gctx, p.Data)
			if err != nil {
				return fmt.Errorf("photo %d (%s): %w", i, p.Filename, err)
			}
			meta := map[string]string{
				metaKind:           kindPhoto,
				"userId":           ownerID,
				"tripId":           tripID,
				"originalFilename": p.Filename,
				"mimetype":         imaging.ContentType,
				"size":             strconv.Itoa(len(res.Data)),
				"width":            strconv.Itoa(res.Width),
				"height":           strconv.Itoa(res.Height),
				"quality":          strconv.Itoa(res.FinalQuality),
			}
			name := keys.Photo(tripID, p.Filename, s.now(), imaging.Extension)
			id, err := s.blobs.Upload(gctx, bytes.NewReader(res.Data), name, imaging.ContentType, meta)
			if err != nil {
				return fmt.Errorf("photo %d (%s): %w", i, p.Filename, err)
			}
			ids[i] = id
			return nil
		})
	}
	return ids, g.Wait()
}

// locate fills in blank start and end names. Lookup failures only cost
// the name.
func (s *Service) locate(ctx context.Context, it *ingestion) error {
	if s.geocoder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	points := it.parsed.Points
	lookup := func(dst *string, p models.TrackPoint) func() error {
		return func() error {
			loc, err := s.geocoder.Reverse(ctx, p.Lat, p.Lon)
			if err != nil {
				s.logger.WithFields(log.Fields{"trip": it.tripID, "point": p.Coordinates.String()}).
					WithError(err).Debug("reverse geocoding failed")
				return nil
			}
			*dst = truncate(loc.Label(), models.MaxLocationName)
			return nil
		}
	}

	var g errgroup.Group
	if it.req.StartLocationName == "" {
		g.Go(lookup(&it.startName, points[0]))
	}
	if it.req.EndLocationName == "" {
		g.Go(lookup(&it.endName, points[len(points)-1]))
	}
	return g.Wait()
}

func (s *Service) persist(ctx context.Context, it *ingestion) error {
	req := it.req
	title := req.Title
	if title == "" {
		title = models.DefaultTitle(it.geom.Start)
	}

	rec := &models.TripRecord{
		ID:                it.tripID,
		OwnerID:           req.OwnerID,
		Title:             title,
		Description:       req.Description,
		StartLocationName: firstNonEmpty(req.StartLocationName, it.startName),
		EndLocationName:   firstNonEmpty(req.EndLocationName, it.endName),
		Visibility:        req.Visibility,
		TravelMode:        req.TravelMode,
		Format:            it.parsed.Variant.Format(),
		StartTime:         it.geom.Start,
		EndTime:           it.geom.End,
		DurationMillis:    it.geom.DurationMillis,
		DistanceMeters:    it.geom.DistanceMeters,
		RawTrackBlobID:    it.trackBlobID,
		SimplifiedRoute:   it.geom.SimplifiedRoute,
		MapCenter:         it.geom.MapCenter,
		PointsOfInterest:  it.pois,
		PhotoBlobIDs:      append([]string{}, it.photoBlobIDs...),
		CreatedAt:         it.started,
		UpdatedAt:         it.started,
	}

	id, err := s.trips.CreateTripRecord(ctx, rec)
	if err != nil {
		return err
	}
	rec.ID = id
	it.record = rec
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
