package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mkmilan/travel-server/internal/keys"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/orphan"
	"github.com/mkmilan/travel-server/internal/storage"
	"github.com/mkmilan/travel-server/pkg/imaging"
	log "github.com/sirupsen/logrus"
)

// visibleTo reports whether viewerID may see rec. Follower relations are not
// tracked here, so followers-only trips are treated as private.
func visibleTo(rec *models.TripRecord, viewerID string) bool {
	return rec.Visibility == models.VisibilityPublic || rec.OwnerID == viewerID
}

// GetTrip returns the public view of a trip. Trips the viewer may not see
// are reported as not found.
func (s *Service) GetTrip(ctx context.Context, viewerID, tripID string) (*models.TripRecord, error) {
	rec, err := s.trips.FindTripRecordByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !visibleTo(rec, viewerID) {
		return nil, ErrTripNotFound
	}
	pub := rec.Public()
	return &pub, nil
}

// OpenRawTrack opens the uploaded track log of a trip together with the
// filename it should be downloaded under. The caller closes the download.
func (s *Service) OpenRawTrack(ctx context.Context, viewerID, tripID string) (*storage.Download, string, error) {
	rec, err := s.trips.FindTripRecordByID(ctx, tripID)
	if err != nil {
		return nil, "", err
	}
	if !visibleTo(rec, viewerID) {
		return nil, "", ErrTripNotFound
	}
	if rec.RawTrackBlobID == "" {
		return nil, "", fmt.Errorf("%w: trip %s has no track log", storage.ErrNotFound, tripID)
	}

	dl, err := s.blobs.Download(ctx, rec.RawTrackBlobID)
	if err != nil {
		return nil, "", err
	}
	ext := string(rec.Format)
	if ext == "" {
		ext = string(models.FormatGPX)
	}
	return dl, keys.TrackDownload(rec.Title, rec.ID, ext), nil
}

// Blob metadata naming what a blob holds.
const (
	metaKind  = "kind"
	kindTrack = "track"
	kindPhoto = "photo"
)

// OpenPhoto opens a stored photo for viewerID. Only photos still attached
// to a trip the viewer may see are served; anything else, track logs
// included, is reported as not found. The caller closes the download.
func (s *Service) OpenPhoto(ctx context.Context, viewerID, blobID string) (*storage.Download, error) {
	dl, err := s.blobs.Download(ctx, blobID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPhoto(ctx, viewerID, blobID, dl.Info()); err != nil {
		dl.Close()
		return nil, err
	}
	return dl, nil
}

func (s *Service) checkPhoto(ctx context.Context, viewerID, blobID string, info storage.BlobInfo) error {
	notFound := fmt.Errorf("%w: photo %s", storage.ErrNotFound, blobID)
	if info.Get(metaKind) != kindPhoto || info.ContentType != imaging.ContentType {
		return notFound
	}
	rec, err := s.trips.FindTripRecordByID(ctx, info.Get("tripId"))
	if errors.Is(err, ErrTripNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	if !visibleTo(rec, viewerID) || !slices.Contains(rec.PhotoBlobIDs, blobID) {
		return notFound
	}
	return nil
}

// DeleteTrip removes a trip and then its blobs. Deleting a trip that does
// not exist succeeds. Blobs that cannot be removed are reported as orphans.
func (s *Service) DeleteTrip(ctx context.Context, ownerID, tripID string) error {
	rec, err := s.trips.FindTripRecordByID(ctx, tripID)
	if errors.Is(err, ErrTripNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := s.trips.DeleteTripRecord(ctx, tripID); err != nil && !errors.Is(err, ErrTripNotFound) {
		return err
	}

	for _, id := range rec.BlobIDs() {
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.WithFields(log.Fields{"trip": tripID, "blob": id}).WithError(err).
				Warn("could not delete blob of deleted trip")
			s.reportOrphan(ctx, orphan.Event{
				BlobID:  id,
				TripID:  tripID,
				OwnerID: ownerID,
				Reason:  orphan.ReasonTripDeleted,
				Error:   err.Error(),
			})
		}
	}
	s.logger.WithFields(log.Fields{"trip": tripID, "owner": ownerID}).Info("trip deleted")
	return nil
}

// AddPhotos transcodes and attaches photos to an existing trip. The count
// limit applies to the photos of one call.
func (s *Service) AddPhotos(ctx context.Context, ownerID, tripID string, photos []Photo) (*models.TripRecord, error) {
	if len(photos) == 0 {
		return nil, rejected(stageValidate, invalid("no photos uploaded"))
	}
	if err := checkPhotos(photos, s.limits); err != nil {
		return nil, rejected(stageValidate, err)
	}
	rec, err := s.ownedTrip(ctx, ownerID, tripID)
	if err != nil {
		return nil, err
	}

	ids, err := s.storePhotos(ctx, ownerID, tripID, photos)
	if err != nil {
		s.compensate(ctx, ownerID, tripID, compact(ids))
		if errors.Is(err, imaging.ErrTranscode) {
			return nil, rejected(stageMedia, err)
		}
		return nil, &Error{State: StateStorageFailed, Stage: stageMedia, Err: err}
	}

	if err := s.trips.AppendPhotos(ctx, tripID, ids); err != nil {
		s.compensate(ctx, ownerID, tripID, ids)
		if errors.Is(err, ErrTripNotFound) {
			return nil, err
		}
		return nil, &Error{State: StatePersistFailed, Stage: stagePersist, Err: err}
	}

	rec.PhotoBlobIDs = append(rec.PhotoBlobIDs, ids...)
	rec.UpdatedAt = s.now().UTC()
	pub := rec.Public()
	return &pub, nil
}

// DeleteTripPhoto detaches a photo from its trip and then deletes the blob.
// A blob that cannot be deleted is reported as an orphan.
func (s *Service) DeleteTripPhoto(ctx context.Context, ownerID, tripID, photoID string) error {
	rec, err := s.ownedTrip(ctx, ownerID, tripID)
	if err != nil {
		return err
	}
	if !slices.Contains(rec.PhotoBlobIDs, photoID) {
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, photoID)
	}

	if err := s.trips.RemovePhoto(ctx, tripID, photoID); err != nil {
		if errors.Is(err, ErrTripNotFound) {
			return err
		}
		return &Error{State: StatePersistFailed, Stage: stagePersist, Err: err}
	}

	logger := s.logger.WithFields(log.Fields{"trip": tripID, "blob": photoID})
	if err := s.blobs.Delete(ctx, photoID); err != nil {
		logger.WithError(err).Warn("could not delete removed photo")
		s.reportOrphan(ctx, orphan.Event{
			BlobID:  photoID,
			TripID:  tripID,
			OwnerID: ownerID,
			Reason:  orphan.ReasonPhotoDeleted,
			Error:   err.Error(),
		})
	}
	logger.Info("photo deleted")
	return nil
}

// AddWaypoint attaches a point of interest to an existing trip.
func (s *Service) AddWaypoint(ctx context.Context, ownerID, tripID string, in WaypointInput) (*models.Waypoint, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.validate(); err != nil {
		return nil, rejected(stageValidate, err)
	}
	if _, err := s.ownedTrip(ctx, ownerID, tripID); err != nil {
		return nil, err
	}

	wp := models.Waypoint{
		Lat:       in.Lat,
		Lon:       in.Lon,
		Timestamp: s.now().UTC(),
	}
	if in.Name != "" {
		wp.Name = &in.Name
	}
	if in.Description != "" {
		wp.Description = &in.Description
	}
	if err := s.trips.AppendWaypoint(ctx, tripID, wp); err != nil {
		if errors.Is(err, ErrTripNotFound) {
			return nil, err
		}
		return nil, &Error{State: StatePersistFailed, Stage: stagePersist, Err: err}
	}
	return &wp, nil
}

func (s *Service) ownedTrip(ctx context.Context, ownerID, tripID string) (*models.TripRecord, error) {
	rec, err := s.trips.FindTripRecordByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return rec, nil
}

func compact(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
