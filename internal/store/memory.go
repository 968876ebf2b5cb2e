package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
)

// MemoryTripStore keeps trip records in process memory. It backs local
// development (TRIP_STORE=memory) and handler tests.
type MemoryTripStore struct {
	mu    sync.RWMutex
	trips map[string]models.TripRecord
}

func NewMemoryTripStore() *MemoryTripStore {
	return &MemoryTripStore{trips: make(map[string]models.TripRecord)}
}

func clone(rec models.TripRecord) models.TripRecord {
	rec.PointsOfInterest = nonNil(slices.Clone(rec.PointsOfInterest))
	rec.PhotoBlobIDs = nonNil(slices.Clone(rec.PhotoBlobIDs))
	return rec
}

func (s *MemoryTripStore) CreateTripRecord(_ context.Context, rec *models.TripRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[rec.ID] = clone(*rec)
	return rec.ID, nil
}

func (s *MemoryTripStore) FindTripRecordByID(_ context.Context, id string) (*models.TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	rec = clone(rec)
	return &rec, nil
}

func (s *MemoryTripStore) DeleteTripRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[id]; !ok {
		return ErrTripNotFound
	}
	delete(s.trips, id)
	return nil
}

func (s *MemoryTripStore) AppendPhotos(_ context.Context, id string, blobIDs []string) error {
	return s.update(id, func(rec *models.TripRecord) {
		rec.PhotoBlobIDs = append(rec.PhotoBlobIDs, blobIDs...)
	})
}

func (s *MemoryTripStore) RemovePhoto(_ context.Context, id, blobID string) error {
	return s.update(id, func(rec *models.TripRecord) {
		rec.PhotoBlobIDs = slices.DeleteFunc(rec.PhotoBlobIDs, func(p string) bool { return p == blobID })
	})
}

func (s *MemoryTripStore) AppendWaypoint(_ context.Context, id string, wp models.Waypoint) error {
	return s.update(id, func(rec *models.TripRecord) {
		rec.PointsOfInterest = append(rec.PointsOfInterest, wp)
	})
}

func (s *MemoryTripStore) update(id string, change func(*models.TripRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trips[id]
	if !ok {
		return ErrTripNotFound
	}
	rec = clone(rec)
	change(&rec)
	rec.UpdatedAt = time.Now().UTC()
	s.trips[id] = rec
	return nil
}
