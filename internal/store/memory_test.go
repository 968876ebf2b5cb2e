package store

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/mkmilan/travel-server/internal/models"
)

func TestMemoryTripStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTripStore()

	id, err := s.CreateTripRecord(ctx, &models.TripRecord{ID: "t1", OwnerID: "u1"})
	if err != nil || id != "t1" {
		t.Fatalf("CreateTripRecord() = %q, %v", id, err)
	}

	if err := s.AppendPhotos(ctx, "t1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("AppendPhotos() error: %v", err)
	}
	if err := s.AppendWaypoint(ctx, "t1", models.Waypoint{Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("AppendWaypoint() error: %v", err)
	}

	if err := s.RemovePhoto(ctx, "t1", "p1"); err != nil {
		t.Fatalf("RemovePhoto() error: %v", err)
	}
	if err := s.AppendPhotos(ctx, "t1", []string{"p1"}); err != nil {
		t.Fatalf("AppendPhotos() error: %v", err)
	}

	rec, err := s.FindTripRecordByID(ctx, "t1")
	if err != nil {
		t.Fatalf("FindTripRecordByID() error: %v", err)
	}
	if !slices.Equal(rec.PhotoBlobIDs, []string{"p2", "p1"}) || len(rec.PointsOfInterest) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set by append")
	}

	rec.PhotoBlobIDs[0] = "changed"
	again, _ := s.FindTripRecordByID(ctx, "t1")
	if again.PhotoBlobIDs[0] != "p2" {
		t.Error("returned record aliases stored state")
	}

	if err := s.DeleteTripRecord(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTripRecord() error: %v", err)
	}
	for name, err := range map[string]error{
		"find":   func() error { _, err := s.FindTripRecordByID(ctx, "t1"); return err }(),
		"delete": s.DeleteTripRecord(ctx, "t1"),
		"photos": s.AppendPhotos(ctx, "t1", []string{"p3"}),
		"remove": s.RemovePhoto(ctx, "t1", "p2"),
	} {
		if !errors.Is(err, ErrTripNotFound) {
			t.Errorf("%s after delete = %v, want ErrTripNotFound", name, err)
		}
	}
}
