package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
	"github.com/pashagolub/pgxmock/v3"
)

var tripRowColumns = []string{
	"id", "owner_id", "title", "description", "start_location_name", "end_location_name",
	"visibility", "travel_mode", "format", "start_time", "end_time", "duration_ms", "distance_m",
	"raw_track_blob_id", "simplified_route", "map_center", "points_of_interest", "photo_blob_ids",
	"created_at", "updated_at",
}

func TestPostgresCreateAndFindTrip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	name := "Lake"
	rec := &models.TripRecord{
		ID:              "trip-1",
		OwnerID:         "user-1",
		Title:           "Alps",
		Visibility:      models.VisibilityPublic,
		TravelMode:      models.TravelModeMotorhome,
		Format:          models.FormatGPX,
		StartTime:       start,
		EndTime:         end,
		DurationMillis:  60000,
		DistanceMeters:  1000,
		RawTrackBlobID:  "blob-1",
		SimplifiedRoute: models.NewLineString([][2]float64{{7, 46}, {7, 46.01}}),
		MapCenter:       models.Coordinates{Lat: 46, Lon: 7},
		PointsOfInterest: []models.Waypoint{
			{Lat: 46, Lon: 7, Timestamp: start, Name: &name},
		},
		CreatedAt: start,
		UpdatedAt: start,
	}

	mock.ExpectExec(`INSERT INTO trips`).
		WithArgs("trip-1", "user-1", "Alps", "", "", "", "public", "motorhome", "gpx",
			start, end, int64(60000), 1000.0, "blob-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), []string{}, start, start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewPostgresTripStore(mock)
	id, err := svc.CreateTripRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	if id != "trip-1" {
		t.Fatalf("id = %s", id)
	}

	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows(tripRowColumns).AddRow(
			"trip-1", "user-1", "Alps", "", "", "",
			"public", "motorhome", "gpx", start, end, int64(60000), 1000.0,
			"blob-1",
			[]byte(`{"type":"LineString","coordinates":[[7,46],[7,46.01]]}`),
			[]byte(`{"lat":46,"lon":7}`),
			[]byte(`[{"lat":46,"lon":7,"timestamp":"2024-05-01T10:00:00Z","name":"Lake","description":null}]`),
			[]string{"p1"},
			start, start))

	loaded, err := svc.FindTripRecordByID(context.Background(), "trip-1")
	if err != nil {
		t.Fatalf("find trip: %v", err)
	}
	if loaded.Visibility != models.VisibilityPublic || loaded.Format != models.FormatGPX {
		t.Fatalf("enums not restored: %+v", loaded)
	}
	if loaded.SimplifiedRoute == nil || len(loaded.SimplifiedRoute.Coordinates) != 2 {
		t.Fatalf("route not decoded: %+v", loaded.SimplifiedRoute)
	}
	if len(loaded.PointsOfInterest) != 1 || *loaded.PointsOfInterest[0].Name != "Lake" || loaded.PointsOfInterest[0].Description != nil {
		t.Fatalf("points of interest not decoded: %+v", loaded.PointsOfInterest)
	}
	if loaded.MapCenter.Lat != 46 || len(loaded.PhotoBlobIDs) != 1 {
		t.Fatalf("unexpected trip loaded: %+v", loaded)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFindMissingTrip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, owner_id`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(tripRowColumns))

	_, err = NewPostgresTripStore(mock).FindTripRecordByID(context.Background(), "nope")
	if !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

func TestPostgresUpdatesAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewPostgresTripStore(mock)

	mock.ExpectExec(`UPDATE trips SET photo_blob_ids`).
		WithArgs("trip-1", []string{"p2", "p3"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := svc.AppendPhotos(context.Background(), "trip-1", []string{"p2", "p3"}); err != nil {
		t.Fatalf("append photos: %v", err)
	}

	mock.ExpectExec(`UPDATE trips SET photo_blob_ids = array_remove`).
		WithArgs("trip-1", "p2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := svc.RemovePhoto(context.Background(), "trip-1", "p2"); err != nil {
		t.Fatalf("remove photo: %v", err)
	}

	mock.ExpectExec(`UPDATE trips SET photo_blob_ids = array_remove`).
		WithArgs("trip-9", "p2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := svc.RemovePhoto(context.Background(), "trip-9", "p2"); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE trips SET points_of_interest`).
		WithArgs("trip-2", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := svc.AppendWaypoint(context.Background(), "trip-2", models.Waypoint{Lat: 1, Lon: 2}); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM trips`).
		WithArgs("trip-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.DeleteTripRecord(context.Background(), "trip-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectExec(`DELETE FROM trips`).
		WithArgs("trip-1").
		WillReturnError(errors.New("connection reset"))
	if err := svc.DeleteTripRecord(context.Background(), "trip-1"); err == nil || errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected wrapped connection error, got %v", err)
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS trips`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
