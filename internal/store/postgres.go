package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mkmilan/travel-server/internal/db"
	"github.com/mkmilan/travel-server/internal/models"
)

const Schema = `CREATE TABLE IF NOT EXISTS trips (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	start_location_name TEXT NOT NULL DEFAULT '',
	end_location_name TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL,
	travel_mode TEXT NOT NULL,
	format TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	distance_m DOUBLE PRECISION NOT NULL,
	raw_track_blob_id TEXT NOT NULL,
	simplified_route JSONB,
	map_center JSONB NOT NULL,
	points_of_interest JSONB NOT NULL DEFAULT '[]',
	photo_blob_ids TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const tripColumns = `id, owner_id, title, description, start_location_name, end_location_name,
	visibility, travel_mode, format, start_time, end_time, duration_ms, distance_m,
	raw_track_blob_id, simplified_route, map_center, points_of_interest, photo_blob_ids,
	created_at, updated_at`

// PostgresTripStore keeps the route, map center and points of interest as JSONB.
type PostgresTripStore struct {
	db db.Querier
}

func NewPostgresTripStore(q db.Querier) *PostgresTripStore {
	return &PostgresTripStore{db: q}
}

func (s *PostgresTripStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func (s *PostgresTripStore) CreateTripRecord(ctx context.Context, rec *models.TripRecord) (string, error) {
	var route []byte
	if rec.SimplifiedRoute != nil {
		var err error
		if route, err = json.Marshal(rec.SimplifiedRoute); err != nil {
			return "", fmt.Errorf("encode route: %w", err)
		}
	}
	center, err := json.Marshal(rec.MapCenter)
	if err != nil {
		return "", fmt.Errorf("encode map center: %w", err)
	}
	pois, err := json.Marshal(nonNil(rec.PointsOfInterest))
	if err != nil {
		return "", fmt.Errorf("encode points of interest: %w", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO trips (`+tripColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		rec.ID, rec.OwnerID, rec.Title, rec.Description, rec.StartLocationName, rec.EndLocationName,
		string(rec.Visibility), string(rec.TravelMode), string(rec.Format),
		rec.StartTime, rec.EndTime, rec.DurationMillis, rec.DistanceMeters,
		rec.RawTrackBlobID, route, center, pois, nonNil(rec.PhotoBlobIDs),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	return rec.ID, nil
}

func (s *PostgresTripStore) FindTripRecordByID(ctx context.Context, id string) (*models.TripRecord, error) {
	var (
		rec                      models.TripRecord
		visibility, mode, format string
		route, center, pois      []byte
	)
	err := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id).Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Description, &rec.StartLocationName, &rec.EndLocationName,
		&visibility, &mode, &format,
		&rec.StartTime, &rec.EndTime, &rec.DurationMillis, &rec.DistanceMeters,
		&rec.RawTrackBlobID, &route, &center, &pois, &rec.PhotoBlobIDs,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find trip %s: %w", id, err)
	}

	rec.Visibility = models.Visibility(visibility)
	rec.TravelMode = models.TravelMode(mode)
	rec.Format = models.TrackFormat(format)
	if len(route) > 0 {
		rec.SimplifiedRoute = &models.LineString{}
		if err := json.Unmarshal(route, rec.SimplifiedRoute); err != nil {
			return nil, fmt.Errorf("decode route of %s: %w", id, err)
		}
	}
	if err := json.Unmarshal(center, &rec.MapCenter); err != nil {
		return nil, fmt.Errorf("decode map center of %s: %w", id, err)
	}
	if err := json.Unmarshal(pois, &rec.PointsOfInterest); err != nil {
		return nil, fmt.Errorf("decode points of interest of %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresTripStore) DeleteTripRecord(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trip %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func (s *PostgresTripStore) AppendPhotos(ctx context.Context, id string, blobIDs []string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trips SET photo_blob_ids = photo_blob_ids || $2::text[], updated_at = now() WHERE id = $1`,
		id, blobIDs)
	if err != nil {
		return fmt.Errorf("append photos to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func (s *PostgresTripStore) RemovePhoto(ctx context.Context, id, blobID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trips SET photo_blob_ids = array_remove(photo_blob_ids, $2), updated_at = now() WHERE id = $1`,
		id, blobID)
	if err != nil {
		return fmt.Errorf("remove photo %s from %s: %w", blobID, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func (s *PostgresTripStore) AppendWaypoint(ctx context.Context, id string, wp models.Waypoint) error {
	body, err := json.Marshal([]models.Waypoint{wp})
	if err != nil {
		return fmt.Errorf("encode waypoint: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE trips SET points_of_interest = points_of_interest || $2::jsonb, updated_at = now() WHERE id = $1`,
		id, body)
	if err != nil {
		return fmt.Errorf("append waypoint to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
