package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const tripsCollection = "trips"

type MongoTripStore struct {
	trips *mongo.Collection
}

func NewMongoTripStore(db *mongo.Database) *MongoTripStore {
	return &MongoTripStore{trips: db.Collection(tripsCollection)}
}

func (s *MongoTripStore) CreateTripRecord(ctx context.Context, rec *models.TripRecord) (string, error) {
	doc := *rec
	doc.PointsOfInterest = nonNil(doc.PointsOfInterest)
	doc.PhotoBlobIDs = nonNil(doc.PhotoBlobIDs)
	if _, err := s.trips.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	return rec.ID, nil
}

func (s *MongoTripStore) FindTripRecordByID(ctx context.Context, id string) (*models.TripRecord, error) {
	var rec models.TripRecord
	err := s.trips.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find trip %s: %w", id, err)
	}
	return &rec, nil
}

func (s *MongoTripStore) DeleteTripRecord(ctx context.Context, id string) error {
	res, err := s.trips.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete trip %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrTripNotFound
	}
	return nil
}

func (s *MongoTripStore) AppendPhotos(ctx context.Context, id string, blobIDs []string) error {
	return s.update(ctx, id, bson.M{
		"$push": bson.M{"photoBlobIds": bson.M{"$each": blobIDs}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
}

// RemovePhoto drops one photo reference. Removing an absent reference from
// an existing trip is not an error.
func (s *MongoTripStore) RemovePhoto(ctx context.Context, id, blobID string) error {
	return s.update(ctx, id, bson.M{
		"$pull": bson.M{"photoBlobIds": blobID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (s *MongoTripStore) AppendWaypoint(ctx context.Context, id string, wp models.Waypoint) error {
	return s.update(ctx, id, bson.M{
		"$push": bson.M{"pointsOfInterest": wp},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (s *MongoTripStore) update(ctx context.Context, id string, change bson.M) error {
	res, err := s.trips.UpdateOne(ctx, bson.M{"_id": id}, change)
	if err != nil {
		return fmt.Errorf("update trip %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrTripNotFound
	}
	return nil
}
