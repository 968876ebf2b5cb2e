package models

import (
	"fmt"
	"time"
)

type Visibility string

const (
	VisibilityPublic        Visibility = "public"
	VisibilityFollowersOnly Visibility = "followers_only"
	VisibilityPrivate       Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowersOnly, VisibilityPrivate:
		return true
	}
	return false
}

type TravelMode string

const (
	TravelModeMotorhome  TravelMode = "motorhome"
	TravelModeCampervan  TravelMode = "campervan"
	TravelModeCar        TravelMode = "car"
	TravelModeMotorcycle TravelMode = "motorcycle"
	TravelModeBicycle    TravelMode = "bicycle"
	TravelModeWalking    TravelMode = "walking"
)

func (m TravelMode) Valid() bool {
	switch m {
	case TravelModeMotorhome, TravelModeCampervan, TravelModeCar,
		TravelModeMotorcycle, TravelModeBicycle, TravelModeWalking:
		return true
	}
	return false
}

// TrackFormat records which input shape a trip was ingested from.
type TrackFormat string

const (
	FormatGPX  TrackFormat = "gpx"
	FormatJSON TrackFormat = "json"
)

const (
	MaxTitle        = 100
	MaxDescription  = 2000
	MaxLocationName = 100
)

// TripRecord is the persisted summary of an ingested trip.
type TripRecord struct {
	ID                string      `json:"id" bson:"_id"`
	OwnerID           string      `json:"ownerId" bson:"ownerId"`
	Title             string      `json:"title" bson:"title"`
	Description       string      `json:"description" bson:"description"`
	StartLocationName string      `json:"startLocationName,omitempty" bson:"startLocationName,omitempty"`
	EndLocationName   string      `json:"endLocationName,omitempty" bson:"endLocationName,omitempty"`
	Visibility        Visibility  `json:"visibility" bson:"visibility"`
	TravelMode        TravelMode  `json:"travelMode" bson:"travelMode"`
	Format            TrackFormat `json:"format" bson:"format"`

	StartTime      time.Time `json:"startTime" bson:"startTime"`
	EndTime        time.Time `json:"endTime" bson:"endTime"`
	DurationMillis int64     `json:"durationMillis" bson:"durationMillis"`
	DistanceMeters float64   `json:"distanceMeters" bson:"distanceMeters"`

	RawTrackBlobID   string      `json:"rawTrackBlobId,omitempty" bson:"rawTrackBlobId"`
	SimplifiedRoute  *LineString `json:"simplifiedRoute,omitempty" bson:"simplifiedRoute,omitempty"`
	MapCenter        Coordinates `json:"mapCenter" bson:"mapCenter"`
	PointsOfInterest []Waypoint  `json:"pointsOfInterest" bson:"pointsOfInterest"`
	PhotoBlobIDs     []string    `json:"photoBlobIds" bson:"photoBlobIds"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Public returns a copy safe for general listings: the raw track reference
// is only handed out through the dedicated download path.
func (t TripRecord) Public() TripRecord {
	t.RawTrackBlobID = ""
	return t
}

// BlobIDs lists every blob the record owns, track first.
func (t TripRecord) BlobIDs() []string {
	ids := make([]string, 0, len(t.PhotoBlobIDs)+1)
	if t.RawTrackBlobID != "" {
		ids = append(ids, t.RawTrackBlobID)
	}
	return append(ids, t.PhotoBlobIDs...)
}

// DefaultTitle is used when the uploader gives the trip no title.
func DefaultTitle(start time.Time) string {
	return fmt.Sprintf("Trip on %s", start.Format("Jan 2, 2006"))
}
