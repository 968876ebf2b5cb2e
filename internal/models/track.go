package models

import "time"

// TrackPoint is a single timestamped GPS fix.
type TrackPoint struct {
	Coordinates
	Time time.Time `json:"t"`
}

// Waypoint is a named point of interest recorded along a trip.
// Name and Description are nil when the source did not provide them.
type Waypoint struct {
	Lat         float64   `json:"lat" bson:"lat"`
	Lon         float64   `json:"lon" bson:"lon"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Name        *string   `json:"name" bson:"name"`
	Description *string   `json:"description" bson:"description"`
}

const (
	MaxWaypointName        = 100
	MaxWaypointDescription = 500
)
