package models

import "fmt"

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// Valid reports whether the position lies inside the WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// LineString is a GeoJSON line. Coordinates are [lon, lat] pairs.
type LineString struct {
	Type        string       `json:"type" bson:"type"`
	Coordinates [][2]float64 `json:"coordinates" bson:"coordinates"`
}

// NewLineString builds a GeoJSON LineString from [lon, lat] pairs.
func NewLineString(coords [][2]float64) *LineString {
	return &LineString{Type: "LineString", Coordinates: coords}
}
