package track

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
)

// StructuredTrack is the segment list recorded by the mobile client.
type StructuredTrack struct {
	TripID    string          `json:"tripId"`
	StartTime Instant         `json:"startTime"`
	Segments  []Segment       `json:"segments"`
	POIs      []StructuredPOI `json:"pois"`
}

func (StructuredTrack) variant() Variant { return VariantStructured }

type Segment struct {
	Track   []StructuredPoint `json:"track"`
	EndTime Instant           `json:"endTime"`
}

type StructuredPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Time Instant `json:"t"`
}

type StructuredPOI struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp Instant `json:"timestamp"`
	Name      string  `json:"name"`
	Note      string  `json:"note"`
}

// Instant is a timestamp sent either as an RFC 3339 string or as epoch
// milliseconds. Null and absent values decode to the zero time.
type Instant struct {
	time.Time
}

func (i *Instant) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		i.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			i.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		i.Time = t
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimestamp, b)
	}
	i.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.Time.Format(time.RFC3339Nano))
}

// DecodeStructured reads a StructuredTrack from its JSON encoding.
func DecodeStructured(data []byte) (*StructuredTrack, error) {
	var doc StructuredTrack
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &doc, nil
}

func parseStructured(doc StructuredTrack) (*ParsedTrack, error) {
	if len(doc.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments found", ErrParse)
	}

	parsed := &ParsedTrack{
		Variant:  VariantStructured,
		Start:    doc.StartTime.Time,
		ClientID: doc.TripID,
	}
	for _, seg := range doc.Segments {
		for _, p := range seg.Track {
			parsed.Points = append(parsed.Points, models.TrackPoint{
				Coordinates: models.Coordinates{Lat: p.Lat, Lon: p.Lon},
				Time:        p.Time.Time,
			})
		}
	}
	parsed.End = doc.Segments[len(doc.Segments)-1].EndTime.Time

	for _, poi := range doc.POIs {
		parsed.Waypoints = append(parsed.Waypoints, Waypoint{
			Lat:         poi.Lat,
			Lon:         poi.Lon,
			Time:        poi.Timestamp.Time,
			Name:        poi.Name,
			Description: poi.Note,
		})
	}
	return parsed, nil
}
