// Package track turns uploaded track logs into an ordered list of
// validated GPS fixes plus any named waypoints.
//
// Two input shapes are accepted: GPX documents as exported by most
// devices, and the segment list the mobile client records natively.
// Both normalize to a ParsedTrack.
package track

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
)

var (
	ErrParse             = errors.New("track could not be parsed")
	ErrInsufficientData  = errors.New("track needs at least two points")
	ErrInvalidTimestamp  = errors.New("track has an invalid timestamp")
	ErrInvalidCoordinate = errors.New("track has an out of range coordinate")
)

// Variant records which input shape produced a ParsedTrack.
type Variant int

const (
	VariantLegacy Variant = iota + 1
	VariantStructured
)

func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "gpx"
	case VariantStructured:
		return "json"
	}
	return "unknown"
}

// Format maps the variant onto the tag stored with a trip.
func (v Variant) Format() models.TrackFormat {
	if v == VariantStructured {
		return models.FormatJSON
	}
	return models.FormatGPX
}

// Document is a raw track in one of the supported shapes.
type Document interface {
	variant() Variant
}

// Waypoint is a point of interest as found in the source. Time is zero and
// Name/Description are empty when the source omits them.
type Waypoint struct {
	Lat         float64
	Lon         float64
	Time        time.Time
	Name        string
	Description string
}

// ParsedTrack is the normalized result of Parse.
type ParsedTrack struct {
	Variant   Variant
	Points    []models.TrackPoint
	Waypoints []Waypoint
	// Start and End are the trip bounds. They come from the first and last
	// fix unless the source declares its own.
	Start time.Time
	End   time.Time
	// ClientID is the submitter's own id for the trip, when it sent one.
	ClientID string
}

// Parse dispatches on the document shape.
func Parse(doc Document) (*ParsedTrack, error) {
	var (
		parsed *ParsedTrack
		err    error
	)
	switch d := doc.(type) {
	case LegacyTrack:
		parsed, err = parseLegacy(d)
	case *LegacyTrack:
		parsed, err = parseLegacy(*d)
	case StructuredTrack:
		parsed, err = parseStructured(d)
	case *StructuredTrack:
		parsed, err = parseStructured(*d)
	default:
		return nil, fmt.Errorf("%w: unsupported document %T", ErrParse, doc)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func validate(p *ParsedTrack) error {
	if len(p.Points) < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientData, len(p.Points))
	}
	for i, pt := range p.Points {
		if !validCoordinate(pt.Lat, pt.Lon) {
			return fmt.Errorf("%w: point %d (%v)", ErrInvalidCoordinate, i, pt.Coordinates)
		}
	}
	for i, wp := range p.Waypoints {
		if !validCoordinate(wp.Lat, wp.Lon) {
			return fmt.Errorf("%w: waypoint %d", ErrInvalidCoordinate, i)
		}
	}

	first, last := p.Points[0], p.Points[len(p.Points)-1]
	if p.Start.IsZero() {
		p.Start = first.Time
	}
	if p.End.IsZero() {
		p.End = last.Time
	}
	if !validInstant(p.Start) {
		return fmt.Errorf("%w: start", ErrInvalidTimestamp)
	}
	if !validInstant(p.End) {
		return fmt.Errorf("%w: end", ErrInvalidTimestamp)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: end %s precedes start %s", ErrInvalidTimestamp,
			p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return models.Coordinates{Lat: lat, Lon: lon}.Valid()
}

// validInstant rejects the zero time and years no device could record.
func validInstant(t time.Time) bool {
	return !t.IsZero() && t.Year() >= 1970 && t.Year() < 10000
}
