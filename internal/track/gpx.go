package track

import (
	"fmt"

	"github.com/mkmilan/travel-server/internal/models"
	"github.com/tkrajina/gpxgo/gpx"
)

// LegacyTrack is a GPX document.
type LegacyTrack struct {
	Raw []byte
}

func (LegacyTrack) variant() Variant { return VariantLegacy }

// parseLegacy flattens every segment of every track, in document order.
func parseLegacy(doc LegacyTrack) (*ParsedTrack, error) {
	if len(doc.Raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}
	g, err := gpx.ParseBytes(doc.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(g.Tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks found", ErrParse)
	}

	parsed := &ParsedTrack{Variant: VariantLegacy}
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				parsed.Points = append(parsed.Points, models.TrackPoint{
					Coordinates: models.Coordinates{Lat: p.Latitude, Lon: p.Longitude},
					Time:        p.Timestamp,
				})
			}
		}
	}
	if len(parsed.Points) == 0 {
		return nil, fmt.Errorf("%w: no track points found", ErrParse)
	}
	for _, w := range g.Waypoints {
		parsed.Waypoints = append(parsed.Waypoints, Waypoint{
			Lat:         w.Latitude,
			Lon:         w.Longitude,
			Time:        w.Timestamp,
			Name:        w.Name,
			Description: w.Description,
		})
	}
	return parsed, nil
}
