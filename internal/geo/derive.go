// Package geo derives trip geometry from a parsed track: length, time
// bounds, a simplified route for map display and a map center.
package geo

import (
	"fmt"
	"time"

	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/track"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/simplify"
)

// SimplifyTolerance is the Douglas-Peucker threshold in degrees, about 10 m.
const SimplifyTolerance = 0.0001

// Geometry is everything Derive computes for a track.
type Geometry struct {
	DistanceMeters float64
	Start          time.Time
	End            time.Time
	DurationMillis int64
	// SimplifiedRoute is nil when simplification leaves fewer than two points.
	SimplifiedRoute *models.LineString
	// MapCenter is the first fix, not a true centroid.
	MapCenter models.Coordinates
}

// Derive computes the geometry of an ordered list of fixes.
func Derive(points []models.TrackPoint) (Geometry, error) {
	if len(points) < 2 {
		return Geometry{}, fmt.Errorf("%w: got %d", track.ErrInsufficientData, len(points))
	}

	line := lineString(points)
	g := Geometry{
		DistanceMeters: PathLength(line),
		MapCenter:      points[0].Coordinates,
	}
	if err := g.Retime(points[0].Time, points[len(points)-1].Time); err != nil {
		return Geometry{}, err
	}

	if simplified := Simplify(line, SimplifyTolerance); len(simplified) >= 2 {
		coords := make([][2]float64, len(simplified))
		for i, p := range simplified {
			coords[i] = [2]float64{p.Lon(), p.Lat()}
		}
		g.SimplifiedRoute = models.NewLineString(coords)
	}
	return g, nil
}

// Retime replaces the time bounds, for sources that declare their own.
func (g *Geometry) Retime(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: missing bound", track.ErrInvalidTimestamp)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end precedes start", track.ErrInvalidTimestamp)
	}
	g.Start = start
	g.End = end
	g.DurationMillis = end.Sub(start).Milliseconds()
	return nil
}

// MeanEarthRadius is the IUGG mean radius in meters. orb measures on the
// equatorial radius, so its distances are rescaled to this one.
const MeanEarthRadius = 6371008.8

// PathLength sums the great-circle length of each consecutive pair, in meters.
func PathLength(line orb.LineString) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += orbgeo.DistanceHaversine(line[i-1], line[i])
	}
	return total * MeanEarthRadius / orb.EarthRadius
}

// Simplify runs Douglas-Peucker on a copy of line. Endpoints are kept.
func Simplify(line orb.LineString, tolerance float64) orb.LineString {
	if len(line) < 3 {
		return line.Clone()
	}
	out, ok := simplify.DouglasPeucker(tolerance).Simplify(line.Clone()).(orb.LineString)
	if !ok {
		return nil
	}
	return out
}

func lineString(points []models.TrackPoint) orb.LineString {
	line := make(orb.LineString, len(points))
	for i, p := range points {
		line[i] = orb.Point{p.Lon, p.Lat}
	}
	return line
}
