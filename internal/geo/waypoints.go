package geo

import (
	"time"
	"unicode/utf8"

	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/track"
)

// MapWaypoints converts parsed waypoints into trip points of interest.
// Missing names and descriptions become nil, a missing time becomes now,
// and over-long text is cut to the stored limits.
func MapWaypoints(wps []track.Waypoint, now time.Time) []models.Waypoint {
	out := make([]models.Waypoint, 0, len(wps))
	for _, wp := range wps {
		ts := wp.Time
		if ts.IsZero() {
			ts = now
		}
		out = append(out, models.Waypoint{
			Lat:         wp.Lat,
			Lon:         wp.Lon,
			Timestamp:   ts,
			Name:        optional(wp.Name, models.MaxWaypointName),
			Description: optional(wp.Description, models.MaxWaypointDescription),
		})
	}
	return out
}

func optional(s string, limit int) *string {
	if s == "" {
		return nil
	}
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return &s
}
