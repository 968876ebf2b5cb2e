package geo

import (
	"strings"
	"testing"
	"time"

	"github.com/mkmilan/travel-server/internal/track"
)

func TestMapWaypoints(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stamped := now.Add(-time.Hour)

	got := MapWaypoints([]track.Waypoint{
		{Lat: 1, Lon: 2, Time: stamped, Name: "Camp", Description: "Flat pitch"},
		{Lat: 3, Lon: 4},
		{Lat: 5, Lon: 6, Name: strings.Repeat("n", 150), Description: strings.Repeat("d", 600)},
	}, now)

	if len(got) != 3 {
		t.Fatalf("got %d waypoints", len(got))
	}
	if !got[0].Timestamp.Equal(stamped) || *got[0].Name != "Camp" || *got[0].Description != "Flat pitch" {
		t.Errorf("waypoint 0 = %+v", got[0])
	}
	if got[1].Name != nil || got[1].Description != nil {
		t.Errorf("missing text should be nil: %+v", got[1])
	}
	if !got[1].Timestamp.Equal(now) {
		t.Errorf("missing time should default to now, got %s", got[1].Timestamp)
	}
	if len(*got[2].Name) != 100 || len(*got[2].Description) != 500 {
		t.Errorf("long text not truncated: %d/%d", len(*got[2].Name), len(*got[2].Description))
	}
}
