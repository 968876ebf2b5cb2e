// Package keys builds the filenames blobs are stored and downloaded under.
package keys

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9]`)

// sanitize lowercases s and replaces anything outside [a-z0-9] with '_'.
func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(strings.ToLower(s), "_")
}

// Track is the stored filename for an uploaded track log.
func Track(ownerID string, at time.Time, ext string) string {
	return fmt.Sprintf("trip_%s_%d.%s", ownerID, at.UnixMilli(), ext)
}

// Photo is the stored filename for a transcoded trip photo.
func Photo(tripID, original string, at time.Time, ext string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	return fmt.Sprintf("trip_%s_%s_%d.%s", tripID, sanitize(base), at.UnixMilli(), ext)
}

// TrackDownload is the filename offered when a trip's raw track is downloaded.
func TrackDownload(title, tripID, ext string) string {
	name := sanitize(strings.TrimSpace(title))
	if strings.Trim(name, "_") == "" {
		return fmt.Sprintf("trip_%s.%s", tripID, ext)
	}
	return name + "." + ext
}
