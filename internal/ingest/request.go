package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/track"
)

// Photo is an uploaded image before transcoding.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Request is a trip submission.
type Request struct {
	OwnerID           string
	Title             string
	Description       string
	StartLocationName string
	EndLocationName   string
	Visibility        models.Visibility
	TravelMode        models.TravelMode
	Track             track.Document
	// TrackFilename is the name the track log was uploaded under, if any.
	TrackFilename string
	Photos        []Photo
}

// WaypointInput is a point of interest added to an existing trip.
type WaypointInput struct {
	Lat         float64
	Lon         float64
	Name        string
	Description string
}

// Limits bounds photo uploads.
type Limits struct {
	MaxPhotos     int
	MaxPhotoBytes int64
}

var DefaultLimits = Limits{MaxPhotos: 5, MaxPhotoBytes: 10 << 20}

var allowedPhotoTypes = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func tooLong(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return invalid("%s exceeds %d characters", field, limit)
	}
	return nil
}

// normalize checks a request and fills in defaults.
func (r *Request) normalize(limits Limits) error {
	if r.OwnerID == "" {
		return invalid("owner is required")
	}
	if r.Track == nil {
		return invalid("a track log is required")
	}

	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.StartLocationName = strings.TrimSpace(r.StartLocationName)
	r.EndLocationName = strings.TrimSpace(r.EndLocationName)
	for _, check := range []error{
		tooLong("title", r.Title, models.MaxTitle),
		tooLong("description", r.Description, models.MaxDescription),
		tooLong("start location name", r.StartLocationName, models.MaxLocationName),
		tooLong("end location name", r.EndLocationName, models.MaxLocationName),
	} {
		if check != nil {
			return check
		}
	}

	if r.Visibility == "" {
		r.Visibility = models.VisibilityPublic
	}
	if !r.Visibility.Valid() {
		return invalid("unknown visibility %q", r.Visibility)
	}
	if r.TravelMode == "" {
		r.TravelMode = models.TravelModeMotorhome
	}
	if !r.TravelMode.Valid() {
		return invalid("unknown travel mode %q", r.TravelMode)
	}
	return checkPhotos(r.Photos, limits)
}

func checkPhotos(photos []Photo, limits Limits) error {
	if limits.MaxPhotos > 0 && len(photos) > limits.MaxPhotos {
		return invalid("at most %d photos per upload", limits.MaxPhotos)
	}
	for _, p := range photos {
		if limits.MaxPhotoBytes > 0 && int64(len(p.Data)) > limits.MaxPhotoBytes {
			return invalid("photo %s is %s, limit is %s", p.Filename,
				humanize.Bytes(uint64(len(p.Data))), humanize.Bytes(uint64(limits.MaxPhotoBytes)))
		}
		if !allowedPhoto(p) {
			return invalid("photo %s: only jpeg, jpg, png, gif and webp images are allowed", p.Filename)
		}
	}
	return nil
}

func allowedPhoto(p Photo) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p.Filename)), ".")
	kind, ok := strings.CutPrefix(strings.ToLower(p.ContentType), "image/")
	return ok && allowedPhotoTypes[ext] && allowedPhotoTypes[kind]
}

func (w WaypointInput) validate() error {
	if !(models.Coordinates{Lat: w.Lat, Lon: w.Lon}).Valid() {
		return invalid("coordinates %f,%f out of range", w.Lat, w.Lon)
	}
	if err := tooLong("name", w.Name, models.MaxWaypointName); err != nil {
		return err
	}
	return tooLong("description", w.Description, models.MaxWaypointDescription)
}
