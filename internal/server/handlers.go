package server

import (
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/mkmilan/travel-server/internal/ingest"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/track"
)

type handlers struct {
	trips TripService
}

// tripFields are the form fields shared by both trip submission routes.
type tripFields struct {
	Title             string `json:"title" form:"title"`
	Description       string `json:"description" form:"description"`
	StartLocationName string `json:"startLocationName" form:"startLocationName"`
	EndLocationName   string `json:"endLocationName" form:"endLocationName"`
	Visibility        string `json:"defaultTripVisibility" form:"defaultTripVisibility"`
	TravelMode        string `json:"defaultTravelMode" form:"defaultTravelMode"`
}

func (f tripFields) request(ownerID string, doc track.Document) ingest.Request {
	return ingest.Request{
		OwnerID:           ownerID,
		Title:             f.Title,
		Description:       f.Description,
		StartLocationName: f.StartLocationName,
		EndLocationName:   f.EndLocationName,
		Visibility:        models.Visibility(f.Visibility),
		TravelMode:        models.TravelMode(f.TravelMode),
		Track:             doc,
	}
}

// createTrip accepts a multipart form with the GPX log either as the "gpx"
// file or the "gpxString" field, plus up to the configured number of
// "photos".
func (h *handlers) createTrip(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form data")
	}

	var fields tripFields
	if err := c.BodyParser(&fields); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var doc track.Document
	var trackName string
	if files := form.File["gpx"]; len(files) > 0 {
		raw, err := readFile(files[0])
		if err != nil {
			return err
		}
		doc, trackName = track.LegacyTrack{Raw: raw}, files[0].Filename
	} else if s := c.FormValue("gpxString"); s != "" {
		doc = track.LegacyTrack{Raw: []byte(s)}
	}

	photos, err := readPhotos(form.File["photos"])
	if err != nil {
		return err
	}

	req := fields.request(userID(c), doc)
	req.TrackFilename = trackName
	req.Photos = photos

	rec, err := h.trips.Ingest(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec.Public())
}

// createTripJSON accepts a structured track recorded by the mobile client,
// with the trip fields alongside it in the same object.
func (h *handlers) createTripJSON(c *fiber.Ctx) error {
	var fields tripFields
	if err := c.BodyParser(&fields); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	doc, err := track.DecodeStructured(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	rec, err := h.trips.Ingest(c.UserContext(), fields.request(userID(c), *doc))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec.Public())
}

func (h *handlers) getTrip(c *fiber.Ctx) error {
	rec, err := h.trips.GetTrip(c.UserContext(), userID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (h *handlers) downloadTrack(c *fiber.Ctx) error {
	dl, name, err := h.trips.OpenRawTrack(c.UserContext(), userID(c), c.Params("id"))
	if err != nil {
		return err
	}
	info := dl.Info()
	c.Attachment(name)
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	return c.SendStream(dl, int(info.Size))
}

func (h *handlers) deleteTrip(c *fiber.Ctx) error {
	if err := h.trips.DeleteTrip(c.UserContext(), userID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) addPhotos(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form data")
	}
	photos, err := readPhotos(form.File["photos"])
	if err != nil {
		return err
	}

	rec, err := h.trips.AddPhotos(c.UserContext(), userID(c), c.Params("id"), photos)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (h *handlers) deleteTripPhoto(c *fiber.Ctx) error {
	photoID := c.Params("photoId")
	if err := h.trips.DeleteTripPhoto(c.UserContext(), userID(c), c.Params("id"), photoID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Photo deleted successfully", "photoId": photoID})
}

func (h *handlers) addWaypoint(c *fiber.Ctx) error {
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if body.Latitude == nil || body.Longitude == nil {
		return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude are required")
	}

	wp, err := h.trips.AddWaypoint(c.UserContext(), userID(c), c.Params("id"), ingest.WaypointInput{
		Lat:         *body.Latitude,
		Lon:         *body.Longitude,
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(wp)
}

// getPhoto serves a photo of a trip the caller may see.
func (h *handlers) getPhoto(c *fiber.Ctx) error {
	dl, err := h.trips.OpenPhoto(c.UserContext(), userID(c), c.Params("id"))
	if err != nil {
		return err
	}
	info := dl.Info()
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	return c.SendStream(dl, int(info.Size))
}

func readPhotos(files []*multipart.FileHeader) ([]ingest.Photo, error) {
	photos := make([]ingest.Photo, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		photos = append(photos, ingest.Photo{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}
	return photos, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable upload "+fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable upload "+fh.Filename)
	}
	return data, nil
}
