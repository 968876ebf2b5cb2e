// Package server exposes trip ingestion and retrieval over HTTP.
package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mkmilan/travel-server/internal/config"
	"github.com/mkmilan/travel-server/internal/ingest"
	"github.com/mkmilan/travel-server/internal/models"
	"github.com/mkmilan/travel-server/internal/storage"
)

// TripService is the part of ingest.Service the handlers use.
type TripService interface {
	Ingest(ctx context.Context, req ingest.Request) (*models.TripRecord, error)
	GetTrip(ctx context.Context, viewerID, tripID string) (*models.TripRecord, error)
	DeleteTrip(ctx context.Context, ownerID, tripID string) error
	AddPhotos(ctx context.Context, ownerID, tripID string, photos []ingest.Photo) (*models.TripRecord, error)
	DeleteTripPhoto(ctx context.Context, ownerID, tripID, photoID string) error
	AddWaypoint(ctx context.Context, ownerID, tripID string, in ingest.WaypointInput) (*models.Waypoint, error)
	OpenRawTrack(ctx context.Context, viewerID, tripID string) (*storage.Download, string, error)
	OpenPhoto(ctx context.Context, viewerID, blobID string) (*storage.Download, error)
}

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	Trips TripService
}

// bodyOverhead leaves room for the track log and form fields next to the
// largest accepted set of photos.
const bodyOverhead = 32 << 20

func NewServer(cfg config.Config, trips TripService) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.PhotoMaxCount*int(cfg.PhotoMaxBytes) + bodyOverhead,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		Trips: trips,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	requireAuth := JWTMiddleware(s.Cfg.JWTSecret)
	optionalAuth := OptionalJWTMiddleware(s.Cfg.JWTSecret)
	h := &handlers{trips: s.Trips}

	trips := s.App.Group("/trips")
	trips.Post("/", requireAuth, h.createTrip)
	trips.Post("/json", requireAuth, h.createTripJSON)
	trips.Get("/:id", optionalAuth, h.getTrip)
	trips.Get("/:id/gpx", optionalAuth, h.downloadTrack)
	trips.Delete("/:id", requireAuth, h.deleteTrip)
	trips.Post("/:id/photos", requireAuth, h.addPhotos)
	trips.Delete("/:id/photos/:photoId", requireAuth, h.deleteTripPhoto)
	trips.Post("/:id/pois", requireAuth, h.addWaypoint)

	s.App.Get("/blobs/:id", optionalAuth, h.getPhoto)
}

// Listen serves until the app is shut down.
func (s *Server) Listen() error {
	return s.App.Listen(s.Cfg.ServerPort)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}
