package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mkmilan/travel-server/internal/ingest"
	"github.com/mkmilan/travel-server/internal/storage"
	log "github.com/sirupsen/logrus"
)

func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ingest.ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, ingest.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ingest.ErrTripNotFound), errors.Is(err, ingest.ErrPhotoNotFound), errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ingest.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, ingest.ErrRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrStorageFailed), errors.Is(err, storage.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{"prefix": "server", "path": c.Path(), "status": status}).
			WithError(err).Error("request failed")
		msg = fiber.ErrInternalServerError.Message
		if status == fiber.StatusServiceUnavailable {
			msg = "storage temporarily unavailable"
		}
	}
	body := fiber.Map{"error": msg}
	var ie *ingest.Error
	if errors.As(err, &ie) {
		body["state"] = ie.State
	}
	return c.Status(status).JSON(body)
}
