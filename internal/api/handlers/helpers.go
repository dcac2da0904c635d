package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/pkg/apperror"
)

// StatusFor maps a pipeline error kind to an HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case "":
		return fiber.StatusOK
	case apperror.KindAuth:
		return fiber.StatusUnauthorized
	case apperror.KindUploadInit:
		return fiber.StatusUnprocessableEntity
	case apperror.KindChunk, apperror.KindPoll:
		return fiber.StatusBadGateway
	case apperror.KindCanceled:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func resultStatus(result models.PublishResult) int {
	if result.Error == nil {
		return fiber.StatusOK
	}
	// The upload went through; only the final answer is outstanding.
	if result.Error.Kind == apperror.KindPoll && result.PublishID != "" {
		return fiber.StatusAccepted
	}
	return StatusFor(result.Error.Kind)
}

func errorResponse(c *fiber.Ctx, err error) error {
	var pollErr *apperror.PollError
	if errors.As(err, &pollErr) && pollErr.Kind == apperror.PollRejected {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(StatusFor(apperror.Kind(err))).JSON(fiber.Map{
		"error": err.Error(),
	})
}
