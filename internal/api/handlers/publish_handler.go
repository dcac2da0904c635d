package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/queue"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
)

type PublishHandler struct {
	ps       service.PublishService
	ss       service.StatusService
	jr       repository.PublishJobRepository
	enqueuer queue.Enqueuer
	cfg      config.Config
}

// NewPublishHandler wires the publish routes. jr and enqueuer may be nil, in
// which case status comes from TikTok directly and only sync publishing works.
func NewPublishHandler(
	cfg config.Config,
	ps service.PublishService,
	ss service.StatusService,
	jr repository.PublishJobRepository,
	enqueuer queue.Enqueuer) *PublishHandler {
	return &PublishHandler{
		ps:       ps,
		ss:       ss,
		jr:       jr,
		enqueuer: enqueuer,
		cfg:      cfg,
	}
}

func (h *PublishHandler) CreatePublish(c *fiber.Ctx) error {
	var req models.UploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if c.QueryBool("sync") || h.enqueuer == nil {
		result := h.ps.Publish(c.Context(), req)
		return c.Status(resultStatus(result)).JSON(result)
	}

	delay := time.Duration(c.QueryInt("delay_seconds", 0)) * time.Second
	if delay < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "delay_seconds must not be negative",
		})
	}

	taskID, err := queue.EnqueuePublish(c.Context(), h.enqueuer, req, delay, h.cfg.PublishTimeout)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Error scheduling publish",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Publish scheduled successfully",
		"task_id": taskID,
	})
}

func (h *PublishHandler) GetPublish(c *fiber.Ctx) error {
	publishID := c.Params("publish_id")

	if h.jr != nil {
		job, err := h.jr.GetByPublishID(c.Context(), publishID)
		switch {
		case err == nil:
			return c.Status(fiber.StatusOK).JSON(job)
		case errors.Is(err, repository.ErrPublishJobNotFound):
		default:
			slog.Info(err.Error())
		}
	}

	cred, err := h.ps.Credential(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	data, err := h.ss.FetchStatus(c.Context(), cred, publishID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"publish_id":  publishID,
		"status":      data.Status,
		"fail_reason": data.FailReason,
		"post_ids":    data.PublicalyAvailablePostID,
	})
}

func (h *PublishHandler) ResumePublish(c *fiber.Ctx) error {
	result := h.ps.Resume(c.Context(), c.Params("publish_id"))
	return c.Status(resultStatus(result)).JSON(result)
}
