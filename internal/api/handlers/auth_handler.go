package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
)

type AuthHandler struct {
	s     service.AuthService
	store repository.CredentialStore
	cfg   config.Config
}

func NewAuthHandler(cfg config.Config, service service.AuthService, store repository.CredentialStore) *AuthHandler {
	return &AuthHandler{s: service, store: store, cfg: cfg}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	authURL, _, err := h.s.BuildAuthorizationURL(h.cfg.Tiktok.Scopes, h.cfg.Tiktok.RedirectURI)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":             reason,
			"error_description": c.Query("error_description"),
		})
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing code",
		})
	}

	cred, err := h.s.CompleteAuthorization(c.Context(), code, c.Query("state"))
	if errors.Is(err, service.ErrStateMismatch) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate state",
		})
	}
	if err != nil {
		return errorResponse(c, err)
	}

	if err := h.store.Save(cred); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to store credential",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "TikTok account connected",
		"open_id": cred.OpenID,
		"scope":   cred.Scope,
	})
}
