package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/xeinst/autopost/internal/service"
	"github.com/xeinst/autopost/internal/transfer"
)

type SettingsHandler struct {
	s service.SettingsService
}

func NewSettingsHandler(service service.SettingsService) *SettingsHandler {
	return &SettingsHandler{s: service}
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	killed, err := h.s.KillSwitch(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"kill_switch": killed,
	})
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req transfer.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	if err := h.s.SetKillSwitch(c.Context(), req.KillSwitch); err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"kill_switch": req.KillSwitch,
	})
}
