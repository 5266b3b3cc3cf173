package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/xeinst/autopost/internal/repository"
)

type ActivityHandler struct {
	ar repository.ActivityRepository
}

func NewActivityHandler(ar repository.ActivityRepository) *ActivityHandler {
	return &ActivityHandler{ar: ar}
}

// ListActivity returns the ledger for one draft when draft_id is given,
// otherwise the most recent entries across all drafts.
func (h *ActivityHandler) ListActivity(c *fiber.Ctx) error {
	draftID := c.Query("draft_id")

	if draftID != "" {
		entries, err := h.ar.ListByDraft(c.Context(), draftID)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(entries)
	}

	limit := c.QueryInt("limit", 100)
	entries, err := h.ar.ListRecent(c.Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(entries)
}
