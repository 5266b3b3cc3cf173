package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/xeinst/autopost/internal/queue"
	"github.com/xeinst/autopost/internal/service"
	"github.com/xeinst/autopost/internal/transfer"
)

type DraftHandler struct {
	s           service.DraftService
	AsynqClient *asynq.Client
}

func NewDraftHandler(service service.DraftService, asynqClient *asynq.Client) *DraftHandler {
	return &DraftHandler{s: service, AsynqClient: asynqClient}
}

func (h *DraftHandler) CreateDraft(c *fiber.Ctx) error {
	var dc transfer.DraftCreation
	if err := c.BodyParser(&dc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	draft, err := h.s.Create(c.Context(), &dc)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *DraftHandler) ListDrafts(c *fiber.Ctx) error {
	status := c.Query("status", "pending_review")
	limit := c.QueryInt("limit", 50)

	drafts, err := h.s.List(c.Context(), status, limit)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(drafts)
}

func (h *DraftHandler) GetDraft(c *fiber.Ctx) error {
	draft, err := h.s.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) ApproveDraft(c *fiber.Ctx) error {
	// the body is optional: approve without one publishes on the next sweep
	var req transfer.ApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse body",
			})
		}
	}

	var scheduledFor *time.Time
	if req.ScheduledFor != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "scheduled_for must be RFC3339",
			})
		}
		scheduledFor = &t
	}

	draft, err := h.s.Approve(c.Context(), c.Params("id"), scheduledFor)
	if err != nil {
		var pv *service.PolicyViolationError
		if errors.As(err, &pv) {
			// the draft moved to rejected; surface both the verdict and
			// the resulting draft
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   "moderation rejected the draft",
				"reasons": pv.Reasons,
				"draft":   draft,
			})
		}
		return errorJSON(c, err)
	}

	// hand the draft to the worker right away; the cron sweep would get to it
	// eventually, but an immediate task keeps approve-to-publish latency low
	var delay time.Duration
	if scheduledFor != nil {
		delay = time.Until(*scheduledFor)
		if delay < 0 {
			delay = 0
		}
	}
	err = queue.EnqueuePublish(h.AsynqClient, queue.PublishDraftPayload{DraftID: draft.ID}, delay)
	if err != nil {
		slog.Error("enqueue after approve failed", "draft_id", draft.ID, "err", err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) RejectDraft(c *fiber.Ctx) error {
	var req transfer.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	draft, err := h.s.Reject(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) SkipDraft(c *fiber.Ctx) error {
	draft, err := h.s.Skip(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) EditDraft(c *fiber.Ctx) error {
	var req transfer.EditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	draft, err := h.s.Edit(c.Context(), c.Params("id"), req.Body)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) RetryDraft(c *fiber.Ctx) error {
	draft, err := h.s.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(draft)
}

func (h *DraftHandler) ListInconsistent(c *fiber.Ctx) error {
	drafts, err := h.s.ListInconsistent(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(drafts)
}
