package job

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/xeinst/autopost/internal/queue"
	"github.com/xeinst/autopost/internal/service"
)

// PublishJob sweeps eligible drafts and enqueues one publish attempt for each.
// The worker re-checks eligibility and the rate limiter, so a sweep never
// double-publishes.
type PublishJob struct {
	ds          service.DraftService
	asynqClient *asynq.Client
}

func NewPublishJob(ds service.DraftService, asynqClient *asynq.Client) *PublishJob {
	return &PublishJob{ds: ds, asynqClient: asynqClient}
}

func (j *PublishJob) Run() {
	ctx := context.Background()

	drafts, err := j.ds.ListEligible(ctx)
	if err != nil {
		slog.Error("eligible sweep failed", "err", err)
		return
	}

	for _, draft := range drafts {
		err := queue.EnqueuePublish(j.asynqClient, queue.PublishDraftPayload{DraftID: draft.ID}, 0)
		if err != nil {
			slog.Error("enqueue failed", "draft_id", draft.ID, "err", err)
		}
	}
}
