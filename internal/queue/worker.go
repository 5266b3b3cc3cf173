package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/xeinst/autopost/internal/platform"
	"github.com/xeinst/autopost/internal/service"
)

const (
	publishTimeout = 30 * time.Second

	// extra wait after the platform itself rate-limits us, on top of
	// whatever the local limiter would allow
	platformBackoff = 15 * time.Minute
)

// HandlePublishDraftTask attempts a single publish for one draft. The task is
// safe to deliver more than once: a draft that is no longer eligible is
// skipped, and a rate-limit denial leaves the draft untouched so the next
// sweep picks it up again.
func (q *Queue) HandlePublishDraftTask(ctx context.Context, t *asynq.Task) error {
	var payload PublishDraftPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal publish payload: %w", err)
	}

	killed, err := q.ss.KillSwitch(ctx)
	if err != nil {
		return err
	}
	if killed {
		slog.Warn("publish skipped, kill switch on", "draft_id", payload.DraftID)
		return nil
	}

	draft, err := q.ds.Get(ctx, payload.DraftID)
	if err != nil {
		if errors.Is(err, service.ErrDraftNotFound) {
			slog.Warn("publish task for missing draft", "draft_id", payload.DraftID)
			return nil
		}
		return err
	}

	now := q.clk.Now()
	if !draft.Eligible(now) {
		slog.Info("draft no longer eligible", "draft_id", draft.ID, "status", draft.Status)
		return nil
	}

	policy, ok := q.bc.PolicyFor(draft.Platform, draft.Target)
	if !ok {
		slog.Warn("no policy for target, leaving draft", "draft_id", draft.ID, "target", draft.Target)
		return nil
	}
	if !policy.PostingHours.Contains(now) {
		slog.Info("outside posting hours", "draft_id", draft.ID, "target", draft.Target)
		return nil
	}

	scope := service.Scope{Platform: draft.Platform, Target: draft.Target}
	decision, err := q.rl.TryAcquire(ctx, scope, draft.IsTopLevel())
	if err != nil {
		return err
	}
	if !decision.Allowed {
		slog.Info("publish denied by rate limiter",
			"draft_id", draft.ID,
			"reason", decision.Reason,
			"next_allowed_at", decision.NextAllowedAt)
		return nil
	}

	pub, err := q.pubs.For(draft.Platform)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ref, err := pub.Publish(pubCtx, draft)
	if err != nil {
		return q.handlePublishFailure(ctx, draft.ID, err)
	}

	if _, err := q.ds.MarkPosted(ctx, draft.ID, ref); err != nil {
		return err
	}
	slog.Info("draft published", "draft_id", draft.ID, "platform", draft.Platform, "ref", ref)
	return nil
}

// handlePublishFailure maps a platform error to the draft's failure record. A
// platform-side rate limit is not a draft failure: the limiter thought the
// action was allowed, so the disagreement is logged and the draft stays
// eligible for the next sweep.
func (q *Queue) handlePublishFailure(ctx context.Context, draftID string, pubErr error) error {
	reason := platform.ReasonUnknown

	var pe *platform.PublishError
	switch {
	case errors.As(pubErr, &pe):
		reason = pe.Reason
	case errors.Is(pubErr, context.DeadlineExceeded):
		reason = platform.ReasonTimeout
	}

	if reason == platform.ReasonRateLimited {
		// the local limiter thought this was allowed, so back off beyond its
		// normal cadence before the next attempt
		slog.Warn("platform rate limit disagrees with local limiter", "draft_id", draftID, "err", pubErr)
		if err := EnqueuePublish(q.asynqClient, PublishDraftPayload{DraftID: draftID}, platformBackoff); err != nil {
			slog.Error("backoff enqueue failed", "draft_id", draftID, "err", err)
		}
		return nil
	}

	slog.Error("publish failed", "draft_id", draftID, "reason", reason, "err", pubErr)
	if _, err := q.ds.MarkFailed(ctx, draftID, reason); err != nil {
		return err
	}
	return nil
}
