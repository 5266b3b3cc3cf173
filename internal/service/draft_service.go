package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
	"github.com/xeinst/autopost/internal/repository"
	"github.com/xeinst/autopost/internal/transfer"
)

// DraftService owns every draft state transition. No other component writes
// the status column.
type DraftService interface {
	Create(ctx context.Context, dc *transfer.DraftCreation) (*models.Draft, error)
	Approve(ctx context.Context, id string, scheduledFor *time.Time) (*models.Draft, error)
	Reject(ctx context.Context, id, reason string) (*models.Draft, error)
	Skip(ctx context.Context, id string) (*models.Draft, error)
	Edit(ctx context.Context, id, newBody string) (*models.Draft, error)
	Retry(ctx context.Context, id string) (*models.Draft, error)
	MarkPosted(ctx context.Context, id, platformRef string) (*models.Draft, error)
	MarkFailed(ctx context.Context, id, reason string) (*models.Draft, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	List(ctx context.Context, status string, limit int) ([]*models.Draft, error)
	ListEligible(ctx context.Context) ([]*models.Draft, error)
	ListInconsistent(ctx context.Context) ([]*models.Draft, error)
}

type draftService struct {
	uow  repository.UnitOfWork
	dr   repository.DraftRepository
	ar   repository.ActivityRepository
	rl   RateLimitService
	gate *ModerationGate
	bc   *config.BotConfig
	clk  clock.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDraftService(
	uow repository.UnitOfWork,
	dr repository.DraftRepository,
	ar repository.ActivityRepository,
	rl RateLimitService,
	gate *ModerationGate,
	bc *config.BotConfig,
	clk clock.Clock) DraftService {
	return &draftService{
		uow:   uow,
		dr:    dr,
		ar:    ar,
		rl:    rl,
		gate:  gate,
		bc:    bc,
		clk:   clk,
		locks: map[string]*sync.Mutex{},
	}
}

// lock serializes transitions per draft id. At most one in-flight transition
// per draft at any time.
func (s *draftService) lock(id string) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *draftService) Create(ctx context.Context, dc *transfer.DraftCreation) (*models.Draft, error) {
	policy, ok := s.bc.PolicyFor(dc.Platform, dc.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTarget, dc.Platform, dc.Target)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	draft := &models.Draft{
		ID:          id,
		Platform:    dc.Platform,
		Target:      dc.Target,
		Kind:        dc.Kind,
		Title:       dc.Title,
		Body:        dc.Body,
		ParentRef:   dc.ParentRef,
		ParentFlair: dc.ParentFlair,
		SourceRef:   dc.SourceRef,
		Status:      models.DraftStatusPendingReview,
		CreatedAt:   now,
	}

	recent, err := s.dr.RecentBodies(ctx, dc.Platform, dc.Target, 20)
	if err != nil {
		return nil, err
	}

	// A failing verdict creates the draft directly in rejected rather than
	// discarding it, so the decision stays auditable.
	verdict := s.gate.Review(Candidate{Body: dc.Body, Kind: dc.Kind, ParentFlair: dc.ParentFlair}, policy, recent)
	if !verdict.Pass {
		draft.Status = models.DraftStatusRejected
		draft.Reasons = verdict.Reasons
	}

	err = s.uow.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.dr.Create(ctx, tx, draft); err != nil {
			return err
		}
		entry := &models.ActivityEntry{
			DraftID:   draft.ID,
			FromState: "created",
			ToState:   draft.Status,
			Actor:     models.ActorSystem,
			Detail:    strings.Join(draft.Reasons, ", "),
			CreatedAt: now,
		}
		_, err := s.ar.Create(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("draft created", "id", draft.ID, "target", draft.Target, "status", draft.Status)
	return draft, nil
}

func (s *draftService) Approve(ctx context.Context, id string, scheduledFor *time.Time) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusPendingReview {
		return draft, fmt.Errorf("%w: approve from %s", ErrInvalidState, draft.Status)
	}

	policy, ok := s.bc.PolicyFor(draft.Platform, draft.Target)
	if !ok {
		return draft, fmt.Errorf("%w: %s/%s", ErrUnknownTarget, draft.Platform, draft.Target)
	}

	recent, err := s.dr.RecentBodies(ctx, draft.Platform, draft.Target, 20)
	if err != nil {
		return nil, err
	}

	// The body may have been edited since creation; the most recent verdict
	// wins. A failing re-check forces rejected and the override is surfaced
	// to the caller.
	verdict := s.gate.Review(Candidate{Body: draft.Body, Kind: draft.Kind, ParentFlair: draft.ParentFlair}, policy, recent)
	if !verdict.Pass {
		draft.Reasons = verdict.Reasons
		if err := s.transition(ctx, draft, models.DraftStatusRejected, models.ActorSystem, strings.Join(verdict.Reasons, ", "), nil); err != nil {
			return nil, err
		}
		return draft, &PolicyViolationError{Reasons: verdict.Reasons}
	}

	to := models.DraftStatusApproved
	detail := ""
	if scheduledFor != nil {
		to = models.DraftStatusScheduled
		draft.ScheduledFor = scheduledFor
		detail = "scheduled for " + scheduledFor.Format(time.RFC3339)
	}
	if err := s.transition(ctx, draft, to, models.ActorHuman, detail, nil); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *draftService) Reject(ctx context.Context, id, reason string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	// idempotent: a second reject returns the same result without a
	// duplicate ledger entry
	if draft.Status == models.DraftStatusRejected {
		return draft, nil
	}
	if draft.Status != models.DraftStatusPendingReview {
		return draft, fmt.Errorf("%w: reject from %s", ErrInvalidState, draft.Status)
	}

	draft.Reasons = append(draft.Reasons, reason)
	if err := s.transition(ctx, draft, models.DraftStatusRejected, models.ActorHuman, reason, nil); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *draftService) Skip(ctx context.Context, id string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status == models.DraftStatusSkipped {
		return draft, nil
	}
	if draft.Status != models.DraftStatusPendingReview {
		return draft, fmt.Errorf("%w: skip from %s", ErrInvalidState, draft.Status)
	}

	if err := s.transition(ctx, draft, models.DraftStatusSkipped, models.ActorHuman, "", nil); err != nil {
		return nil, err
	}
	return draft, nil
}

// Edit replaces the body while pending review, keeping the prior body in the
// append-only history. Only length is re-validated here; the full moderation
// re-run happens at approve time.
func (s *draftService) Edit(ctx context.Context, id, newBody string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusPendingReview {
		return draft, fmt.Errorf("%w: edit from %s", ErrInvalidState, draft.Status)
	}

	policy, ok := s.bc.PolicyFor(draft.Platform, draft.Target)
	if !ok {
		return draft, fmt.Errorf("%w: %s/%s", ErrUnknownTarget, draft.Platform, draft.Target)
	}
	if policy.MaxLength > 0 && len(strings.Fields(newBody)) > policy.MaxLength {
		return draft, ErrBodyTooLong
	}

	draft.EditHistory = append(draft.EditHistory, draft.Body)
	draft.Body = newBody
	if err := s.transition(ctx, draft, models.DraftStatusPendingReview, models.ActorHuman, "body edited", nil); err != nil {
		return nil, err
	}
	return draft, nil
}

// Retry moves a failed draft back to pending review. Only a human does this;
// failures are never retried automatically.
func (s *draftService) Retry(ctx context.Context, id string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusFailed {
		return draft, fmt.Errorf("%w: retry from %s", ErrInvalidState, draft.Status)
	}

	detail := "retry after: " + draft.FailureReason
	draft.FailureReason = ""
	if err := s.transition(ctx, draft, models.DraftStatusPendingReview, models.ActorHuman, detail, nil); err != nil {
		return nil, err
	}
	return draft, nil
}

// MarkPosted records a successful publish. The state change, the ledger entry,
// and the rate-limit windows are written in one transaction so none of them
// can exist without the others.
func (s *draftService) MarkPosted(ctx context.Context, id, platformRef string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if !draft.Eligible(now) {
		return draft, fmt.Errorf("%w: markPosted from %s", ErrInvalidState, draft.Status)
	}

	scope := Scope{Platform: draft.Platform, Target: draft.Target}
	topLevel := draft.IsTopLevel()
	draft.PublishedRef = platformRef
	err = s.transition(ctx, draft, models.DraftStatusPosted, models.ActorSystem, platformRef, func(tx *sql.Tx) error {
		return s.rl.RecordAction(ctx, tx, scope, topLevel, now)
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *draftService) MarkFailed(ctx context.Context, id, reason string) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	draft, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !draft.Eligible(s.clk.Now()) {
		return draft, fmt.Errorf("%w: markFailed from %s", ErrInvalidState, draft.Status)
	}

	draft.FailureReason = reason
	if err := s.transition(ctx, draft, models.DraftStatusFailed, models.ActorSystem, reason, nil); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *draftService) Get(ctx context.Context, id string) (*models.Draft, error) {
	return s.get(ctx, id)
}

func (s *draftService) List(ctx context.Context, status string, limit int) ([]*models.Draft, error) {
	return s.dr.ListByStatus(ctx, status, limit)
}

func (s *draftService) ListEligible(ctx context.Context) ([]*models.Draft, error) {
	return s.dr.ListEligible(ctx, s.clk.Now(), 50)
}

// ListInconsistent surfaces drafts whose stored refs contradict their state.
// They are flagged for manual inspection, never auto-corrected.
func (s *draftService) ListInconsistent(ctx context.Context) ([]*models.Draft, error) {
	return s.dr.ListInconsistent(ctx)
}

func (s *draftService) get(ctx context.Context, id string) (*models.Draft, error) {
	draft, err := s.dr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, ErrDraftNotFound
	}
	return draft, nil
}

// transition applies the state change, appends the ledger entry, and runs any
// extra writes in a single transaction.
func (s *draftService) transition(ctx context.Context, draft *models.Draft, to, actor, detail string, extra func(tx *sql.Tx) error) error {
	from := draft.Status
	draft.Status = to

	err := s.uow.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.dr.Update(ctx, tx, draft); err != nil {
			return err
		}
		entry := &models.ActivityEntry{
			DraftID:   draft.ID,
			FromState: from,
			ToState:   to,
			Actor:     actor,
			Detail:    detail,
			CreatedAt: s.clk.Now(),
		}
		if _, err := s.ar.Create(ctx, tx, entry); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		draft.Status = from
		return err
	}

	slog.Info("draft transition", "id", draft.ID, "from", from, "to", to, "actor", actor)
	return nil
}
