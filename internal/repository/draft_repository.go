package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/xeinst/autopost/internal/models"
)

type DraftRepository interface {
	GetByID(ctx context.Context, id string) (*models.Draft, error)
	Create(ctx context.Context, tx *sql.Tx, draft *models.Draft) error
	Update(ctx context.Context, tx *sql.Tx, draft *models.Draft) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.Draft, error)
	ListEligible(ctx context.Context, now time.Time, limit int) ([]*models.Draft, error)
	ExistsBySource(ctx context.Context, platform, sourceRef string) (bool, error)
	RecentBodies(ctx context.Context, platform, target string, limit int) ([]string, error)
	ListInconsistent(ctx context.Context) ([]*models.Draft, error)
}

type draftRepository struct {
	db *sql.DB
}

func NewDraftRepository(db *sql.DB) DraftRepository {
	return &draftRepository{db: db}
}

const draftColumns = `id, platform, target, kind, title, body, parent_ref, parent_flair, source_ref,
	status, reasons, scheduled_for, published_ref, failure_reason, edit_history, created_at, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (*models.Draft, error) {
	var d models.Draft
	var reasons, history pq.StringArray
	err := row.Scan(&d.ID, &d.Platform, &d.Target, &d.Kind, &d.Title, &d.Body,
		&d.ParentRef, &d.ParentFlair, &d.SourceRef, &d.Status, &reasons,
		&d.ScheduledFor, &d.PublishedRef, &d.FailureReason, &history,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Reasons = reasons
	d.EditHistory = history
	return &d, nil
}

func (r *draftRepository) Create(ctx context.Context, tx *sql.Tx, draft *models.Draft) error {
	query := `
		INSERT INTO drafts (
			id, platform, target, kind, title, body, parent_ref, parent_flair,
			source_ref, status, reasons, scheduled_for, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`

	var err error
	args := []any{draft.ID, draft.Platform, draft.Target, draft.Kind, draft.Title,
		draft.Body, draft.ParentRef, draft.ParentFlair, draft.SourceRef,
		draft.Status, pq.Array(draft.Reasons), draft.ScheduledFor, draft.CreatedAt}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *draftRepository) Update(ctx context.Context, tx *sql.Tx, draft *models.Draft) error {
	query := `
		UPDATE drafts
		SET body = $1,
			status = $2,
			reasons = $3,
			scheduled_for = $4,
			published_ref = $5,
			failure_reason = $6,
			edit_history = $7,
			updated_at = $8
		WHERE id = $9
	`

	var err error
	args := []any{draft.Body, draft.Status, pq.Array(draft.Reasons), draft.ScheduledFor,
		draft.PublishedRef, draft.FailureReason, pq.Array(draft.EditHistory),
		time.Now(), draft.ID}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *draftRepository) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	draft, err := scanDraft(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return draft, nil
}

func (r *draftRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectDrafts(rows)
}

func (r *draftRepository) ListEligible(ctx context.Context, now time.Time, limit int) ([]*models.Draft, error) {
	query := `
		SELECT ` + draftColumns + `
		FROM drafts
		WHERE status = $1 OR (status = $2 AND scheduled_for <= $3)
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, models.DraftStatusApproved, models.DraftStatusScheduled, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectDrafts(rows)
}

func (r *draftRepository) ExistsBySource(ctx context.Context, platform, sourceRef string) (bool, error) {
	query := `SELECT 1 FROM drafts WHERE platform = $1 AND source_ref = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, platform, sourceRef).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *draftRepository) RecentBodies(ctx context.Context, platform, target string, limit int) ([]string, error) {
	query := `
		SELECT body FROM drafts
		WHERE platform = $1 AND target = $2 AND status != $3
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, platform, target, models.DraftStatusRejected, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// ListInconsistent returns drafts whose published_ref/failure_reason presence
// contradicts their state. Used by startup reconciliation; rows are flagged,
// never rewritten.
func (r *draftRepository) ListInconsistent(ctx context.Context) ([]*models.Draft, error) {
	query := `
		SELECT ` + draftColumns + `
		FROM drafts
		WHERE (status = $1 AND published_ref = '')
		   OR (status != $1 AND published_ref != '')
		   OR (status = $2 AND failure_reason = '')
		   OR (status != $2 AND failure_reason != '')
	`
	rows, err := r.db.QueryContext(ctx, query, models.DraftStatusPosted, models.DraftStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectDrafts(rows)
}

func collectDrafts(rows *sql.Rows) ([]*models.Draft, error) {
	var drafts []*models.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}
