package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/xeinst/autopost/internal/models"
)

type ActivityRepository interface {
	Create(ctx context.Context, tx *sql.Tx, entry *models.ActivityEntry) (int64, error)
	ListByDraft(ctx context.Context, draftID string) ([]*models.ActivityEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ActivityEntry, error)
	CountPublishedSince(ctx context.Context, kind string, since time.Time) (int, error)
	OldestPublishedSince(ctx context.Context, kind string, since time.Time) (*time.Time, error)
	CountByStateBetween(ctx context.Context, from, to time.Time) (map[string]int, error)
}

type activityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, tx *sql.Tx, entry *models.ActivityEntry) (int64, error) {
	query := `
		INSERT INTO activity (draft_id, from_state, to_state, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error
	args := []any{entry.DraftID, entry.FromState, entry.ToState, entry.Actor, entry.Detail, entry.CreatedAt}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *activityRepository) ListByDraft(ctx context.Context, draftID string) ([]*models.ActivityEntry, error) {
	query := `
		SELECT id, draft_id, from_state, to_state, actor, detail, created_at
		FROM activity WHERE draft_id = $1 ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, draftID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *activityRepository) ListRecent(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	query := `
		SELECT id, draft_id, from_state, to_state, actor, detail, created_at
		FROM activity ORDER BY id DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountPublishedSince counts publish transitions for drafts of the given kind
// in the trailing window. Daily caps are recomputed from the ledger rather
// than kept as counters.
func (r *activityRepository) CountPublishedSince(ctx context.Context, kind string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM activity a
		JOIN drafts d ON d.id = a.draft_id
		WHERE a.to_state = $1 AND d.kind = $2 AND a.created_at >= $3
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, models.DraftStatusPosted, kind, since).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *activityRepository) OldestPublishedSince(ctx context.Context, kind string, since time.Time) (*time.Time, error) {
	query := `
		SELECT MIN(a.created_at)
		FROM activity a
		JOIN drafts d ON d.id = a.draft_id
		WHERE a.to_state = $1 AND d.kind = $2 AND a.created_at >= $3
	`

	var oldest sql.NullTime
	err := r.db.QueryRowContext(ctx, query, models.DraftStatusPosted, kind, since).Scan(&oldest)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if !oldest.Valid {
		return nil, nil
	}
	return &oldest.Time, nil
}

func (r *activityRepository) CountByStateBetween(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `
		SELECT to_state, COUNT(*)
		FROM activity
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY to_state
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts[state] = count
	}
	return counts, nil
}

func collectEntries(rows *sql.Rows) ([]*models.ActivityEntry, error) {
	var entries []*models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		err := rows.Scan(&e.ID, &e.DraftID, &e.FromState, &e.ToState, &e.Actor, &e.Detail, &e.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
