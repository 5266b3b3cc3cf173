package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/xeinst/autopost/internal/models"
)

type RateLimitRepository interface {
	GetByScope(ctx context.Context, scope string) (*models.RateLimitWindow, error)
	Record(ctx context.Context, tx *sql.Tx, scope string, at time.Time, topLevel bool) error
}

type rateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

func (r *rateLimitRepository) GetByScope(ctx context.Context, scope string) (*models.RateLimitWindow, error) {
	query := `SELECT scope, last_action_at, last_top_level_at, updated_at FROM rate_limits WHERE scope = $1`
	row := r.db.QueryRowContext(ctx, query, scope)

	var w models.RateLimitWindow
	err := row.Scan(&w.Scope, &w.LastActionAt, &w.LastTopLevelAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &w, nil
}

// Record upserts the window row for a scope. Rows are created lazily on the
// first action and retained forever.
func (r *rateLimitRepository) Record(ctx context.Context, tx *sql.Tx, scope string, at time.Time, topLevel bool) error {
	query := `
		INSERT INTO rate_limits (scope, last_action_at, last_top_level_at, updated_at)
		VALUES ($1, $2, $3, $2)
		ON CONFLICT (scope) DO UPDATE
		SET last_action_at = EXCLUDED.last_action_at,
			last_top_level_at = COALESCE(EXCLUDED.last_top_level_at, rate_limits.last_top_level_at),
			updated_at = EXCLUDED.updated_at
	`

	var topLevelAt *time.Time
	if topLevel {
		topLevelAt = &at
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, scope, at, topLevelAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, scope, at, topLevelAt)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
