package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// UnitOfWork runs a function inside a single database transaction. Repository
// write methods accept the *sql.Tx it passes in; a nil tx falls back to the
// connection pool, which lets tests run the same code without a database.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type sqlUnitOfWork struct {
	db *sql.DB
}

func NewUnitOfWork(db *sql.DB) UnitOfWork {
	return &sqlUnitOfWork{db: db}
}

func (u *sqlUnitOfWork) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
