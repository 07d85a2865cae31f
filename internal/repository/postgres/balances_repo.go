package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
)

type balancesRepo struct{ pool *pgxpool.Pool }

func (r *balancesRepo) Get(ctx context.Context, userID string) (models.Balance, error) {
	var b models.Balance
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, credits, coins, updated_at
		   FROM balances
		  WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{}, apperr.ErrAccountNotFound
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *balancesRepo) Provision(ctx context.Context, userID string, credits, coins int64, entry models.Transaction) (models.Balance, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`INSERT INTO balances(user_id, credits, coins, updated_at)
		 VALUES($1, $2, $3, now())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, credits, coins,
	)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision insert: %w", err)
	}
	created := ct.RowsAffected() == 1

	// The initial grant is journaled only when the row was actually created.
	if created && entry.Amount > 0 {
		if _, err := insertEntry(ctx, tx, entry); err != nil {
			return models.Balance{}, false, fmt.Errorf("provision journal: %w", err)
		}
	}

	var b models.Balance
	err = tx.QueryRow(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &b.UpdatedAt)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision read back: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Balance{}, false, fmt.Errorf("provision commit: %w", err)
	}
	return b, created, nil
}
