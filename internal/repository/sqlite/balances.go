package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
)

type balancesRepo struct{ db *sql.DB }

func scanBalance(row *sql.Row) (models.Balance, error) {
	var (
		b  models.Balance
		ts string
	)
	if err := row.Scan(&b.UserID, &b.Credits, &b.Coins, &ts); err != nil {
		return models.Balance{}, err
	}
	b.UpdatedAt = parseTime(ts)
	return b, nil
}

func (r *balancesRepo) Get(ctx context.Context, userID string) (models.Balance, error) {
	b, err := scanBalance(r.db.QueryRowContext(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Balance{}, apperr.ErrAccountNotFound
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *balancesRepo) Provision(ctx context.Context, userID string, credits, coins int64, entry models.Transaction) (models.Balance, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO balances(user_id, credits, coins, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, credits, coins, nowText(),
	)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision rows: %w", err)
	}
	created := n == 1

	if created && entry.Amount > 0 {
		if _, err := insertEntry(ctx, tx, entry); err != nil {
			return models.Balance{}, false, fmt.Errorf("provision journal: %w", err)
		}
	}

	b, err := scanBalance(tx.QueryRowContext(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=?`, userID))
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("provision read back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Balance{}, false, fmt.Errorf("provision commit: %w", err)
	}
	return b, created, nil
}
