package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
	repo "github.com/dua-platform/credits-backend/internal/repository"
)

type ledgerRepo struct{ db *sql.DB }

const entryColumns = `id, user_id, direction, amount, currency, operation, status, metadata, related_transaction_id, created_at`

func insertEntry(ctx context.Context, tx *sql.Tx, e models.Transaction) (models.Transaction, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Currency == "" {
		e.Currency = models.CurrencyCredits
	}
	if e.Status == "" {
		e.Status = models.TxnCompleted
	}
	var meta any
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	ts := nowText()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (`+entryColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.Direction, e.Amount, e.Currency, e.Operation, e.Status, meta, e.RelatedTransactionID, ts,
	)
	if err != nil {
		return models.Transaction{}, err
	}
	e.CreatedAt = parseTime(ts)
	return e, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (models.Transaction, error) {
	var (
		e    models.Transaction
		meta sql.NullString
		ts   string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Direction, &e.Amount, &e.Currency, &e.Operation, &e.Status, &meta, &e.RelatedTransactionID, &ts)
	if err != nil {
		return models.Transaction{}, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return models.Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	e.CreatedAt = parseTime(ts)
	return e, nil
}

func scanBalanceTx(ctx context.Context, tx *sql.Tx, userID string) (models.Balance, error) {
	var (
		b  models.Balance
		ts string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=?`, userID,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &ts)
	if err != nil {
		return models.Balance{}, err
	}
	b.UpdatedAt = parseTime(ts)
	return b, nil
}

func (r *ledgerRepo) Deduct(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE balances
		    SET credits = credits - ?2,
		        updated_at = ?3
		  WHERE user_id = ?1 AND credits >= ?2`,
		userID, amount, nowText(),
	)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct rows: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM balances WHERE user_id=?)`, userID).Scan(&exists); err != nil {
			return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct exists check: %w", err)
		}
		if !exists {
			return models.Balance{}, models.Transaction{}, apperr.ErrAccountNotFound
		}
		return models.Balance{}, models.Transaction{}, apperr.ErrInsufficientFunds
	}

	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct journal: %w", err)
	}
	b, err := scanBalanceTx(ctx, tx, userID)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct read back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct commit: %w", err)
	}
	return b, entry, nil
}

func creditBalance(ctx context.Context, tx *sql.Tx, userID string, amount int64, currency models.Currency) (models.Balance, error) {
	column := "credits"
	if currency == models.CurrencyCoins {
		column = "coins"
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE balances
		    SET `+column+` = `+column+` + ?2,
		        updated_at = ?3
		  WHERE user_id = ?1`,
		userID, amount, nowText(),
	)
	if err != nil {
		return models.Balance{}, fmt.Errorf("credit update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Balance{}, fmt.Errorf("credit rows: %w", err)
	}
	if n == 0 {
		return models.Balance{}, apperr.ErrAccountNotFound
	}
	return scanBalanceTx(ctx, tx, userID)
}

func (r *ledgerRepo) Credit(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit begin: %w", err)
	}
	defer tx.Rollback()

	b, err := creditBalance(ctx, tx, userID, amount, entry.Currency)
	if err != nil {
		return models.Balance{}, models.Transaction{}, err
	}
	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit journal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit commit: %w", err)
	}
	return b, entry, nil
}

func (r *ledgerRepo) Refund(ctx context.Context, userID string, amount int64, entry models.Transaction) (repo.RefundResult, error) {
	if entry.RelatedTransactionID == nil {
		return repo.RefundResult{}, apperr.NewValidationError("transaction_id", "refund requires the originating transaction id")
	}
	origID := *entry.RelatedTransactionID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund begin: %w", err)
	}
	defer tx.Rollback()

	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			return r.existingRefund(ctx, userID, origID)
		}
		return repo.RefundResult{}, fmt.Errorf("refund journal: %w", err)
	}
	b, err := creditBalance(ctx, tx, userID, amount, entry.Currency)
	if err != nil {
		return repo.RefundResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund commit: %w", err)
	}
	return repo.RefundResult{Entry: entry, Balance: b}, nil
}

func (r *ledgerRepo) existingRefund(ctx context.Context, userID, originatingTxID string) (repo.RefundResult, error) {
	prior, err := r.FindRefundFor(ctx, originatingTxID)
	if err != nil {
		return repo.RefundResult{}, err
	}
	var (
		b  models.Balance
		ts string
	)
	err = r.db.QueryRowContext(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=?`, userID,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.RefundResult{}, apperr.ErrAccountNotFound
	}
	if err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund balance read: %w", err)
	}
	b.UpdatedAt = parseTime(ts)
	return repo.RefundResult{Entry: prior, Balance: b, Duplicate: true}, nil
}

func (r *ledgerRepo) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, apperr.ErrTxnNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return e, nil
}

func (r *ledgerRepo) FindRefundFor(ctx context.Context, originatingTxID string) (models.Transaction, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions
		  WHERE related_transaction_id=? AND direction='credit'`,
		originatingTxID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, apperr.ErrTxnNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find refund: %w", err)
	}
	return e, nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM transactions
		  WHERE user_id=?
		  ORDER BY created_at DESC
		  LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
