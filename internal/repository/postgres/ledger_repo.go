package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
	repo "github.com/dua-platform/credits-backend/internal/repository"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

const entryColumns = `id, user_id, direction, amount, currency, operation, status, metadata, related_transaction_id, created_at`

// insertEntry appends one journal row inside the caller's transaction and
// returns it with the server-assigned timestamp.
func insertEntry(ctx context.Context, tx pgx.Tx, e models.Transaction) (models.Transaction, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Currency == "" {
		e.Currency = models.CurrencyCredits
	}
	if e.Status == "" {
		e.Status = models.TxnCompleted
	}
	var meta []byte
	if e.Metadata != nil {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return models.Transaction{}, fmt.Errorf("encode metadata: %w", err)
		}
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (`+entryColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		 RETURNING created_at`,
		e.ID, e.UserID, e.Direction, e.Amount, e.Currency, e.Operation, e.Status, meta, e.RelatedTransactionID,
	).Scan(&e.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	return e, nil
}

func scanEntry(row pgx.Row) (models.Transaction, error) {
	var (
		e    models.Transaction
		meta []byte
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Direction, &e.Amount, &e.Currency, &e.Operation, &e.Status, &meta, &e.RelatedTransactionID, &e.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return models.Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return e, nil
}

// Deduct is the authoritative spend: one guarded UPDATE plus the journal
// insert, both in the same transaction. The WHERE clause is the entire
// overdraft protection; there is no application-level compare.
func (r *ledgerRepo) Deduct(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var b models.Balance
	err = tx.QueryRow(ctx,
		`UPDATE balances
		    SET credits = credits - $2,
		        updated_at = now()
		  WHERE user_id = $1 AND credits >= $2
		  RETURNING user_id, credits, coins, updated_at`,
		userID, amount,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows: account missing or guard failed. The distinction is
		// for the error value only; the spend already lost either way.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM balances WHERE user_id=$1)`, userID).Scan(&exists); err != nil {
			return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct exists check: %w", err)
		}
		if !exists {
			return models.Balance{}, models.Transaction{}, apperr.ErrAccountNotFound
		}
		return models.Balance{}, models.Transaction{}, apperr.ErrInsufficientFunds
	}
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct update: %w", err)
	}

	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct journal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("deduct commit: %w", err)
	}
	return b, entry, nil
}

func (r *ledgerRepo) Credit(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := creditBalance(ctx, tx, userID, amount, entry.Currency)
	if err != nil {
		return models.Balance{}, models.Transaction{}, err
	}
	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit journal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Balance{}, models.Transaction{}, fmt.Errorf("credit commit: %w", err)
	}
	return b, entry, nil
}

func creditBalance(ctx context.Context, tx pgx.Tx, userID string, amount int64, currency models.Currency) (models.Balance, error) {
	column := "credits"
	if currency == models.CurrencyCoins {
		column = "coins"
	}
	var b models.Balance
	err := tx.QueryRow(ctx,
		`UPDATE balances
		    SET `+column+` = `+column+` + $2,
		        updated_at = now()
		  WHERE user_id = $1
		  RETURNING user_id, credits, coins, updated_at`,
		userID, amount,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{}, apperr.ErrAccountNotFound
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("credit update: %w", err)
	}
	return b, nil
}

// Refund relies on the partial unique index over related_transaction_id: the
// journal insert goes first, so a concurrent duplicate loses on the index,
// not on a racy pre-read.
func (r *ledgerRepo) Refund(ctx context.Context, userID string, amount int64, entry models.Transaction) (repo.RefundResult, error) {
	if entry.RelatedTransactionID == nil {
		return repo.RefundResult{}, apperr.NewValidationError("transaction_id", "refund requires the originating transaction id")
	}
	origID := *entry.RelatedTransactionID

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund begin: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err = insertEntry(ctx, tx, entry)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			_ = tx.Rollback(ctx)
			return r.existingRefund(ctx, userID, origID)
		}
		return repo.RefundResult{}, fmt.Errorf("refund journal: %w", err)
	}

	b, err := creditBalance(ctx, tx, userID, amount, entry.Currency)
	if err != nil {
		return repo.RefundResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund commit: %w", err)
	}
	return repo.RefundResult{Entry: entry, Balance: b}, nil
}

func (r *ledgerRepo) existingRefund(ctx context.Context, userID, originatingTxID string) (repo.RefundResult, error) {
	prior, err := r.FindRefundFor(ctx, originatingTxID)
	if err != nil {
		return repo.RefundResult{}, err
	}
	var b models.Balance
	err = r.pool.QueryRow(ctx,
		`SELECT user_id, credits, coins, updated_at FROM balances WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &b.Credits, &b.Coins, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.RefundResult{}, apperr.ErrAccountNotFound
	}
	if err != nil {
		return repo.RefundResult{}, fmt.Errorf("refund balance read: %w", err)
	}
	return repo.RefundResult{Entry: prior, Balance: b, Duplicate: true}, nil
}

func (r *ledgerRepo) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, apperr.ErrTxnNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return e, nil
}

func (r *ledgerRepo) FindRefundFor(ctx context.Context, originatingTxID string) (models.Transaction, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM transactions
		  WHERE related_transaction_id=$1 AND direction='credit'`,
		originatingTxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, apperr.ErrTxnNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find refund: %w", err)
	}
	return e, nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM transactions
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
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
