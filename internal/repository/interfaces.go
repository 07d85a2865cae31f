package repository

import (
	"context"

	"github.com/dua-platform/credits-backend/internal/models"
)

// The store is the only shared mutable state in the system: request handlers
// are stateless, so every transition below must be a single guarded
// statement (or one store transaction around a guarded statement plus its
// journal insert). Implementations must never decompose these into separate
// read, application-level compare, and write steps.

type Balances interface {
	Get(ctx context.Context, userID string) (models.Balance, error)

	// Provision creates the balance row with its initial amounts if it does
	// not exist, writing entry to the journal in the same store transaction.
	// Returns created=false (and no journal write) when the row already
	// exists.
	Provision(ctx context.Context, userID string, credits, coins int64, entry models.Transaction) (models.Balance, bool, error)
}

// RefundResult reports a compensating credit. Duplicate means a refund for
// the same originating transaction already existed; Entry then holds that
// earlier refund and Balance is the untouched current balance.
type RefundResult struct {
	Entry     models.Transaction
	Balance   models.Balance
	Duplicate bool
}

type Ledger interface {
	// Deduct decrements the primary balance by amount only if the balance
	// covers it, appending entry in the same store transaction. Returns
	// ErrInsufficientFunds (no mutation) when the guard fails and
	// ErrAccountNotFound for unknown accounts.
	Deduct(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error)

	// Credit increments the balance column named by entry.Currency,
	// appending entry in the same store transaction. Fails only with
	// ErrAccountNotFound.
	Credit(ctx context.Context, userID string, amount int64, entry models.Transaction) (models.Balance, models.Transaction, error)

	// Refund is Credit guarded by at-most-once semantics per
	// entry.RelatedTransactionID, enforced by the store (unique index), not
	// by a preceding read.
	Refund(ctx context.Context, userID string, amount int64, entry models.Transaction) (RefundResult, error)

	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	FindRefundFor(ctx context.Context, originatingTxID string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
}

type Codes interface {
	Create(ctx context.Context, code string) (models.RedeemableCode, error)
	Get(ctx context.Context, code string) (models.RedeemableCode, error)

	// Claim atomically flips active true -> false and records the claimant.
	// claimed is decided strictly by the affected-row count of that single
	// statement; claimed=false means the code is unknown or already taken,
	// which the caller may distinguish with Get for error messaging only.
	Claim(ctx context.Context, code, claimant string) (models.RedeemableCode, bool, error)
}

// Stores bundles the three store interfaces a backend must provide.
type Stores struct {
	Balances Balances
	Ledger   Ledger
	Codes    Codes
}
