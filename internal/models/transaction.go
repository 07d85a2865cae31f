package models

import "time"

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

type Currency string

const (
	CurrencyCredits Currency = "credits"
	CurrencyCoins   Currency = "coins"
)

// Reserved operation tags for entries that do not map to a catalog
// operation.
const (
	OpGrant  = "grant"
	OpRefund = "refund"
)

type TransactionStatus string

const TxnCompleted TransactionStatus = "completed"

// Transaction is one immutable journal entry. Every balance mutation has
// exactly one; entries are never updated or deleted after insert.
type Transaction struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"user_id"`
	Direction            Direction         `json:"direction"`
	Amount               int64             `json:"amount"`
	Currency             Currency          `json:"currency"`
	Operation            string            `json:"operation"`
	Status               TransactionStatus `json:"status"`
	Metadata             map[string]any    `json:"metadata,omitempty"`
	RelatedTransactionID *string           `json:"related_transaction_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}
