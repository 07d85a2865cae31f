package models

import "time"

// Balance is the per-account spendable state. Credits is the primary
// currency; Coins is a secondary balance carried on the same row. Both are
// always >= 0; the invariant lives in the store's guarded updates, never in
// application-level compares.
type Balance struct {
	UserID    string    `json:"user_id"`
	Credits   int64     `json:"credits"`
	Coins     int64     `json:"coins"`
	UpdatedAt time.Time `json:"updated_at"`
}
