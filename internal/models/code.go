package models

import "time"

// RedeemableCode is a single-use resource (invite/access code). Active flips
// true -> false exactly once, atomically with OwnerClaim being set. A code
// with Active=false and a nil OwnerClaim was revoked, not claimed.
type RedeemableCode struct {
	Code       string     `json:"code"`
	Active     bool       `json:"active"`
	OwnerClaim *string    `json:"owner_claim,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
