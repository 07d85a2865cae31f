package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/metrics"
	"github.com/dua-platform/credits-backend/internal/provider"
)

// Spend-attempt states. Every request terminates in exactly one of these;
// there are no retries inside this core.
type SpendState string

const (
	StateCheckFailed      SpendState = "CHECK_FAILED"
	StateActionFailed     SpendState = "ACTION_FAILED"
	StateBilled           SpendState = "BILLED"
	StateBillingShortfall SpendState = "BILLING_SHORTFALL"
)

// PaidActionRunner is the call pattern every billable endpoint follows:
// advisory check, external side effect, authoritative billing. Billing only
// ever happens after the external action succeeded.
type PaidActionRunner struct {
	credits *CreditService
	prov    provider.Provider
	log     *slog.Logger
}

func NewPaidActionRunner(credits *CreditService, prov provider.Provider, log *slog.Logger) *PaidActionRunner {
	if log == nil {
		log = slog.Default()
	}
	return &PaidActionRunner{credits: credits, prov: prov, log: log}
}

type PaidActionRequest struct {
	UserID    string         `json:"user_id"`
	Operation string         `json:"operation"`
	Payload   map[string]any `json:"payload,omitempty"`

	// RequestID keys the reconciliation record if billing falls short.
	RequestID string `json:"-"`
}

type PaidActionResponse struct {
	Success       bool       `json:"success"`
	TaskID        string     `json:"task_id"`
	CreditsUsed   int64      `json:"credits_used"`
	NewBalance    *int64     `json:"new_balance,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	State         SpendState `json:"-"`
}

// Run executes one spend attempt. Outcomes:
//   - advisory check fails: InsufficientFunds before any external cost.
//   - provider fails: its error passes through, nothing billed.
//   - provider succeeds, billing succeeds: BILLED.
//   - provider succeeds, billing fails (balance drained by a concurrent
//     spend): BILLING_SHORTFALL, and the user keeps the result. Failing the
//     request now would charge them in product terms for our race; instead
//     the shortfall is logged and counted for reconciliation.
func (r *PaidActionRunner) Run(ctx context.Context, req PaidActionRequest) (PaidActionResponse, error) {
	if req.UserID == "" {
		return PaidActionResponse{}, apperr.NewValidationError("user_id", "required")
	}
	if req.Operation == "" {
		return PaidActionResponse{}, apperr.NewValidationError("operation", "required")
	}

	check, err := r.credits.Check(ctx, req.UserID, req.Operation)
	if err != nil {
		return PaidActionResponse{State: StateCheckFailed}, err
	}
	if !check.HasCredits {
		return PaidActionResponse{State: StateCheckFailed}, &apperr.InsufficientFundsError{
			Operation: req.Operation,
			Required:  check.Required,
			Current:   check.CurrentBalance,
		}
	}

	res, err := r.prov.Submit(ctx, req.Operation, req.Payload)
	if err != nil {
		return PaidActionResponse{State: StateActionFailed}, err
	}

	meta := map[string]any{"task_id": res.TaskID}
	if req.RequestID != "" {
		meta["request_id"] = req.RequestID
	}
	ded, err := r.credits.Deduct(ctx, req.UserID, req.Operation, meta)
	if err != nil {
		// The external action already happened and cannot be undone cheaply.
		cost, _ := r.credits.Cost(req.Operation)
		metrics.BillingShortfalls.Inc()
		r.log.Error("billing shortfall",
			"user_id", req.UserID,
			"operation", req.Operation,
			"task_id", res.TaskID,
			"request_id", req.RequestID,
			"amount", cost,
			"err", err,
			"insufficient", errors.Is(err, apperr.ErrInsufficientFunds),
		)
		return PaidActionResponse{
			Success:     true,
			TaskID:      res.TaskID,
			CreditsUsed: 0,
			State:       StateBillingShortfall,
		}, nil
	}

	nb := ded.NewBalance
	return PaidActionResponse{
		Success:       true,
		TaskID:        res.TaskID,
		CreditsUsed:   ded.Amount,
		NewBalance:    &nb,
		TransactionID: ded.TransactionID,
		State:         StateBilled,
	}, nil
}
