package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/catalog"
	"github.com/dua-platform/credits-backend/internal/metrics"
	"github.com/dua-platform/credits-backend/internal/models"
	repo "github.com/dua-platform/credits-backend/internal/repository"
	"github.com/dua-platform/credits-backend/internal/worker"
)

type CreditService struct {
	cat *catalog.Catalog
	bal repo.Balances
	led repo.Ledger
	wp  *worker.Pool
	log *slog.Logger

	initialCredits int64
	initialCoins   int64
}

func NewCreditService(cat *catalog.Catalog, bal repo.Balances, led repo.Ledger, wp *worker.Pool, log *slog.Logger, initialCredits, initialCoins int64) *CreditService {
	if log == nil {
		log = slog.Default()
	}
	return &CreditService{
		cat: cat, bal: bal, led: led, wp: wp, log: log,
		initialCredits: initialCredits, initialCoins: initialCoins,
	}
}

// CheckResult reports whether a spend would currently succeed. Advisory
// only: the balance can change before any later Deduct, so this never
// substitutes for the guarded update.
type CheckResult struct {
	HasCredits     bool  `json:"has_credits"`
	Required       int64 `json:"required"`
	CurrentBalance int64 `json:"current_balance"`
	Deficit        int64 `json:"deficit"`
	Free           bool  `json:"free"`
}

func (s *CreditService) Check(ctx context.Context, userID, operation string) (CheckResult, error) {
	if userID == "" {
		return CheckResult{}, apperr.NewValidationError("user_id", "required")
	}
	cost, err := s.cat.Cost(operation)
	if err != nil {
		return CheckResult{}, err
	}

	current := int64(0)
	b, err := s.bal.Get(ctx, userID)
	switch {
	case err == nil:
		current = b.Credits
	case errors.Is(err, apperr.ErrAccountNotFound):
		// Unknown accounts read as zero balance; provisioning is explicit.
	default:
		return CheckResult{}, err
	}

	if cost == 0 {
		return CheckResult{HasCredits: true, CurrentBalance: current, Free: true}, nil
	}
	deficit := int64(0)
	if current < cost {
		deficit = cost - current
	}
	return CheckResult{
		HasCredits:     deficit == 0,
		Required:       cost,
		CurrentBalance: current,
		Deficit:        deficit,
	}, nil
}

type DeductResult struct {
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount"`
	Free          bool   `json:"free,omitempty"`
}

// Deduct is the only legitimate way to charge for a billable action. The
// compare lives in the store's guarded update; on a shortfall at commit time
// it returns InsufficientFundsError and nothing was written.
func (s *CreditService) Deduct(ctx context.Context, userID, operation string, metadata map[string]any) (DeductResult, error) {
	if userID == "" {
		return DeductResult{}, apperr.NewValidationError("user_id", "required")
	}
	cost, err := s.cat.Cost(operation)
	if err != nil {
		return DeductResult{}, err
	}
	if cost == 0 {
		// Free operations are never journaled.
		current := int64(0)
		if b, err := s.bal.Get(ctx, userID); err == nil {
			current = b.Credits
		}
		return DeductResult{NewBalance: current, Free: true}, nil
	}

	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: models.Debit,
		Amount:    cost,
		Currency:  models.CurrencyCredits,
		Operation: operation,
		Metadata:  s.entryMetadata(operation, metadata),
	}
	b, entry, err := s.led.Deduct(ctx, userID, cost, entry)
	if errors.Is(err, apperr.ErrInsufficientFunds) {
		metrics.DeductionsTotal.WithLabelValues("insufficient").Inc()
		current := int64(0)
		if cur, gerr := s.bal.Get(ctx, userID); gerr == nil {
			current = cur.Credits
		}
		return DeductResult{}, &apperr.InsufficientFundsError{Operation: operation, Required: cost, Current: current}
	}
	if err != nil {
		if !errors.Is(err, apperr.ErrAccountNotFound) {
			metrics.DeductionsTotal.WithLabelValues("error").Inc()
		}
		return DeductResult{}, err
	}
	metrics.DeductionsTotal.WithLabelValues("ok").Inc()
	s.log.Debug("credits deducted", "user_id", userID, "operation", operation, "amount", cost, "new_balance", b.Credits, "transaction_id", entry.ID)
	return DeductResult{NewBalance: b.Credits, TransactionID: entry.ID, Amount: cost}, nil
}

type RefundOutcome struct {
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

// Refund is the compensating step of the spend saga: credit the amount back
// and link the entry to the originating debit. At most one refund per
// originating transaction; replays return the first outcome unchanged.
func (s *CreditService) Refund(ctx context.Context, userID, originatingTxID string, amount int64, reason string) (RefundOutcome, error) {
	if userID == "" {
		return RefundOutcome{}, apperr.NewValidationError("user_id", "required")
	}
	if originatingTxID == "" {
		return RefundOutcome{}, apperr.NewValidationError("transaction_id", "required")
	}
	if amount <= 0 {
		return RefundOutcome{}, apperr.NewValidationError("amount", "must be > 0")
	}

	entry := models.Transaction{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Direction:            models.Credit,
		Amount:               amount,
		Currency:             models.CurrencyCredits,
		Operation:            models.OpRefund,
		Metadata:             map[string]any{"reason": reason},
		RelatedTransactionID: &originatingTxID,
	}
	res, err := s.led.Refund(ctx, userID, amount, entry)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("error").Inc()
		return RefundOutcome{}, err
	}
	if res.Duplicate {
		metrics.RefundsTotal.WithLabelValues("duplicate").Inc()
		s.log.Info("duplicate refund ignored", "user_id", userID, "originating_transaction_id", originatingTxID)
	} else {
		metrics.RefundsTotal.WithLabelValues("ok").Inc()
		s.log.Info("credits refunded", "user_id", userID, "amount", amount, "originating_transaction_id", originatingTxID, "reason", reason)
	}
	return RefundOutcome{
		NewBalance:    res.Balance.Credits,
		TransactionID: res.Entry.ID,
		Duplicate:     res.Duplicate,
	}, nil
}

type GrantItem struct {
	UserID     string `json:"user_id"`
	Success    bool   `json:"success"`
	NewBalance int64  `json:"new_balance,omitempty"`
	Error      string `json:"error,omitempty"`
}

type GrantReport struct {
	Results []GrantItem `json:"results"`
	Summary struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"summary"`
}

// GrantBatch credits every listed account independently: one bad user id
// fails its own item and nothing else. No transaction spans the batch.
func (s *CreditService) GrantBatch(ctx context.Context, userIDs []string, amount int64, reason, actor string) (GrantReport, error) {
	if len(userIDs) == 0 {
		return GrantReport{}, apperr.NewValidationError("user_ids", "must not be empty")
	}
	if amount <= 0 {
		return GrantReport{}, apperr.NewValidationError("amount", "must be > 0")
	}

	report := GrantReport{Results: make([]GrantItem, len(userIDs))}
	var wg sync.WaitGroup
	for i, uid := range userIDs {
		i, uid := i, uid
		wg.Add(1)
		run := func() {
			defer wg.Done()
			report.Results[i] = s.grantOne(ctx, uid, amount, reason, actor)
		}
		if s.wp != nil {
			s.wp.Submit(run)
		} else {
			go run()
		}
	}
	wg.Wait()

	for _, item := range report.Results {
		if item.Success {
			report.Summary.Succeeded++
		} else {
			report.Summary.Failed++
		}
	}
	return report, nil
}

func (s *CreditService) grantOne(ctx context.Context, userID string, amount int64, reason, actor string) GrantItem {
	if userID == "" {
		metrics.GrantItemsTotal.WithLabelValues("error").Inc()
		return GrantItem{UserID: userID, Error: "user_id required"}
	}
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: models.Credit,
		Amount:    amount,
		Currency:  models.CurrencyCredits,
		Operation: models.OpGrant,
		Metadata:  map[string]any{"reason": reason, "admin_actor": actor},
	}
	b, _, err := s.led.Credit(ctx, userID, amount, entry)
	if err != nil {
		metrics.GrantItemsTotal.WithLabelValues("error").Inc()
		return GrantItem{UserID: userID, Error: err.Error()}
	}
	metrics.GrantItemsTotal.WithLabelValues("ok").Inc()
	return GrantItem{UserID: userID, Success: true, NewBalance: b.Credits}
}

// Provision creates the account's balance row with the configured initial
// grant. Idempotent: re-provisioning an existing account changes nothing.
func (s *CreditService) Provision(ctx context.Context, userID string) (models.Balance, bool, error) {
	if userID == "" {
		return models.Balance{}, false, apperr.NewValidationError("user_id", "required")
	}
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: models.Credit,
		Amount:    s.initialCredits,
		Currency:  models.CurrencyCredits,
		Operation: models.OpGrant,
		Metadata:  map[string]any{"reason": "initial_grant"},
	}
	b, created, err := s.bal.Provision(ctx, userID, s.initialCredits, s.initialCoins, entry)
	if err != nil {
		return models.Balance{}, false, err
	}
	if created {
		s.log.Info("account provisioned", "user_id", userID, "credits", s.initialCredits, "coins", s.initialCoins)
	}
	return b, created, nil
}

func (s *CreditService) Balance(ctx context.Context, userID string) (models.Balance, error) {
	if userID == "" {
		return models.Balance{}, apperr.NewValidationError("user_id", "required")
	}
	return s.bal.Get(ctx, userID)
}

func (s *CreditService) Transaction(ctx context.Context, id string) (models.Transaction, error) {
	return s.led.GetTransaction(ctx, id)
}

func (s *CreditService) History(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if userID == "" {
		return nil, apperr.NewValidationError("user_id", "required")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.led.ListByUser(ctx, userID, limit, offset)
}

// Cost exposes catalog pricing to the orchestrator and handlers.
func (s *CreditService) Cost(operation string) (int64, error) { return s.cat.Cost(operation) }

func (s *CreditService) entryMetadata(operation string, extra map[string]any) map[string]any {
	meta := map[string]any{
		"operation_name": s.cat.Name(operation),
		"category":       s.cat.Category(operation),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}
