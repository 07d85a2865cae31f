package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/catalog"
	"github.com/dua-platform/credits-backend/internal/provider"
	"github.com/dua-platform/credits-backend/internal/repository/sqlite"
)

// providerFunc adapts a closure to provider.Provider for tests.
type providerFunc func(ctx context.Context, operation string, payload map[string]any) (provider.Result, error)

func (f providerFunc) Submit(ctx context.Context, operation string, payload map[string]any) (provider.Result, error) {
	return f(ctx, operation, payload)
}

func okProvider(taskID string) provider.Provider {
	return providerFunc(func(context.Context, string, map[string]any) (provider.Result, error) {
		return provider.Result{TaskID: taskID}, nil
	})
}

func newRunnerFixture(t *testing.T, initialCredits int64, prov provider.Provider) (*CreditService, *PaidActionRunner) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlite.NewStores(db)
	credits := NewCreditService(catalog.Default(), stores.Balances, stores.Ledger, nil, slog.Default(), initialCredits, 0)
	return credits, NewPaidActionRunner(credits, prov, slog.Default())
}

func TestRunBilled(t *testing.T) {
	credits, runner := newRunnerFixture(t, 100, okProvider("task-1"))
	ctx := context.Background()
	if _, _, err := credits.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	resp, err := runner.Run(ctx, PaidActionRequest{UserID: "u1", Operation: "image_standard"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !resp.Success || resp.State != StateBilled {
		t.Errorf("response = %+v", resp)
	}
	if resp.TaskID != "task-1" || resp.CreditsUsed != 25 {
		t.Errorf("response = %+v", resp)
	}
	if resp.NewBalance == nil || *resp.NewBalance != 75 {
		t.Errorf("new balance = %v, want 75", resp.NewBalance)
	}
	if resp.TransactionID == "" {
		t.Error("missing transaction id")
	}
}

func TestRunCheckFailed(t *testing.T) {
	called := false
	prov := providerFunc(func(context.Context, string, map[string]any) (provider.Result, error) {
		called = true
		return provider.Result{}, nil
	})
	credits, runner := newRunnerFixture(t, 10, prov)
	ctx := context.Background()
	if _, _, err := credits.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	resp, err := runner.Run(ctx, PaidActionRequest{UserID: "u1", Operation: "image_standard"})
	if resp.State != StateCheckFailed {
		t.Errorf("state = %s, want CHECK_FAILED", resp.State)
	}
	var ife *apperr.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if ife.Required != 25 || ife.Current != 10 || ife.Deficit() != 15 {
		t.Errorf("error detail = %+v", ife)
	}
	if called {
		t.Error("provider must not run when the check fails")
	}
	b, _ := credits.Balance(ctx, "u1")
	if b.Credits != 10 {
		t.Errorf("balance = %d, want untouched 10", b.Credits)
	}
}

func TestRunProviderFailureNotBilled(t *testing.T) {
	provErr := &apperr.UpstreamError{Status: 503, Message: "renderer unavailable"}
	prov := providerFunc(func(context.Context, string, map[string]any) (provider.Result, error) {
		return provider.Result{}, provErr
	})
	credits, runner := newRunnerFixture(t, 100, prov)
	ctx := context.Background()
	if _, _, err := credits.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	resp, err := runner.Run(ctx, PaidActionRequest{UserID: "u1", Operation: "image_standard"})
	if resp.State != StateActionFailed {
		t.Errorf("state = %s, want ACTION_FAILED", resp.State)
	}
	var ue *apperr.UpstreamError
	if !errors.As(err, &ue) || ue.Status != 503 {
		t.Fatalf("err = %v, want the upstream error", err)
	}
	b, _ := credits.Balance(ctx, "u1")
	if b.Credits != 100 {
		t.Errorf("balance = %d, want untouched 100", b.Credits)
	}
	txs, _ := credits.History(ctx, "u1", 10, 0)
	if len(txs) != 1 {
		t.Errorf("journal entries = %d, want only the provisioning grant", len(txs))
	}
}

// The balance passes the advisory check, then a rival spend drains it while
// the provider runs. The user keeps the result; the gap is counted, not
// charged back.
func TestRunBillingShortfall(t *testing.T) {
	var credits *CreditService
	ctx := context.Background()
	prov := providerFunc(func(context.Context, string, map[string]any) (provider.Result, error) {
		if _, err := credits.Deduct(ctx, "u1", "image_standard", nil); err != nil {
			return provider.Result{}, err
		}
		return provider.Result{TaskID: "task-9"}, nil
	})
	credits, runner := newRunnerFixture(t, 25, prov)
	if _, _, err := credits.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	resp, err := runner.Run(ctx, PaidActionRequest{UserID: "u1", Operation: "image_standard", RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !resp.Success || resp.State != StateBillingShortfall {
		t.Errorf("response = %+v, want BILLING_SHORTFALL success", resp)
	}
	if resp.TaskID != "task-9" || resp.CreditsUsed != 0 || resp.NewBalance != nil {
		t.Errorf("response = %+v", resp)
	}

	// Only the rival's debit was billed.
	b, _ := credits.Balance(ctx, "u1")
	if b.Credits != 0 {
		t.Errorf("balance = %d, want 0", b.Credits)
	}
	txs, _ := credits.History(ctx, "u1", 10, 0)
	if len(txs) != 2 { // grant + rival debit
		t.Errorf("journal entries = %d, want 2", len(txs))
	}
}

func TestRunFreeOperation(t *testing.T) {
	credits, runner := newRunnerFixture(t, 0, okProvider("task-2"))
	ctx := context.Background()
	if _, _, err := credits.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	resp, err := runner.Run(ctx, PaidActionRequest{UserID: "u1", Operation: "chat_basic"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !resp.Success || resp.State != StateBilled || resp.CreditsUsed != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestRunValidation(t *testing.T) {
	_, runner := newRunnerFixture(t, 0, okProvider("x"))
	ctx := context.Background()
	if _, err := runner.Run(ctx, PaidActionRequest{Operation: "chat_basic"}); !apperr.IsValidation(err) {
		t.Errorf("missing user: err = %v", err)
	}
	if _, err := runner.Run(ctx, PaidActionRequest{UserID: "u1"}); !apperr.IsValidation(err) {
		t.Errorf("missing operation: err = %v", err)
	}
}
