package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/catalog"
	"github.com/dua-platform/credits-backend/internal/repository/sqlite"
)

func newFixture(t *testing.T) *CreditService {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlite.NewStores(db)
	return NewCreditService(catalog.Default(), stores.Balances, stores.Ledger, nil, slog.Default(), 100, 50)
}

func mustProvision(t *testing.T, svc *CreditService, userID string) {
	t.Helper()
	if _, _, err := svc.Provision(context.Background(), userID); err != nil {
		t.Fatalf("provision %s: %v", userID, err)
	}
}

func TestCheckAdvisory(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1")

	res, err := svc.Check(ctx, "u1", "image_standard") // costs 25
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !res.HasCredits || res.Required != 25 || res.CurrentBalance != 100 || res.Deficit != 0 {
		t.Errorf("check = %+v", res)
	}
}

func TestCheckDeficit(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1") // 100 credits

	res, err := svc.Check(ctx, "u1", "music_split_stem_full") // costs 50... still affordable
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasCredits {
		t.Errorf("check = %+v, want affordable", res)
	}

	// drain to 0 then re-check
	for i := 0; i < 4; i++ {
		if _, err := svc.Deduct(ctx, "u1", "image_standard", nil); err != nil {
			t.Fatal(err)
		}
	}
	res, err = svc.Check(ctx, "u1", "image_standard")
	if err != nil {
		t.Fatal(err)
	}
	if res.HasCredits || res.CurrentBalance != 0 || res.Deficit != 25 {
		t.Errorf("drained check = %+v", res)
	}
}

func TestCheckFreeOperation(t *testing.T) {
	svc := newFixture(t)
	res, err := svc.Check(context.Background(), "nobody", "chat_basic")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !res.HasCredits || !res.Free || res.Required != 0 {
		t.Errorf("free check = %+v", res)
	}
}

func TestDeductSequential(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1") // 100

	first, err := svc.Deduct(ctx, "u1", "image_standard", map[string]any{"prompt": "sunset"})
	if err != nil {
		t.Fatalf("Deduct() error: %v", err)
	}
	if first.NewBalance != 75 {
		t.Errorf("new balance = %d, want 75", first.NewBalance)
	}
	if first.TransactionID == "" {
		t.Error("missing transaction id")
	}

	// The second spend must observe the post-first balance, never recompute
	// from the starting state.
	second, err := svc.Deduct(ctx, "u1", "image_standard", nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.NewBalance != 50 {
		t.Errorf("new balance = %d, want 50", second.NewBalance)
	}
}

func TestDeductUnknownOperationNoMutation(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1")

	_, err := svc.Deduct(ctx, "u1", "not_a_real_op", nil)
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	b, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Credits != 100 {
		t.Errorf("balance = %d, want 100", b.Credits)
	}
	txs, err := svc.History(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 { // only the provisioning grant
		t.Errorf("journal entries = %d, want 1", len(txs))
	}
}

func TestDeductFreeOperationNoJournal(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1")

	res, err := svc.Deduct(ctx, "u1", "chat_basic", nil)
	if err != nil {
		t.Fatalf("Deduct() error: %v", err)
	}
	if !res.Free || res.NewBalance != 100 || res.TransactionID != "" {
		t.Errorf("free deduct = %+v", res)
	}
	txs, _ := svc.History(ctx, "u1", 10, 0)
	if len(txs) != 1 {
		t.Errorf("journal entries = %d, want 1", len(txs))
	}
}

// With balance k*C and N>k concurrent spends of C, exactly k must succeed
// and the rest fail with insufficient funds, regardless of arrival order.
func TestDeductExactKUnderContention(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1") // 100 = 4 * 25

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deduct(ctx, "u1", "image_standard", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrInsufficientFunds):
				failed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 4 || failed != n-4 {
		t.Fatalf("succeeded=%d failed=%d, want 4/%d", succeeded, failed, n-4)
	}

	b, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Credits != 0 {
		t.Errorf("final balance = %d, want 0", b.Credits)
	}
	// every successful spend has exactly one journal entry
	txs, _ := svc.History(ctx, "u1", 50, 0)
	if len(txs) != 5 { // grant + 4 debits
		t.Errorf("journal entries = %d, want 5", len(txs))
	}
}

func TestRefundIdempotent(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1")

	ded, err := svc.Deduct(ctx, "u1", "image_standard", nil)
	if err != nil {
		t.Fatal(err)
	}

	first, err := svc.Refund(ctx, "u1", ded.TransactionID, 25, "provider timed out")
	if err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if first.Duplicate || first.NewBalance != 100 {
		t.Errorf("first refund = %+v", first)
	}

	second, err := svc.Refund(ctx, "u1", ded.TransactionID, 25, "provider timed out")
	if err != nil {
		t.Fatalf("second Refund() error: %v", err)
	}
	if !second.Duplicate {
		t.Error("second refund must be a duplicate no-op")
	}
	if second.NewBalance != 100 {
		t.Errorf("balance after replay = %d, want 100", second.NewBalance)
	}
	if second.TransactionID != first.TransactionID {
		t.Error("replay must return the original refund id")
	}
}

func TestRefundValidation(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()

	if _, err := svc.Refund(ctx, "u1", "", 25, "x"); !apperr.IsValidation(err) {
		t.Errorf("missing txn id: err = %v", err)
	}
	if _, err := svc.Refund(ctx, "u1", "tx", 0, "x"); !apperr.IsValidation(err) {
		t.Errorf("zero amount: err = %v", err)
	}
}

func TestGrantBatchIsolation(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	mustProvision(t, svc, "u1")
	mustProvision(t, svc, "u3")

	report, err := svc.GrantBatch(ctx, []string{"u1", "missing", "u3"}, 10, "promo", "admin@dua")
	if err != nil {
		t.Fatalf("GrantBatch() error: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	byUser := map[string]GrantItem{}
	for _, item := range report.Results {
		byUser[item.UserID] = item
	}
	if !byUser["u1"].Success || byUser["u1"].NewBalance != 110 {
		t.Errorf("u1 = %+v", byUser["u1"])
	}
	if !byUser["u3"].Success || byUser["u3"].NewBalance != 110 {
		t.Errorf("u3 = %+v", byUser["u3"])
	}
	if byUser["missing"].Success {
		t.Error("missing user must fail")
	}
	if report.Summary.Succeeded != 2 || report.Summary.Failed != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestGrantBatchValidation(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()
	if _, err := svc.GrantBatch(ctx, nil, 10, "promo", "a"); !apperr.IsValidation(err) {
		t.Errorf("empty batch: err = %v", err)
	}
	if _, err := svc.GrantBatch(ctx, []string{"u1"}, -1, "promo", "a"); !apperr.IsValidation(err) {
		t.Errorf("negative amount: err = %v", err)
	}
}

func TestProvisionIdempotentAtServiceLevel(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()

	b, created, err := svc.Provision(ctx, "u1")
	if err != nil || !created {
		t.Fatalf("first provision: created=%v err=%v", created, err)
	}
	if b.Credits != 100 || b.Coins != 50 {
		t.Errorf("initial grant = %d/%d, want 100/50", b.Credits, b.Coins)
	}

	b, created, err = svc.Provision(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if created || b.Credits != 100 {
		t.Errorf("re-provision: created=%v credits=%d", created, b.Credits)
	}
}

// Deduct against a catalog loaded from a TOML file, end to end.
func TestDeductWithLoadedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	data := "[operations.video_gen4_turbo_5s]\ncost = 25\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlite.NewStores(db)
	svc := NewCreditService(cat, stores.Balances, stores.Ledger, nil, slog.Default(), 100, 0)

	ctx := context.Background()
	if _, _, err := svc.Provision(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Deduct(ctx, "u1", "video_gen4_turbo_5s", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBalance != 75 {
		t.Errorf("new balance = %d, want 75", res.NewBalance)
	}
}
