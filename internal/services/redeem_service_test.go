package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/repository/sqlite"
)

func newRedeemFixture(t *testing.T) *RedeemService {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlite.NewStores(db)
	return NewRedeemService(stores.Codes, slog.Default())
}

func TestClaimOnce(t *testing.T) {
	svc := newRedeemFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateCode(ctx, "LAUNCH-2026"); err != nil {
		t.Fatalf("create code: %v", err)
	}

	res, err := svc.ClaimOnce(ctx, "launch-2026", "alice")
	if err != nil {
		t.Fatalf("ClaimOnce() error: %v", err)
	}
	if !res.Claimed || res.Code != "LAUNCH-2026" {
		t.Errorf("claim = %+v", res)
	}

	// Replays and rival claimants get the same terminal answer.
	if _, err := svc.ClaimOnce(ctx, "LAUNCH-2026", "alice"); !errors.Is(err, apperr.ErrCodeAlreadyClaimed) {
		t.Errorf("replay err = %v, want ErrCodeAlreadyClaimed", err)
	}
	if _, err := svc.ClaimOnce(ctx, "LAUNCH-2026", "bob"); !errors.Is(err, apperr.ErrCodeAlreadyClaimed) {
		t.Errorf("rival err = %v, want ErrCodeAlreadyClaimed", err)
	}
}

func TestClaimUnknownCode(t *testing.T) {
	svc := newRedeemFixture(t)
	_, err := svc.ClaimOnce(context.Background(), "NO-SUCH-CODE", "alice")
	if !errors.Is(err, apperr.ErrCodeNotFound) {
		t.Errorf("err = %v, want ErrCodeNotFound", err)
	}
}

func TestClaimValidation(t *testing.T) {
	svc := newRedeemFixture(t)
	ctx := context.Background()
	if _, err := svc.ClaimOnce(ctx, "  ", "alice"); !apperr.IsValidation(err) {
		t.Errorf("blank code: err = %v", err)
	}
	if _, err := svc.ClaimOnce(ctx, "LAUNCH-2026", ""); !apperr.IsValidation(err) {
		t.Errorf("blank claimant: err = %v", err)
	}
}

func TestGenerateCodes(t *testing.T) {
	svc := newRedeemFixture(t)
	ctx := context.Background()

	codes, err := svc.GenerateCodes(ctx, 5, "dua")
	if err != nil {
		t.Fatalf("GenerateCodes() error: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("codes = %d, want 5", len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if !strings.HasPrefix(code, "DUA-") {
			t.Errorf("code %q missing uppercased prefix", code)
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		seen[code] = true

		// every minted code is immediately claimable
		c, err := svc.GetCode(ctx, code)
		if err != nil || !c.Active {
			t.Errorf("code %q: active=%v err=%v", code, c.Active, err)
		}
	}

	if _, err := svc.GenerateCodes(ctx, 0, "DUA"); !apperr.IsValidation(err) {
		t.Errorf("count 0: err = %v", err)
	}
	if _, err := svc.GenerateCodes(ctx, 100001, "DUA"); !apperr.IsValidation(err) {
		t.Errorf("excessive count: err = %v", err)
	}
}

func TestClaimConcurrentOneWinner(t *testing.T) {
	svc := newRedeemFixture(t)
	ctx := context.Background()
	if _, err := svc.CreateCode(ctx, "GOLDEN-TICKET"); err != nil {
		t.Fatal(err)
	}

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < n; i++ {
		claimant := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ClaimOnce(ctx, "GOLDEN-TICKET", claimant)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Claimed:
				winners = append(winners, claimant)
			case errors.Is(err, apperr.ErrCodeAlreadyClaimed):
				losers++
			default:
				t.Errorf("claimant %s: unexpected result %+v / %v", claimant, res, err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 || losers != n-1 {
		t.Fatalf("winners=%v losers=%d, want exactly one winner", winners, losers)
	}

	c, err := svc.GetCode(ctx, "GOLDEN-TICKET")
	if err != nil {
		t.Fatal(err)
	}
	if c.Active || c.OwnerClaim == nil || *c.OwnerClaim != winners[0] {
		t.Errorf("code after race = %+v, want owned by %s", c, winners[0])
	}
}
