package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/metrics"
	"github.com/dua-platform/credits-backend/internal/models"
	repo "github.com/dua-platform/credits-backend/internal/repository"
)

// RedeemService arbitrates single-use resources (invite codes). It shares
// nothing with the balance ledger except the discipline: one conditional
// statement decides the winner.
type RedeemService struct {
	codes repo.Codes
	log   *slog.Logger
}

func NewRedeemService(codes repo.Codes, log *slog.Logger) *RedeemService {
	if log == nil {
		log = slog.Default()
	}
	return &RedeemService{codes: codes, log: log}
}

type ClaimResult struct {
	Claimed bool   `json:"claimed"`
	Code    string `json:"code"`
}

// ClaimOnce grants the code to claimant iff no one holds it yet. Losing the
// race and claiming a consumed code are the same outcome
// (ErrCodeAlreadyClaimed); a nonexistent code is ErrCodeNotFound. The
// distinction comes from a follow-up read used for the error value only;
// the claim itself was already decided by the store.
func (s *RedeemService) ClaimOnce(ctx context.Context, code, claimant string) (ClaimResult, error) {
	if strings.TrimSpace(code) == "" {
		return ClaimResult{}, apperr.NewValidationError("code", "required")
	}
	if strings.TrimSpace(claimant) == "" {
		return ClaimResult{}, apperr.NewValidationError("claimant", "required")
	}

	c, claimed, err := s.codes.Claim(ctx, code, claimant)
	if err != nil {
		return ClaimResult{}, err
	}
	if claimed {
		metrics.ClaimsTotal.WithLabelValues("won").Inc()
		s.log.Info("code claimed", "code", c.Code, "claimant", claimant)
		return ClaimResult{Claimed: true, Code: c.Code}, nil
	}

	if _, err := s.codes.Get(ctx, code); err != nil {
		metrics.ClaimsTotal.WithLabelValues("not_found").Inc()
		return ClaimResult{}, err
	}
	metrics.ClaimsTotal.WithLabelValues("lost").Inc()
	return ClaimResult{}, apperr.ErrCodeAlreadyClaimed
}

func (s *RedeemService) CreateCode(ctx context.Context, code string) (models.RedeemableCode, error) {
	if strings.TrimSpace(code) == "" {
		return models.RedeemableCode{}, apperr.NewValidationError("code", "required")
	}
	return s.codes.Create(ctx, code)
}

func (s *RedeemService) GetCode(ctx context.Context, code string) (models.RedeemableCode, error) {
	return s.codes.Get(ctx, code)
}

// Ambiguous characters (0/O, 1/I/L) are excluded so codes survive being read
// aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const maxGenerateBatch = 1000

// GenerateCodes mints count random single-use codes of the form
// PREFIX-XXXX-YYY. Collisions with existing codes are retried with a fresh
// random part.
func (s *RedeemService) GenerateCodes(ctx context.Context, count int, prefix string) ([]string, error) {
	if count <= 0 || count > maxGenerateBatch {
		return nil, apperr.NewValidationError("count", fmt.Sprintf("must be between 1 and %d", maxGenerateBatch))
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "DUA"
	}

	out := make([]string, 0, count)
	for len(out) < count {
		code, err := randomCode(prefix)
		if err != nil {
			return nil, err
		}
		c, err := s.codes.Create(ctx, code)
		if err != nil {
			if apperr.IsValidation(err) { // collision, mint another
				continue
			}
			return nil, err
		}
		out = append(out, c.Code)
	}
	return out, nil
}

func randomCode(prefix string) (string, error) {
	segment := func(n int) (string, error) {
		var b strings.Builder
		for i := 0; i < n; i++ {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
			if err != nil {
				return "", err
			}
			b.WriteByte(codeAlphabet[idx.Int64()])
		}
		return b.String(), nil
	}
	a, err := segment(4)
	if err != nil {
		return "", err
	}
	b, err := segment(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), a, b), nil
}
