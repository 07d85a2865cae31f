package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
)

type codesRepo struct{ pool *pgxpool.Pool }

// Codes are stored uppercase; lookups normalize, so matching is
// case-insensitive.
func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (r *codesRepo) Create(ctx context.Context, code string) (models.RedeemableCode, error) {
	var c models.RedeemableCode
	err := r.pool.QueryRow(ctx,
		`INSERT INTO invite_codes(code, active, created_at)
		 VALUES($1, true, now())
		 RETURNING code, active, owner_claim, claimed_at, created_at`,
		normalizeCode(code),
	).Scan(&c.Code, &c.Active, &c.OwnerClaim, &c.ClaimedAt, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.RedeemableCode{}, apperr.NewValidationError("code", "code already exists")
		}
		return models.RedeemableCode{}, fmt.Errorf("create code: %w", err)
	}
	return c, nil
}

func (r *codesRepo) Get(ctx context.Context, code string) (models.RedeemableCode, error) {
	var c models.RedeemableCode
	err := r.pool.QueryRow(ctx,
		`SELECT code, active, owner_claim, claimed_at, created_at
		   FROM invite_codes
		  WHERE code=$1`,
		normalizeCode(code),
	).Scan(&c.Code, &c.Active, &c.OwnerClaim, &c.ClaimedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RedeemableCode{}, apperr.ErrCodeNotFound
	}
	if err != nil {
		return models.RedeemableCode{}, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

// Claim is a single conditional UPDATE; winning is decided by whether it
// touched a row, never by a read that preceded it.
func (r *codesRepo) Claim(ctx context.Context, code, claimant string) (models.RedeemableCode, bool, error) {
	var c models.RedeemableCode
	err := r.pool.QueryRow(ctx,
		`UPDATE invite_codes
		    SET active = false,
		        owner_claim = $2,
		        claimed_at = now()
		  WHERE code = $1 AND active = true
		  RETURNING code, active, owner_claim, claimed_at, created_at`,
		normalizeCode(code), claimant,
	).Scan(&c.Code, &c.Active, &c.OwnerClaim, &c.ClaimedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RedeemableCode{}, false, nil
	}
	if err != nil {
		return models.RedeemableCode{}, false, fmt.Errorf("claim code: %w", err)
	}
	return c, true, nil
}
