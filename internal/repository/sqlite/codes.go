package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dua-platform/credits-backend/internal/apperr"
	"github.com/dua-platform/credits-backend/internal/models"
)

type codesRepo struct{ db *sql.DB }

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func scanCode(row rowScanner) (models.RedeemableCode, error) {
	var (
		c         models.RedeemableCode
		active    int64
		claimedAt sql.NullString
		createdAt string
	)
	if err := row.Scan(&c.Code, &active, &c.OwnerClaim, &claimedAt, &createdAt); err != nil {
		return models.RedeemableCode{}, err
	}
	c.Active = active == 1
	if claimedAt.Valid {
		t := parseTime(claimedAt.String)
		c.ClaimedAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (r *codesRepo) Create(ctx context.Context, code string) (models.RedeemableCode, error) {
	normalized := normalizeCode(code)
	ts := nowText()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invite_codes(code, active, created_at) VALUES(?, 1, ?)`,
		normalized, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.RedeemableCode{}, apperr.NewValidationError("code", "code already exists")
		}
		return models.RedeemableCode{}, fmt.Errorf("create code: %w", err)
	}
	return models.RedeemableCode{Code: normalized, Active: true, CreatedAt: parseTime(ts)}, nil
}

func (r *codesRepo) Get(ctx context.Context, code string) (models.RedeemableCode, error) {
	c, err := scanCode(r.db.QueryRowContext(ctx,
		`SELECT code, active, owner_claim, claimed_at, created_at
		   FROM invite_codes WHERE code=?`,
		normalizeCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.RedeemableCode{}, apperr.ErrCodeNotFound
	}
	if err != nil {
		return models.RedeemableCode{}, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

func (r *codesRepo) Claim(ctx context.Context, code, claimant string) (models.RedeemableCode, bool, error) {
	normalized := normalizeCode(code)
	res, err := r.db.ExecContext(ctx,
		`UPDATE invite_codes
		    SET active = 0,
		        owner_claim = ?2,
		        claimed_at = ?3
		  WHERE code = ?1 AND active = 1`,
		normalized, claimant, nowText(),
	)
	if err != nil {
		return models.RedeemableCode{}, false, fmt.Errorf("claim code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.RedeemableCode{}, false, fmt.Errorf("claim rows: %w", err)
	}
	if n == 0 {
		return models.RedeemableCode{}, false, nil
	}
	c, err := r.Get(ctx, normalized)
	if err != nil {
		return models.RedeemableCode{}, false, err
	}
	return c, true, nil
}
