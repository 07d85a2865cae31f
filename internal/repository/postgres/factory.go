package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/dua-platform/credits-backend/internal/repository"
)

func NewStores(pool *pgxpool.Pool) repo.Stores {
	return repo.Stores{
		Balances: &balancesRepo{pool},
		Ledger:   &ledgerRepo{pool},
		Codes:    &codesRepo{pool},
	}
}
