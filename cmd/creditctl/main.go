// creditctl is the operator CLI: it talks straight to the store for the
// admin jobs that predate the HTTP surface: minting invite codes, bulk
// credit grants, account provisioning, and admin token issuance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dua-platform/credits-backend/internal/auth"
	"github.com/dua-platform/credits-backend/internal/catalog"
	"github.com/dua-platform/credits-backend/internal/config"
	"github.com/dua-platform/credits-backend/internal/db"
	"github.com/dua-platform/credits-backend/internal/logger"
	"github.com/dua-platform/credits-backend/internal/metrics"
	repo "github.com/dua-platform/credits-backend/internal/repository"
	"github.com/dua-platform/credits-backend/internal/repository/postgres"
	"github.com/dua-platform/credits-backend/internal/repository/sqlite"
	"github.com/dua-platform/credits-backend/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "creditctl",
	Short: "Administer the credits ledger",
	Long:  "Operator tooling for the credits backend: invite codes, bulk grants, provisioning, admin tokens.",
}

func main() {
	metrics.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.AddCommand(codesGenerateCmd)
	codesGenerateCmd.Flags().IntP("count", "n", 10, "Number of codes to mint")
	codesGenerateCmd.Flags().String("prefix", "DUA", "Code prefix")

	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().Int64("amount", 0, "Credits to grant to each user")
	grantCmd.Flags().String("reason", "manual grant", "Reason recorded in the journal")
	_ = grantCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(provisionCmd)

	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("user", "ops", "Subject user id")
	tokenCmd.Flags().String("role", "admin", "Role claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

// openStores resolves the same env config as the server, so creditctl and
// cmd/api always hit the same store.
func openStores(ctx context.Context) (repo.Stores, func(), error) {
	cfg := config.Load()
	slog.SetDefault(logger.New(cfg.Env))

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return repo.Stores{}, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return repo.Stores{}, nil, fmt.Errorf("migrations: %w", err)
		}
		return postgres.NewStores(pool), pool.Close, nil
	}
	sdb, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return repo.Stores{}, nil, err
	}
	return sqlite.NewStores(sdb), func() { _ = sdb.Close() }, nil
}

func creditService(stores repo.Stores) *services.CreditService {
	cfg := config.Load()
	return services.NewCreditService(catalog.Default(), stores.Balances, stores.Ledger, nil, slog.Default(), cfg.InitialCredits, cfg.InitialCoins)
}

// ---- codes ----

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage redeemable invite codes",
}

var codesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Mint new single-use invite codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		prefix, _ := cmd.Flags().GetString("prefix")

		ctx := cmd.Context()
		stores, closeFn, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		svc := services.NewRedeemService(stores.Codes, slog.Default())
		codes, err := svc.GenerateCodes(ctx, count, prefix)
		if err != nil {
			return err
		}
		for _, code := range codes {
			fmt.Println(code)
		}
		return nil
	},
}

// ---- grant ----

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID...",
	Short: "Credit an amount to one or more accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetInt64("amount")
		reason, _ := cmd.Flags().GetString("reason")

		ctx := cmd.Context()
		stores, closeFn, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := creditService(stores).GrantBatch(ctx, args, amount, reason, "creditctl")
		if err != nil {
			return err
		}
		for _, item := range report.Results {
			if item.Success {
				fmt.Printf("%s: ok, balance %d\n", item.UserID, item.NewBalance)
			} else {
				fmt.Printf("%s: FAILED: %s\n", item.UserID, item.Error)
			}
		}
		fmt.Printf("succeeded=%d failed=%d\n", report.Summary.Succeeded, report.Summary.Failed)
		return nil
	},
}

// ---- provision ----

var provisionCmd = &cobra.Command{
	Use:   "provision USER_ID...",
	Short: "Provision accounts with the initial grant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stores, closeFn, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		svc := creditService(stores)
		for _, uid := range args {
			b, created, err := svc.Provision(ctx, uid)
			if err != nil {
				return err
			}
			state := "existing"
			if created {
				state = "created"
			}
			fmt.Printf("%s: %s, credits=%d coins=%d\n", uid, state, b.Credits, b.Coins)
		}
		return nil
	},
}

// ---- token ----

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg := config.Load()
		tok, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer).Generate(user, role, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}
