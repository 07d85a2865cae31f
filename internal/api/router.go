package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dua-platform/credits-backend/internal/auth"
	"github.com/dua-platform/credits-backend/internal/config"
	"github.com/dua-platform/credits-backend/internal/metrics"
	"github.com/dua-platform/credits-backend/internal/middleware"
	"github.com/dua-platform/credits-backend/internal/services"
)

func NewRouter(cfg config.Config, credits *services.CreditService, redeem *services.RedeemService, runner *services.PaidActionRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &Handlers{Credits: credits, Redeem: redeem, Runner: runner}
	authMW := middleware.NewAuthMiddleware(auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/credits/check", h.CheckCredits)
		r.Get("/credits/balance", h.GetBalance)
		r.Post("/credits/deduct", h.DeductCredits)
		r.Post("/credits/refund", h.RefundCredits)

		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/{id}", h.GetTransaction)

		r.Post("/codes/claim", h.ClaimCode)

		r.Post("/generate", h.Generate)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW.Auth, middleware.RequireRole("admin"))
			r.Post("/credits/grant", h.GrantBatch)
			r.Post("/accounts/provision", h.ProvisionAccount)
			r.Post("/codes", h.CreateCodes)
		})
	})

	return r
}
