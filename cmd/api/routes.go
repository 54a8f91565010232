package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tipbot/ledger/internal/handler"
	"github.com/tipbot/ledger/internal/middleware"
)

type routes struct {
	health    *handler.HealthHandler
	accounts  *handler.AccountHandler
	transfers *handler.TransferHandler
	withdraws *handler.WithdrawalHandler
	webhooks  *handler.WebhookHandler
	metrics   http.Handler
	jwtSecret string
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)

	r.Get("/health", rt.health.Liveness)
	r.Get("/ready", rt.health.Readiness)
	r.Method(http.MethodGet, "/metrics", rt.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/deposits", rt.webhooks.ReceiveDeposit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(rt.jwtSecret))

			r.Route("/accounts", func(r chi.Router) {
				r.Post("/", rt.accounts.Create)
				r.Get("/{userID}", rt.accounts.Get)
				r.Post("/{userID}/memo", rt.accounts.RefreshMemo)
				r.Get("/{userID}/actions", rt.accounts.History)
			})
			r.Get("/memos/{memoID}", rt.accounts.GetByMemo)
			r.Post("/transfers", rt.transfers.Create)
			r.Post("/withdrawals", rt.withdraws.Create)
		})
	})

	return r
}
