package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/balance"
	"github.com/tillbook/tillbook/internal/cashier"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/periods"
	"github.com/tillbook/tillbook/internal/reconcile"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AccountsHandler  *accounts.Handler
	LedgerHandler    *ledger.Handler
	BalanceHandler   *balance.Handler
	CashierHandler   *cashier.Handler
	ReconcileHandler *reconcile.Handler
	PeriodsHandler   *periods.Handler
}

// NewRouter constructs the chi.Router. Everything under /api/v1 requires a
// tenant header.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		params.AccountsHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.BalanceHandler.MountRoutes(r)
		params.CashierHandler.MountRoutes(r)
		params.ReconcileHandler.MountRoutes(r)
		params.PeriodsHandler.MountRoutes(r)
	})

	return r
}
