// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/codr1/tidyquote/internal/api"
	"github.com/codr1/tidyquote/internal/api/admin"
	"github.com/codr1/tidyquote/internal/api/formulas"
	"github.com/codr1/tidyquote/internal/api/quotes"
	"github.com/codr1/tidyquote/internal/api/timeslots"
)

func newServer(a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	// Register routes
	registerRoutes(router, a)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, a *app) {
	quotes.InitHandlers(quotes.Deps{
		Queries:       a.database.Queries,
		Store:         a.store,
		Calculator:    a.calculator,
		Cache:         a.quoteCache,
		RecordEnabled: a.config.Features.RecordQuotes,
	})
	formulas.InitHandlers(a.database.Queries, a.loader)
	timeslots.InitHandlers(a.store)
	admin.InitHandlers(a.staging, a.loader)

	adminOnly := func(h http.HandlerFunc) http.Handler {
		return api.WithAdminAuth(a.config.App.AdminTokenHash)(h)
	}
	rateLimited := func(h http.HandlerFunc) http.Handler {
		if a.limiter == nil {
			return h
		}
		return api.WithRateLimit(a.limiter, "quote", a.config.RateLimit.TrustProxy)(h)
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Quote routes
	mux.Handle("POST /api/v1/quotes", rateLimited(quotes.HandleCreateQuote))
	mux.HandleFunc("GET /api/v1/quotes/{id}", quotes.HandleGetQuote)

	// Schedule routes
	mux.HandleFunc("GET /api/v1/schedule/slots", timeslots.HandleSlots)

	// Formula routes
	mux.Handle("POST /api/v1/formulas/validate", adminOnly(formulas.HandleValidate))
	mux.Handle("GET /api/v1/formulas", adminOnly(formulas.HandleListFormulas))
	mux.Handle("POST /api/v1/formulas", adminOnly(formulas.HandleCreateFormula))
	mux.Handle("GET /api/v1/formulas/{id}", adminOnly(formulas.HandleGetFormula))
	mux.Handle("PUT /api/v1/formulas/{id}", adminOnly(formulas.HandleUpdateFormula))
	mux.Handle("DELETE /api/v1/formulas/{id}", adminOnly(formulas.HandleDeleteFormula))

	// Admin routes
	mux.Handle("POST /api/v1/admin/changesets", adminOnly(admin.HandleOpenChangeset))
	mux.Handle("GET /api/v1/admin/changesets/{id}", adminOnly(admin.HandleGetChangeset))
	mux.Handle("PUT /api/v1/admin/changesets/{id}/field-configs", adminOnly(admin.HandleStageFieldConfigs))
	mux.Handle("POST /api/v1/admin/changesets/{id}/commit", adminOnly(admin.HandleCommitChangeset))
	mux.Handle("DELETE /api/v1/admin/changesets/{id}", adminOnly(admin.HandleDiscardChangeset))
	mux.Handle("POST /api/v1/admin/snapshot/reload", adminOnly(admin.HandleReloadSnapshot))
}
