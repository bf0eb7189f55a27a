package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/store"
)

// NewRouter creates a chi router with all operational routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(db *store.Store, c cache.Cache, recorder *audit.Recorder, authEnabled bool, token string) chi.Router {
	h := NewHandler(db, c, recorder)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/stats", h.Stats)
	r.Get("/audit/log", h.AuditLog)
	r.Get("/audit/stats", h.AuditStats)

	return r
}
