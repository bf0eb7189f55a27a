package api

import (
	"net/http"
	"strconv"

	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/store"
)

// Handler serves operational endpoints over the running components.
type Handler struct {
	db       *store.Store
	cache    cache.Cache
	recorder *audit.Recorder
}

// NewHandler creates a Handler over the given components.
func NewHandler(db *store.Store, c cache.Cache, recorder *audit.Recorder) *Handler {
	return &Handler{db: db, cache: c, recorder: recorder}
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	pool := h.db.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"store": map[string]any{
			"open_connections": pool.OpenConnections,
			"in_use":           pool.InUse,
			"idle":             pool.Idle,
			"wait_count":       pool.WaitCount,
		},
		"cache": h.cache.Stats(),
		"audit": h.recorder.Stats(),
	})
}

// AuditLog handles GET /audit/log.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.recorder.GetAuditLog(r.Context(), audit.LogFilters{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ActorID:      q.Get("actor_id"),
	}, queryInt(q.Get("limit"), 0), queryInt(q.Get("offset"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// AuditStats handles GET /audit/stats.
func (h *Handler) AuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recorder.GetAuditStats(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
