package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// LogFilters narrow a read of the audit log. Zero values mean "any".
type LogFilters struct {
	Action       string
	ResourceType string
	ActorID      string
}

// GetAuditLog returns entries newest-first.
func (r *Recorder) GetAuditLog(ctx context.Context, filters LogFilters, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	f := &store.Filter{}
	if filters.Action != "" {
		f.Add("action = ?", filters.Action)
	}
	if filters.ResourceType != "" {
		f.Add("resource_type = ?", filters.ResourceType)
	}
	if filters.ActorID != "" {
		f.Add("actor_id = ?", filters.ActorID)
	}
	query, args := f.SQL(`SELECT id, actor_id, action, resource_type, resource_id, old_value, new_value, metadata, created_at
		FROM audit_log`)
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var actor, resID, oldV, newV, meta sql.NullString
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.ResourceType, &resID, &oldV, &newV, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actor.String
		e.ResourceID = resID.String
		e.OldValue = unmarshal(oldV)
		e.NewValue = unmarshal(newV)
		e.Metadata = unmarshal(meta)
		out = append(out, e)
	}
	return out, rows.Err()
}

// windowModifier maps a time window name to a SQLite datetime modifier.
func windowModifier(window string) (string, error) {
	switch window {
	case "24h":
		return "-24 hours", nil
	case "7d", "":
		return "-7 days", nil
	case "30d":
		return "-30 days", nil
	case "90d":
		return "-90 days", nil
	default:
		return "", apperr.New(apperr.KindValidation, "unknown time window %q", window)
	}
}

// AuditStats aggregates the audit log over a window for operational
// reporting.
type AuditStats struct {
	Window       string         `json:"window"`
	TotalEntries int            `json:"total_entries"`
	ByAction     map[string]int `json:"by_action"`
	ByActor      map[string]int `json:"by_actor"`
	ByHour       map[string]int `json:"by_hour"`
}

// GetAuditStats counts entries by action, actor, and hour bucket.
func (r *Recorder) GetAuditStats(ctx context.Context, window string) (*AuditStats, error) {
	mod, err := windowModifier(window)
	if err != nil {
		return nil, err
	}
	stats := &AuditStats{
		Window:   window,
		ByAction: map[string]int{},
		ByActor:  map[string]int{},
		ByHour:   map[string]int{},
	}

	if err := r.groupCount(ctx, stats.ByAction,
		`SELECT action, COUNT(*) FROM audit_log WHERE created_at >= datetime('now', ?) GROUP BY action`, mod); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, stats.ByActor,
		`SELECT COALESCE(actor_id, ''), COUNT(*) FROM audit_log WHERE created_at >= datetime('now', ?) GROUP BY actor_id`, mod); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, stats.ByHour,
		`SELECT strftime('%Y-%m-%dT%H:00', created_at), COUNT(*) FROM audit_log WHERE created_at >= datetime('now', ?) GROUP BY 1`, mod); err != nil {
		return nil, err
	}
	for _, n := range stats.ByAction {
		stats.TotalEntries += n
	}
	return stats, nil
}

func (r *Recorder) groupCount(ctx context.Context, into map[string]int, query string, args ...any) error {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("audit: stats query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// CleanupOldLogs deletes audit entries older than retentionDays and
// reports the count removed.
func (r *Recorder) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, apperr.New(apperr.KindValidation, "retention days must be positive")
	}
	res, err := r.db.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func unmarshal(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}
