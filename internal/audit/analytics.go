package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/store"
)

// Analytics report types.
const (
	AnalyticsSearch      = "search"
	AnalyticsUsage       = "usage"
	AnalyticsPerformance = "performance"
)

// AnalyticsRequest selects an aggregation. Start/End default to the last
// thirty days when unset.
type AnalyticsRequest struct {
	Type          string
	Start         *time.Time
	End           *time.Time
	CollectionIDs []string
}

// Analytics aggregates usage, search, or performance metrics.
func (r *Recorder) Analytics(ctx context.Context, req AnalyticsRequest) (map[string]any, error) {
	start, end := req.window()
	switch req.Type {
	case AnalyticsSearch, "":
		return r.searchAnalytics(ctx, start, end, req.CollectionIDs)
	case AnalyticsUsage:
		return r.usageAnalytics(ctx, start, end)
	case AnalyticsPerformance:
		return r.performanceAnalytics(ctx, start, end)
	default:
		return nil, apperr.New(apperr.KindValidation, "unknown analytics type %q", req.Type)
	}
}

func (req AnalyticsRequest) window() (time.Time, time.Time) {
	end := time.Now().UTC()
	if req.End != nil {
		end = *req.End
	}
	start := end.AddDate(0, 0, -30)
	if req.Start != nil {
		start = *req.Start
	}
	return start, end
}

func (r *Recorder) searchAnalytics(ctx context.Context, start, end time.Time, collectionIDs []string) (map[string]any, error) {
	f := (&store.Filter{}).Add("created_at BETWEEN ? AND ?", start, end)
	if len(collectionIDs) > 0 {
		// Collection scope is stored as a JSON array; any requested id matches.
		clause := ""
		args := make([]any, 0, len(collectionIDs))
		for i, id := range collectionIDs {
			if i > 0 {
				clause += " OR "
			}
			clause += "collection_ids LIKE ?"
			args = append(args, `%"`+id+`"%`)
		}
		f.Add("("+clause+")", args...)
	}

	query, args := f.SQL(`SELECT COUNT(*), COALESCE(AVG(execution_ms), 0), COALESCE(SUM(result_count), 0) FROM search_analytics`)
	var total int
	var avgMS float64
	var results int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total, &avgMS, &results); err != nil {
		return nil, fmt.Errorf("audit: search analytics: %w", err)
	}

	byType := map[string]int{}
	tq, targs := f.SQL(`SELECT search_type, COUNT(*) FROM search_analytics`)
	if err := r.groupCount(ctx, byType, tq+" GROUP BY search_type", targs...); err != nil {
		return nil, err
	}

	topQueries := map[string]int{}
	qq, qargs := f.SQL(`SELECT query, COUNT(*) AS n FROM search_analytics`)
	if err := r.groupCount(ctx, topQueries, qq+" GROUP BY query ORDER BY n DESC LIMIT 10", qargs...); err != nil {
		return nil, err
	}

	return map[string]any{
		"type":             AnalyticsSearch,
		"total_searches":   total,
		"avg_execution_ms": avgMS,
		"total_results":    results,
		"by_search_type":   byType,
		"top_queries":      topQueries,
	}, nil
}

func (r *Recorder) usageAnalytics(ctx context.Context, start, end time.Time) (map[string]any, error) {
	byAction := map[string]int{}
	if err := r.groupCount(ctx, byAction,
		`SELECT action, COUNT(*) FROM audit_log WHERE created_at BETWEEN ? AND ? GROUP BY action`,
		start, end); err != nil {
		return nil, err
	}

	var activeActors int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT actor_id) FROM audit_log WHERE created_at BETWEEN ? AND ? AND actor_id IS NOT NULL`,
		start, end).Scan(&activeActors); err != nil {
		return nil, fmt.Errorf("audit: usage analytics: %w", err)
	}

	var itemsCreated, collectionsCreated int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM context_items WHERE created_at BETWEEN ? AND ?`,
		start, end).Scan(&itemsCreated); err != nil {
		return nil, fmt.Errorf("audit: usage analytics: %w", err)
	}
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM collections WHERE created_at BETWEEN ? AND ?`,
		start, end).Scan(&collectionsCreated); err != nil {
		return nil, fmt.Errorf("audit: usage analytics: %w", err)
	}

	return map[string]any{
		"type":                AnalyticsUsage,
		"by_action":           byAction,
		"active_actors":       activeActors,
		"items_created":       itemsCreated,
		"collections_created": collectionsCreated,
	}, nil
}

func (r *Recorder) performanceAnalytics(ctx context.Context, start, end time.Time) (map[string]any, error) {
	type perf struct {
		AvgMS float64 `json:"avg_ms"`
		MaxMS int64   `json:"max_ms"`
		Count int     `json:"count"`
	}
	byType := map[string]perf{}

	rows, err := r.db.Query(ctx, `
		SELECT search_type, COALESCE(AVG(execution_ms), 0), COALESCE(MAX(execution_ms), 0), COUNT(*)
		FROM search_analytics
		WHERE created_at BETWEEN ? AND ?
		GROUP BY search_type
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("audit: performance analytics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var p perf
		if err := rows.Scan(&st, &p.AvgMS, &p.MaxMS, &p.Count); err != nil {
			return nil, err
		}
		byType[st] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var slow int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_analytics WHERE created_at BETWEEN ? AND ? AND execution_ms > 1000`,
		start, end).Scan(&slow); err != nil {
		return nil, fmt.Errorf("audit: performance analytics: %w", err)
	}

	return map[string]any{
		"type":           AnalyticsPerformance,
		"by_search_type": byType,
		"slow_searches":  slow,
	}, nil
}
