// Package search serves ranked lexical search over context items.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// Search types. semantic and hybrid are aliases of the lexical path: no
// embedding similarity is computed. The requested type is still recorded
// verbatim in analytics.
const (
	TypeFulltext = "fulltext"
	TypeSemantic = "semantic"
	TypeHybrid   = "hybrid"
)

// Request is one search call.
type Request struct {
	Query         string
	Type          string
	CollectionIDs []string
	Tags          []string
	Limit         int
}

// Result is one ranked hit.
type Result struct {
	ItemID       string  `json:"item_id"`
	CollectionID string  `json:"collection_id"`
	Title        string  `json:"title"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
}

// Engine builds and executes ranked queries and emits analytics.
type Engine struct {
	db       *store.Store
	recorder *audit.Recorder
	logger   *slog.Logger
}

// New creates a search engine. recorder may be nil when analytics are off.
func New(db *store.Store, recorder *audit.Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, recorder: recorder, logger: logger}
}

// Search executes one search call. Every call, regardless of outcome,
// emits exactly one analytics entry with elapsed time and result count.
func (e *Engine) Search(ctx context.Context, actorID string, req Request) ([]Result, error) {
	start := time.Now()
	results := []Result{}
	var err error

	defer func() {
		if e.recorder != nil {
			e.recorder.LogSearch(models.SearchAnalyticsEntry{
				ActorID:       actorID,
				Query:         req.Query,
				SearchType:    req.Type,
				ResultCount:   len(results),
				ExecutionMS:   time.Since(start).Milliseconds(),
				CollectionIDs: req.CollectionIDs,
			})
		}
	}()

	switch req.Type {
	case TypeFulltext, TypeSemantic, TypeHybrid:
	case "":
		req.Type = TypeHybrid
	default:
		err = apperr.New(apperr.KindValidation, "unknown search type %q", req.Type)
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	// A blank query matches nothing; that is an empty result, not an error.
	if strings.TrimSpace(req.Query) == "" {
		return results, nil
	}

	query, args := buildQuery(req)
	rows, qerr := e.db.Query(ctx, query, args...)
	if qerr != nil {
		err = fmt.Errorf("search: execute: %w", qerr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r Result
		if err = rows.Scan(&r.ItemID, &r.CollectionID, &r.Title, &r.Snippet, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	e.logger.Debug("search: executed",
		slog.String("type", req.Type),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}
