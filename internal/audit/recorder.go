// Package audit records mutating actions, tool invocations, and search
// analytics, and serves read-side aggregation over them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// Action name conventions.
const (
	ActionToolCall      = "tool_call"
	ActionSecurityEvent = "security_event"
)

type job struct {
	audit  *models.AuditEntry
	search *models.SearchAnalyticsEntry
}

// Recorder writes audit and analytics rows off the caller's path.
//
// Concurrency model: a single writer goroutine owns the store handle for
// async writes. Public Log* methods publish to a bounded channel and never
// block; a full queue increments the dropped counter, which is the only
// place audit failures are observable.
type Recorder struct {
	db     *store.Store
	logger *slog.Logger

	jobs    chan job
	stopped chan struct{}
	closed  atomic.Bool

	written atomic.Int64
	dropped atomic.Int64
}

// NewRecorder creates a recorder and starts its writer loop.
func NewRecorder(db *store.Store, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		db:      db,
		logger:  logger,
		jobs:    make(chan job, queueSize),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.stopped)
	for j := range r.jobs {
		var err error
		switch {
		case j.audit != nil:
			err = r.insertAudit(context.Background(), j.audit)
		case j.search != nil:
			err = r.insertSearch(context.Background(), j.search)
		}
		if err != nil {
			r.dropped.Add(1)
			r.logger.Warn("audit: write failed", slog.String("error", err.Error()))
		} else {
			r.written.Add(1)
		}
	}
}

// Close drains pending entries and stops the writer loop.
func (r *Recorder) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.jobs)
	}
	<-r.stopped
}

func (r *Recorder) enqueue(j job) {
	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.jobs <- j:
	default:
		// Queue full; audit is observability, not a correctness gate.
		r.dropped.Add(1)
	}
}

// LogAction records one action asynchronously, best-effort.
func (r *Recorder) LogAction(actorID, action, resourceType, resourceID string, oldValue, newValue, metadata map[string]any) {
	r.enqueue(job{audit: &models.AuditEntry{
		ID:           uuid.New().String(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValue:     oldValue,
		NewValue:     newValue,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}})
}

// LogToolCall records one tool invocation.
func (r *Recorder) LogToolCall(actorID, tool string, args map[string]any) {
	r.LogAction(actorID, ActionToolCall, "tool", tool, nil, nil, args)
}

// LogSecurityEvent records an auth anomaly.
func (r *Recorder) LogSecurityEvent(actorID, event string, metadata map[string]any) {
	r.LogAction(actorID, ActionSecurityEvent, "auth", event, nil, nil, metadata)
}

// LogSearch records one search analytics entry.
func (r *Recorder) LogSearch(entry models.SearchAnalyticsEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.enqueue(job{search: &entry})
}

// DataChangeTx writes a "<resourceType>_<verb>" entry inside the caller's
// transaction so the entry commits or rolls back with the business write.
// An insert failure is logged and swallowed; it never fails the operation.
func (r *Recorder) DataChangeTx(tx *store.Tx, resourceType, resourceID, verb string, oldValue, newValue map[string]any) {
	entry := &models.AuditEntry{
		ID:           uuid.New().String(),
		ActorID:      tx.ActorID(),
		Action:       fmt.Sprintf("%s_%s", resourceType, verb),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValue:     oldValue,
		NewValue:     newValue,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := tx.Exec(`
		INSERT INTO audit_log (id, actor_id, action, resource_type, resource_id, old_value, new_value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, nullable(entry.ActorID), entry.Action, entry.ResourceType, nullable(entry.ResourceID),
		marshal(entry.OldValue), marshal(entry.NewValue), marshal(entry.Metadata), entry.CreatedAt)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Warn("audit: tx write failed", slog.String("error", err.Error()))
		return
	}
	r.written.Add(1)
}

func (r *Recorder) insertAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, resource_type, resource_id, old_value, new_value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullable(e.ActorID), e.Action, e.ResourceType, nullable(e.ResourceID),
		marshal(e.OldValue), marshal(e.NewValue), marshal(e.Metadata), e.CreatedAt)
	return err
}

func (r *Recorder) insertSearch(ctx context.Context, e *models.SearchAnalyticsEntry) error {
	ids, _ := json.Marshal(e.CollectionIDs)
	_, err := r.db.Exec(ctx, `
		INSERT INTO search_analytics (id, actor_id, query, search_type, result_count, execution_ms, collection_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullable(e.ActorID), e.Query, e.SearchType, e.ResultCount, e.ExecutionMS, string(ids), e.CreatedAt)
	return err
}

// Health reports the recorder's own metrics; the only window into
// swallowed failures.
type Health struct {
	QueueDepth int   `json:"queue_depth"`
	Written    int64 `json:"written"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns recorder health counters.
func (r *Recorder) Stats() Health {
	return Health{QueueDepth: len(r.jobs), Written: r.written.Load(), Dropped: r.dropped.Load()}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshal(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}
