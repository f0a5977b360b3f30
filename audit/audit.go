// Package audit records domain-level business events (insight created,
// enrichment finished, report generated, retention purge) into SQLite.
// Writes are asynchronous so hot paths never block on the audit trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/fieldback/idgen"
)

// Event types recorded by fieldback.
const (
	EventInsightCreated  = "insight.created"
	EventInsightEnriched = "insight.enriched"
	EventReportGenerated = "report.generated"
	EventRetentionPurged = "retention.purged"
	EventLogin           = "auth.login"
	EventQuestionAsked   = "qa.asked"
)

// Schema is the business event table, idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS business_events (
    event_id   TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    tenant_id  TEXT,
    actor_id   TEXT,
    entity_id  TEXT,
    details    TEXT NOT NULL DEFAULT '{}',
    success    INTEGER NOT NULL DEFAULT 1,
    error_msg  TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_business_events_type ON business_events(event_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_business_events_tenant ON business_events(tenant_id, created_at DESC);
`

// Event is one business event.
type Event struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	TenantID  string `json:"tenant_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Details   string `json:"details,omitempty"` // JSON
	Success   bool   `json:"success"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	CreatedAt int64  `json:"created_at"` // ms
}

// Logger persists events through a buffered channel with a single flush
// goroutine. When the buffer is full the write falls back to synchronous
// so events are not dropped under load.
type Logger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewLogger creates a Logger and starts its flush goroutine. Recommended
// bufferSize: 256.
func NewLogger(db *sql.DB, bufferSize int, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: logger,
		ch:     make(chan *Event, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

// Record queues an event for persistence. details is marshalled to JSON;
// a nil details writes "{}".
func (l *Logger) Record(eventType string, details any, opts ...Option) {
	e := &Event{
		ID:        l.newID(),
		Type:      eventType,
		Success:   true,
		Details:   "{}",
		CreatedAt: time.Now().UnixMilli(),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Details = string(b)
		}
	}
	for _, o := range opts {
		o(e)
	}

	select {
	case l.ch <- e:
	default:
		if err := l.insert(context.Background(), e); err != nil {
			l.logger.Error("audit sync fallback failed", "event", e.Type, "error", err)
		}
	}
}

// Option annotates an event at record time.
type Option func(*Event)

// ForTenant scopes the event to a tenant.
func ForTenant(tenantID string) Option {
	return func(e *Event) { e.TenantID = tenantID }
}

// ByActor attributes the event to a user or account subject.
func ByActor(actorID string) Option {
	return func(e *Event) { e.ActorID = actorID }
}

// OnEntity links the event to a domain entity id.
func OnEntity(entityID string) Option {
	return func(e *Event) { e.EntityID = entityID }
}

// Failed marks the event unsuccessful with the given error.
func Failed(err error) Option {
	return func(e *Event) {
		e.Success = false
		if err != nil {
			e.ErrorMsg = err.Error()
		}
	}
}

// Close drains the buffer and stops the flush goroutine. Safe to call
// more than once.
func (l *Logger) Close() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	for {
		select {
		case e := <-l.ch:
			if err := l.insert(context.Background(), e); err != nil {
				l.logger.Error("audit insert failed", "event", e.Type, "error", err)
			}
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					if err := l.insert(context.Background(), e); err != nil {
						l.logger.Error("audit drain insert failed", "event", e.Type, "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) insert(ctx context.Context, e *Event) error {
	var tenant, actor, entity any
	if e.TenantID != "" {
		tenant = e.TenantID
	}
	if e.ActorID != "" {
		actor = e.ActorID
	}
	if e.EntityID != "" {
		entity = e.EntityID
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO business_events
		(event_id, event_type, tenant_id, actor_id, entity_id, details, success, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, tenant, actor, entity, e.Details, e.Success, e.ErrorMsg, e.CreatedAt)
	return err
}

// Recent returns up to limit events, newest first, optionally filtered by
// event type ("" for all).
func (l *Logger) Recent(ctx context.Context, eventType string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT event_id, event_type, tenant_id, actor_id, entity_id, details, success, error_msg, created_at
		FROM business_events`
	var args []any
	if eventType != "" {
		q += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var tenant, actor, entity sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &tenant, &actor, &entity,
			&e.Details, &e.Success, &e.ErrorMsg, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TenantID = tenant.String
		e.ActorID = actor.String
		e.EntityID = entity.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
