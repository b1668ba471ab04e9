// Package memory persists the agent's durable event memory in SQLite:
// autosaved messages, reflection notes, audit events, and consolidation
// markers, each carrying scope, classification, and provenance columns.
package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS memory_events (
	event_id      TEXT PRIMARY KEY,
	entity_scope  TEXT NOT NULL,
	slot_key      TEXT,
	event_type    TEXT NOT NULL,
	content       TEXT NOT NULL,
	source_class  TEXT,
	privacy_level TEXT,
	confidence    REAL,
	importance    REAL,
	source_ref    TEXT,
	provenance    TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_events_scope
ON memory_events(entity_scope, created_at);

CREATE INDEX IF NOT EXISTS idx_memory_events_type
ON memory_events(entity_scope, event_type, created_at);
`

// #endregion schema

// #region store-struct
// Store manages memory events in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region append
// AppendEvent inserts one event row. A missing ID or timestamp is filled in.
func (s *Store) AppendEvent(ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO memory_events
		 (event_id, entity_scope, slot_key, event_type, content, source_class,
		  privacy_level, confidence, importance, source_ref, provenance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.EntityScope,
		nullIfEmpty(ev.SlotKey),
		string(ev.EventType),
		ev.Content,
		nullIfEmpty(ev.SourceClass),
		nullIfEmpty(ev.PrivacyLevel),
		ev.Confidence,
		ev.Importance,
		nullIfEmpty(ev.SourceRef),
		nullIfEmpty(ev.Provenance),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// #endregion append

// #region count
// CountEvents returns the number of events recorded for a scope.
func (s *Store) CountEvents(scope string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM memory_events WHERE entity_scope = ?`, scope,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CountSinceConsolidation returns the number of non-marker events recorded
// for a scope after its most recent consolidation marker.
func (s *Store) CountSinceConsolidation(scope string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM memory_events
		 WHERE entity_scope = ? AND event_type != ?
		   AND created_at > COALESCE(
		     (SELECT MAX(created_at) FROM memory_events
		      WHERE entity_scope = ? AND event_type = ?), '')`,
		scope, string(EventConsolidation), scope, string(EventConsolidation),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count since consolidation: %w", err)
	}
	return n, nil
}

// #endregion count

// #region list
// ListRecent returns the most recent events for a scope, newest first.
func (s *Store) ListRecent(scope string, limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, entity_scope, slot_key, event_type, content, source_class,
		        privacy_level, confidence, importance, source_ref, provenance, created_at
		 FROM memory_events
		 WHERE entity_scope = ?
		 ORDER BY created_at DESC LIMIT ?`, scope, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var slotKey, sourceClass, privacy, sourceRef, provenance sql.NullString
	var confidence, importance sql.NullFloat64
	var eventType, createdStr string

	err := rows.Scan(&ev.ID, &ev.EntityScope, &slotKey, &eventType, &ev.Content,
		&sourceClass, &privacy, &confidence, &importance, &sourceRef, &provenance, &createdStr)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.SlotKey = slotKey.String
	ev.EventType = EventType(eventType)
	ev.SourceClass = sourceClass.String
	ev.PrivacyLevel = privacy.String
	ev.Confidence = confidence.Float64
	ev.Importance = importance.Float64
	ev.SourceRef = sourceRef.String
	ev.Provenance = provenance.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return ev, nil
}

// #endregion list

// #region prune
// PruneAutosaves deletes low-importance message autosaves for a scope beyond
// the newest keep rows. Returns the number of rows deleted.
func (s *Store) PruneAutosaves(scope string, keep int, maxImportance float64) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM memory_events
		 WHERE entity_scope = ?
		   AND event_type IN (?, ?)
		   AND importance < ?
		   AND event_id NOT IN (
		     SELECT event_id FROM memory_events
		     WHERE entity_scope = ? AND event_type IN (?, ?)
		     ORDER BY created_at DESC LIMIT ?)`,
		scope, string(EventMessageIn), string(EventMessageOut), maxImportance,
		scope, string(EventMessageIn), string(EventMessageOut), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune autosaves: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// #endregion prune

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
