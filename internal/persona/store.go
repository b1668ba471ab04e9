// Package persona persists the agent's canonical self-state as an immutable
// version chain in SQLite with a single active pointer, mirrored to a JSON
// snapshot file. Mutations arrive only through the writeback path; the store
// itself never edits header content.
package persona

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/persona-controller/internal/guard"
)

// #region state

// State is the full persisted self-state: the immutable identity header plus
// the mutable writeback projection.
type State struct {
	Immutable guard.ImmutableHeader `json:"immutable"`
	Header    guard.HeaderWriteback `json:"state_header"`
}

// Version pairs a state with its chain metadata.
type Version struct {
	VersionID string
	ParentID  string
	State     State
	CreatedAt time.Time
}

// #endregion state

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS persona_versions (
	version_id   TEXT PRIMARY KEY,
	parent_id    TEXT,
	state_json   TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES persona_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_persona (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	version_id   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES persona_versions(version_id)
);
`

// #endregion schema

// #region store-struct
// Store manages versioned persona state in SQLite.
type Store struct {
	db           *sql.DB
	snapshotPath string // optional JSON mirror of the active state
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. snapshotPath may be
// empty to disable the file mirror.
func NewStore(dbPath, snapshotPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, snapshotPath: snapshotPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region seed
// Seed creates the initial persona version if no active state exists yet.
func (s *Store) Seed(st State) error {
	if cur, err := s.LoadCanonical(); err != nil {
		return err
	} else if cur != nil {
		return nil
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO persona_versions (version_id, parent_id, state_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		id, nil, string(stateJSON), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO active_persona (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return s.syncSnapshot(st)
}

// #endregion seed

// #region load
// LoadCanonical reads the active persona state. Returns nil with no error
// when no state has been seeded.
func (s *Store) LoadCanonical() (*State, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT v.state_json FROM active_persona a
		 JOIN persona_versions v ON v.version_id = a.version_id
		 WHERE a.id = 1`,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load canonical: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}

// ActiveVersionID returns the version id the active pointer references, or
// "" when no state exists.
func (s *Store) ActiveVersionID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT version_id FROM active_persona WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active version: %w", err)
	}
	return id, nil
}

// #endregion load

// #region persist
// PersistAndSync appends a new version as a child of the active one, moves
// the active pointer, and rewrites the snapshot file. The candidate must
// already carry validated content; the store links, it does not judge.
func (s *Store) PersistAndSync(candidate State) error {
	parent, err := s.ActiveVersionID()
	if err != nil {
		return err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	stateJSON, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr interface{}
	if parent != "" {
		parentPtr = parent
	}
	_, err = tx.Exec(
		`INSERT INTO persona_versions (version_id, parent_id, state_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		id, parentPtr, string(stateJSON), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO active_persona (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fmt.Errorf("update active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return s.syncSnapshot(candidate)
}

func (s *Store) syncSnapshot(st State) error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.snapshotPath, data, 0o600); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	return nil
}

// #endregion persist

// #region list
// ListVersions returns the most recent persona versions, newest first.
func (s *Store) ListVersions(limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, state_json, created_at
		 FROM persona_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		var parentID sql.NullString
		var stateJSON, createdStr string
		if err := rows.Scan(&v.VersionID, &parentID, &stateJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if parentID.Valid {
			v.ParentID = parentID.String
		}
		if err := json.Unmarshal([]byte(stateJSON), &v.State); err != nil {
			return nil, fmt.Errorf("unmarshal version state: %w", err)
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// #endregion list
