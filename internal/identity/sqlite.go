package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS identity_documents (
	agent_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (agent_id, kind)
);

CREATE TABLE IF NOT EXISTS drift_log (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	agent_id      TEXT NOT NULL,
	event         TEXT NOT NULL,
	field_changed TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	before_text   TEXT NOT NULL DEFAULT '',
	after_text    TEXT NOT NULL DEFAULT '',
	reflection_id TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drift_log_agent ON drift_log (agent_id, seq);
`

// SQLiteStore keeps documents and the drift log in one SQLite database so an
// identity replacement and its drift entry commit in a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create identity schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*domain.IdentityDocuments, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, content FROM identity_documents WHERE agent_id = ?`, agentID.String())
	if err != nil {
		return nil, fmt.Errorf("read identity documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := &domain.IdentityDocuments{}
	found := false
	for rows.Next() {
		var kind, content string
		if err := rows.Scan(&kind, &content); err != nil {
			return nil, err
		}
		found = true
		switch domain.DocumentKind(kind) {
		case domain.DocumentLore:
			docs.Lore = content
		case domain.DocumentSoul:
			docs.Soul = content
		case domain.DocumentIdentity:
			docs.Identity = content
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDocumentsNotFound
	}

	docs.DriftLog, err = s.driftLog(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *SQLiteStore) driftLog(ctx context.Context, agentID uuid.UUID) ([]domain.DriftLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, field_changed, reason, before_text, after_text, reflection_id, created_at
		 FROM drift_log WHERE agent_id = ? ORDER BY seq`, agentID.String())
	if err != nil {
		return nil, fmt.Errorf("read drift log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	log := []domain.DriftLogEntry{}
	for rows.Next() {
		var e domain.DriftLogEntry
		var reflectionID sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Event, &e.FieldChanged, &e.Reason, &e.Before, &e.After, &reflectionID, &created); err != nil {
			return nil, err
		}
		if reflectionID.Valid {
			if id, err := uuid.Parse(reflectionID.String); err == nil {
				e.ReflectionID = &id
			}
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse drift timestamp: %w", err)
		}
		log = append(log, e)
	}
	return log, rows.Err()
}

func (s *SQLiteStore) WriteIdentityDocument(ctx context.Context, agentID uuid.UUID, kind domain.DocumentKind, text string) (string, error) {
	if !domain.ValidDocumentKind(string(kind)) {
		return "", fmt.Errorf("%w: unknown document kind %q", domain.ErrValidation, kind)
	}
	if err := upsertDocument(ctx, s.db, agentID, kind, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("sqlite:%s/%s", agentID, kind), nil
}

func (s *SQLiteStore) AppendDriftLogEntry(ctx context.Context, agentID uuid.UUID, entry domain.DriftLogEntry) error {
	return insertDriftEntry(ctx, s.db, agentID, entry)
}

func (s *SQLiteStore) CommitIdentityDrift(ctx context.Context, agentID uuid.UUID, identity string, entry domain.DriftLogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertDocument(ctx, tx, agentID, domain.DocumentIdentity, identity); err != nil {
			return err
		}
		return insertDriftEntry(ctx, tx, agentID, entry)
	})
}

func (s *SQLiteStore) InitializeDocuments(ctx context.Context, agentID uuid.UUID, docs domain.IdentityDocuments) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range []domain.DocumentKind{domain.DocumentLore, domain.DocumentSoul, domain.DocumentIdentity} {
			if err := upsertDocument(ctx, tx, agentID, kind, docs.Get(kind)); err != nil {
				return err
			}
		}
		for _, e := range docs.DriftLog {
			if err := insertDriftEntry(ctx, tx, agentID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin identity tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity tx: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertDocument(ctx context.Context, db execer, agentID uuid.UUID, kind domain.DocumentKind, text string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO identity_documents (agent_id, kind, content, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (agent_id, kind) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		agentID.String(), string(kind), text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write %s document: %w", kind, err)
	}
	return nil
}

func insertDriftEntry(ctx context.Context, db execer, agentID uuid.UUID, e domain.DriftLogEntry) error {
	if e.ID == "" {
		return errors.New("drift log entry without id")
	}
	var reflectionID sql.NullString
	if e.ReflectionID != nil {
		reflectionID = sql.NullString{String: e.ReflectionID.String(), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO drift_log (id, agent_id, event, field_changed, reason, before_text, after_text, reflection_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, agentID.String(), e.Event, e.FieldChanged, e.Reason, e.Before, e.After, reflectionID,
		e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append drift log: %w", err)
	}
	return nil
}
