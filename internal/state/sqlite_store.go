package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/taskcrypt/internal/events"
	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// SQLiteStore keeps snapshots in a SQLite database, one row per item.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	locks  *locker
}

// NewSQLiteStore creates a SQLite state store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
		locks:  newLocker(),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS snapshots (
        project_id TEXT PRIMARY KEY,
        project_name TEXT NOT NULL DEFAULT '',
        fetched_at TIMESTAMP,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS snapshot_items (
        project_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        item_id TEXT NOT NULL,
        project TEXT NOT NULL DEFAULT '',
        task TEXT NOT NULL DEFAULT '',
        description TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT '',
        priority TEXT NOT NULL DEFAULT '',
        owner TEXT NOT NULL DEFAULT '',
        owner_email TEXT NOT NULL DEFAULT '',
        due_date TEXT NOT NULL DEFAULT '',
        estimated_hours REAL,
        is_subtask INTEGER NOT NULL DEFAULT 0,
        depth INTEGER NOT NULL DEFAULT 0,
        parent_task TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (project_id, position),
        FOREIGN KEY (project_id) REFERENCES snapshots(project_id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_snapshot_items_project ON snapshot_items(project_id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Enable foreign keys
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return nil
}

// Load retrieves a snapshot with its items in stored order.
func (s *SQLiteStore) Load(projectID string) (*models.Snapshot, error) {
	s.logger.WithField("project_id", projectID).Debug("Loading snapshot from SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := models.Snapshot{ProjectID: projectID}
	var fetchedAt sql.NullTime

	err = tx.QueryRow(`
        SELECT project_name, fetched_at
        FROM snapshots
        WHERE project_id = ?
    `, projectID).Scan(&snap.ProjectName, &fetchedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	if fetchedAt.Valid {
		snap.FetchedAt = fetchedAt.Time.UTC()
	}

	rows, err := tx.Query(`
        SELECT item_id, project, task, description, status, priority, owner,
               owner_email, due_date, estimated_hours, is_subtask, depth, parent_task
        FROM snapshot_items
        WHERE project_id = ?
        ORDER BY position
    `, projectID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	snap.Items = []models.Item{}
	for rows.Next() {
		var (
			it    models.Item
			hours sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.Project, &it.Task, &it.Description, &it.Status,
			&it.Priority, &it.Owner, &it.OwnerEmail, &it.DueDate, &hours,
			&it.IsSubtask, &it.Depth, &it.ParentTask); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		if hours.Valid {
			h := hours.Float64
			it.EstimatedHours = &h
		}
		snap.Items = append(snap.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return &snap, nil
}

// Save replaces a project's snapshot in one transaction.
func (s *SQLiteStore) Save(snapshot *models.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}
	if err := validateID(snapshot.ProjectID); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"project_id": snapshot.ProjectID,
		"items":      snapshot.ItemCount(),
	}).Debug("Saving snapshot to SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fetchedAt := snapshot.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
        INSERT INTO snapshots (project_id, project_name, fetched_at, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(project_id) DO UPDATE SET
            project_name = excluded.project_name,
            fetched_at = excluded.fetched_at,
            updated_at = CURRENT_TIMESTAMP
    `, snapshot.ProjectID, snapshot.ProjectName, fetchedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM snapshot_items WHERE project_id = ?", snapshot.ProjectID); err != nil {
		return fmt.Errorf("delete old items: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO snapshot_items (project_id, position, item_id, project, task, description,
            status, priority, owner, owner_email, due_date, estimated_hours, is_subtask, depth, parent_task)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, it := range snapshot.Items {
		var hours sql.NullFloat64
		if it.EstimatedHours != nil {
			hours = sql.NullFloat64{Float64: *it.EstimatedHours, Valid: true}
		}
		if _, err := stmt.Exec(snapshot.ProjectID, i, it.ID, it.Project, it.Task, it.Description,
			it.Status, it.Priority, it.Owner, it.OwnerEmail, it.DueDate, hours,
			it.IsSubtask, it.Depth, it.ParentTask); err != nil {
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}

	return tx.Commit()
}

// Reset removes a project's snapshot.
func (s *SQLiteStore) Reset(projectID string) error {
	s.logger.WithField("project_id", projectID).Info("Resetting snapshot in SQLite")

	if _, err := s.db.Exec("DELETE FROM snapshots WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// List returns all project IDs.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT project_id FROM snapshots ORDER BY project_id")
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Lock acquires a lock for a project.
func (s *SQLiteStore) Lock(projectID string) (UnlockFunc, error) {
	return s.locks.lock(projectID)
}

// Migrate copies every snapshot into target.
func (s *SQLiteStore) Migrate(target Store) error {
	ids, err := s.List()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	s.logger.WithField("count", len(ids)).Info("Migrating snapshots")

	for _, id := range ids {
		snap, err := s.Load(id)
		if err != nil {
			return fmt.Errorf("load project %s: %w", id, err)
		}
		if err := target.Save(snap); err != nil {
			return fmt.Errorf("save project %s: %w", id, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
