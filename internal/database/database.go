package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vincentbai/browsetrace-core/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// MemoryPath opens a private in-memory database, used by tests.
const MemoryPath = ":memory:"

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	dsn := "file:" + databasePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if databasePath == MemoryPath {
		dsn = MemoryPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every pooled connection to :memory: would get its own empty database
	if databasePath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS kv(
	  key   TEXT PRIMARY KEY,
	  value TEXT NOT NULL CHECK (json_valid(value))
	);
	CREATE TABLE IF NOT EXISTS interactions(
	  id           TEXT    PRIMARY KEY,
	  type         TEXT    NOT NULL,
	  timestamp    INTEGER NOT NULL,
	  tab_id       INTEGER,
	  window_id    INTEGER,
	  url          TEXT,
	  title        TEXT,
	  payload_json TEXT    NOT NULL CHECK (json_valid(payload_json)),
	  batch_ts     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_ts   ON interactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_interactions_type ON interactions(type);
	CREATE INDEX IF NOT EXISTS idx_interactions_url  ON interactions(url);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Put stores value under key unless the key already exists. Entries are write-once.
func (d *Database) Put(ctx context.Context, key string, value []byte) error {
	if _, err := d.db.ExecContext(ctx, `INSERT OR IGNORE INTO kv(key, value) VALUES(?, json(?))`, key, string(value)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// ScanPrefix returns the values of every key starting with prefix, in no particular order.
func (d *Database) ScanPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT value FROM kv WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		values = append(values, []byte(value))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return values, nil
}

func (d *Database) ValidateEvent(event models.InteractionEvent) error {
	if event.ID == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if event.Type == "" {
		return fmt.Errorf("Type cannot be empty")
	}
	if !event.Type.Valid() {
		return fmt.Errorf("invalid event type: %s", event.Type)
	}
	if event.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// InsertBatch stores an exported batch in one transaction and reports how many
// events were new. Events already stored under the same id are skipped.
func (d *Database) InsertBatch(batch models.Batch) (int, error) {
	transaction, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.Prepare(`INSERT OR IGNORE INTO interactions(id, type, timestamp, tab_id, window_id, url, title, payload_json, batch_ts) VALUES(?,?,?,?,?,?,?,json(?),?)`)
	if err != nil {
		_ = transaction.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	inserted := 0
	for _, event := range batch.Events {
		if err := d.ValidateEvent(event); err != nil {
			_ = transaction.Rollback()
			return 0, fmt.Errorf("invalid event: %w", err)
		}

		payload := event.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		jsonData, err := json.Marshal(payload)
		if err != nil {
			_ = transaction.Rollback()
			return 0, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		result, err := statement.Exec(event.ID, string(event.Type), event.Timestamp, nullableInt(event.TabID), nullableInt(event.WindowID),
			nullableString(event.URL), nullableString(event.Title), string(jsonData), batch.Timestamp)
		if err != nil {
			_ = transaction.Rollback()
			return 0, fmt.Errorf("failed to execute statement: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// RecentInteractions returns up to limit stored batch events, newest first.
func (d *Database) RecentInteractions(ctx context.Context, limit int) ([]models.InteractionEvent, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, type, timestamp, tab_id, window_id, url, title, payload_json
	FROM interactions ORDER BY timestamp DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	events := []models.InteractionEvent{}
	for rows.Next() {
		var (
			event           models.InteractionEvent
			eventType       string
			tabID, windowID sql.NullInt64
			url, title      sql.NullString
			payloadJSON     string
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Timestamp, &tabID, &windowID, &url, &title, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to read interaction: %w", err)
		}
		event.Type = models.EventType(eventType)
		if tabID.Valid {
			event.TabID = models.IntPtr(int(tabID.Int64))
		}
		if windowID.Valid {
			event.WindowID = models.IntPtr(int(windowID.Int64))
		}
		event.URL = url.String
		event.Title = title.String
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", event.ID, err)
		}
		if len(event.Payload) == 0 {
			event.Payload = nil
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}
	return events, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
