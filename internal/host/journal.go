package host

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// JournalEntry is one recorded action invocation
type JournalEntry struct {
	ID            string              `json:"id"`
	DeviceID      string              `json:"device_id"`
	Name          string              `json:"name"`
	Input         string              `json:"input"`
	Status        device.ActionStatus `json:"status"`
	Error         string              `json:"error,omitempty"`
	TimeRequested time.Time           `json:"time_requested"`
	TimeCompleted *time.Time          `json:"time_completed,omitempty"`
}

// Journal records action invocations and their outcomes in SQLite. It is an
// audit trail only; device state is never read back from it.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenJournal opens or creates the journal database at path
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	journal := &Journal{
		db:     db,
		logger: logger.GetLogger("journal"),
	}

	if err := journal.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return journal, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			name TEXT NOT NULL,
			input TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			time_requested INTEGER NOT NULL,
			time_completed INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_device_id ON actions(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_time_requested ON actions(time_requested)`,
	}

	for _, query := range queries {
		if _, err := j.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Record inserts or updates an action by id
func (j *Journal) Record(action device.Action) error {
	var completed sql.NullInt64
	if action.TimeCompleted != nil {
		completed = sql.NullInt64{Int64: action.TimeCompleted.UnixMilli(), Valid: true}
	}

	query := `INSERT INTO actions (id, device_id, name, input, status, error, time_requested, time_completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			time_completed = excluded.time_completed`

	_, err := j.db.Exec(query,
		action.ID,
		action.DeviceID,
		action.Name,
		action.Input,
		string(action.Status),
		action.Error,
		action.TimeRequested.UnixMilli(),
		completed,
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	return nil
}

// Recent returns the newest entries, optionally limited to one device
func (j *Journal) Recent(deviceID string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, device_id, name, input, status, error, time_requested, time_completed
		FROM actions`
	args := []interface{}{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY time_requested DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			entry     JournalEntry
			status    string
			requested int64
			completed sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.Name, &entry.Input,
			&status, &entry.Error, &requested, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		entry.Status = device.ActionStatus(status)
		entry.TimeRequested = time.UnixMilli(requested)
		if completed.Valid {
			t := time.UnixMilli(completed.Int64)
			entry.TimeCompleted = &t
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return entries, nil
}

// Attach records every action event of the registry until the returned
// function is called
func (j *Journal) Attach(registry *Registry) func() {
	return registry.Subscribe(func(event Event) {
		if event.Type != EventActionStatus || event.Action == nil {
			return
		}
		if err := j.Record(*event.Action); err != nil {
			j.logger.Error().
				Str("device_id", event.DeviceID).
				Str("action_id", event.Action.ID).
				Err(err).
				Msg("Failed to journal action")
		}
	})
}
