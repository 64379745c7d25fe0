package commissioning

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 200
)

// SQLiteJournal implements JournalRepository using the
// commissioning_journal table.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal backed by an open SQLite connection.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// Record inserts a commissioning outcome.
//
// Returns:
//   - error: ErrJournalEntryInvalid for a missing UUID or outcome, otherwise
//     the underlying database error
func (j *SQLiteJournal) Record(ctx context.Context, entry JournalEntry) error {
	if entry.DeviceUUID == uuid.Nil {
		return fmt.Errorf("%w: device uuid is required", ErrJournalEntryInvalid)
	}
	if entry.Outcome == "" {
		return fmt.Errorf("%w: outcome is required", ErrJournalEntryInvalid)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO commissioning_journal
		 (device_uuid, address, group_address, device_type, outcome, reason,
		  elements, models, retries, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DeviceUUID.String(),
		int64(entry.Address),
		int64(entry.Group),
		entry.DeviceType.String(),
		entry.Outcome,
		nullableString(entry.Reason),
		entry.Elements,
		entry.Models,
		entry.Retries,
		entry.DurationMS,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	return nil
}

// Recent returns the newest journal entries.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []JournalEntry: Entries ordered by created_at DESC, then id DESC
//   - error: nil on success, otherwise the underlying query error
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device_uuid, address, group_address, device_type, outcome, reason,
		        elements, models, retries, duration_ms, created_at
		 FROM commissioning_journal
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			entry      JournalEntry
			deviceUUID string
			address    int64
			group      int64
			deviceType string
			reason     sql.NullString
			createdAt  string
		)

		if err := rows.Scan(&entry.ID, &deviceUUID, &address, &group, &deviceType,
			&entry.Outcome, &reason, &entry.Elements, &entry.Models, &entry.Retries,
			&entry.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if entry.DeviceUUID, err = uuid.Parse(deviceUUID); err != nil {
			return nil, fmt.Errorf("parsing device uuid %q: %w", deviceUUID, err)
		}
		entry.Address = mesh.Address(address) //nolint:gosec // stored from a uint16
		entry.Group = mesh.Address(group)     //nolint:gosec // stored from a uint16
		if entry.DeviceType, err = mesh.ParseDeviceType(deviceType); err != nil {
			return nil, err
		}
		if reason.Valid {
			entry.Reason = reason.String
		}
		if entry.CreatedAt, err = parseJournalTimestamp(createdAt); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (j *SQLiteJournal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := j.db.ExecContext(ctx,
		"DELETE FROM commissioning_journal WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting journal entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// nullableString returns nil for empty strings so nullable TEXT columns
// store NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseJournalTimestamp parses a timestamp stored in SQLite.
func parseJournalTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return ts, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
