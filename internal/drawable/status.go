package drawable

import (
	"context"
	"database/sql"
	"fmt"
)

// BuildStatus is the freshness state of one data source's slice of the
// drawable index.
type BuildStatus int

const (
	// StatusUnknown means the index was never built for the data
	// source, or its state cannot be determined. A data source with no
	// status row reports StatusUnknown.
	StatusUnknown BuildStatus = iota
	// StatusInProgress means a sync task is currently rebuilding the
	// data source.
	StatusInProgress
	// StatusComplete means the last rebuild finished with every file
	// classified; the index is current.
	StatusComplete
	// StatusRebuiltStale means the last rebuild finished but the index
	// is known or suspected to be out of date (unclassified files
	// remained, the run failed, or it was cancelled).
	StatusRebuiltStale
)

// String returns the persisted representation of the status.
func (s BuildStatus) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusComplete:
		return "COMPLETE"
	case StatusRebuiltStale:
		return "REBUILT_STALE"
	default:
		return fmt.Sprintf("BuildStatus(%d)", int(s))
	}
}

// ParseBuildStatus converts a persisted status string back to a
// BuildStatus. Unrecognized values map to StatusUnknown.
func ParseBuildStatus(s string) BuildStatus {
	switch s {
	case "IN_PROGRESS":
		return StatusInProgress
	case "COMPLETE":
		return StatusComplete
	case "REBUILT_STALE":
		return StatusRebuiltStale
	default:
		return StatusUnknown
	}
}

// Status returns the build status for a data source, StatusUnknown if
// no row exists.
func (db *DB) Status(dataSourceID int64) (BuildStatus, error) {
	return db.StatusContext(context.Background(), dataSourceID)
}

// StatusContext returns the build status with context support.
func (db *DB) StatusContext(ctx context.Context, dataSourceID int64) (BuildStatus, error) {
	status, _, err := db.LookupStatus(ctx, dataSourceID)
	return status, err
}

// LookupStatus returns the build status for a data source and whether
// a status row exists at all. Staleness rules treat a missing row
// differently from an explicit UNKNOWN row.
func (db *DB) LookupStatus(ctx context.Context, dataSourceID int64) (BuildStatus, bool, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT status FROM datasource_status WHERE data_source_obj_id = ?`, dataSourceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return StatusUnknown, false, nil
	}
	if err != nil {
		return StatusUnknown, false, fmt.Errorf("failed to get build status for data source %d: %w", dataSourceID, err)
	}
	return ParseBuildStatus(raw), true, nil
}

// AllStatuses returns a snapshot of every persisted status row.
func (db *DB) AllStatuses(ctx context.Context) (map[int64]BuildStatus, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT data_source_obj_id, status FROM datasource_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to list build statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[int64]BuildStatus)
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan build status: %w", err)
		}
		statuses[id] = ParseBuildStatus(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating build statuses: %w", err)
	}
	return statuses, nil
}

// SetStatus upserts the status row for a data source in its own
// transaction.
func (db *DB) SetStatus(dataSourceID int64, status BuildStatus) error {
	return db.SetStatusContext(context.Background(), dataSourceID, status)
}

// SetStatusContext upserts the status row with context support.
func (db *DB) SetStatusContext(ctx context.Context, dataSourceID int64, status BuildStatus) error {
	query := `
	INSERT INTO datasource_status (data_source_obj_id, status)
	VALUES (?, ?)
	ON CONFLICT(data_source_obj_id) DO UPDATE SET status = excluded.status
	`
	if _, err := db.conn.ExecContext(ctx, query, dataSourceID, status.String()); err != nil {
		return fmt.Errorf("failed to set build status for data source %d: %w", dataSourceID, err)
	}
	return nil
}

// SetStatus upserts the status row inside the transaction. A bulk run
// writes its terminal status through the final batch's transaction so
// the status lands atomically with the last record mutations.
func (t *Tx) SetStatus(ctx context.Context, dataSourceID int64, status BuildStatus) error {
	query := `
	INSERT INTO datasource_status (data_source_obj_id, status)
	VALUES (?, ?)
	ON CONFLICT(data_source_obj_id) DO UPDATE SET status = excluded.status
	`
	if _, err := t.tx.ExecContext(ctx, query, dataSourceID, status.String()); err != nil {
		return fmt.Errorf("failed to set build status for data source %d: %w", dataSourceID, err)
	}
	return nil
}

// RemoveStatus deletes the status row inside the transaction.
func (t *Tx) RemoveStatus(ctx context.Context, dataSourceID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM datasource_status WHERE data_source_obj_id = ?`, dataSourceID)
	if err != nil {
		return fmt.Errorf("failed to remove build status for data source %d: %w", dataSourceID, err)
	}
	return nil
}

// RemoveStatus deletes the status row for a data source in its own
// transaction. Returns nil if no row exists (idempotent).
func (db *DB) RemoveStatus(ctx context.Context, dataSourceID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM datasource_status WHERE data_source_obj_id = ?`, dataSourceID)
	if err != nil {
		return fmt.Errorf("failed to remove build status for data source %d: %w", dataSourceID, err)
	}
	return nil
}
