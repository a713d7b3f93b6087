package drawable

import (
	"context"
	"database/sql"
	"fmt"
)

// Record is one row of the drawable index: a file that currently
// qualifies as image/video content. The boolean flags are copied from
// the catalog at sync time for fast filtering; the catalog remains the
// source of truth for them.
type Record struct {
	FileID       int64
	DataSourceID int64
	Path         string
	Name         string
	IsVideo      bool
	HasExif      bool
	HasHashHit   bool
	Tagged       bool
}

// UpsertRecord inserts or updates an index row inside the transaction.
func (t *Tx) UpsertRecord(ctx context.Context, rec *Record) error {
	query := `
	INSERT INTO drawable_files (
		obj_id, data_source_obj_id, path, name,
		is_video, has_exif, has_hash_hit, tagged
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(obj_id) DO UPDATE SET
		data_source_obj_id = excluded.data_source_obj_id,
		path = excluded.path,
		name = excluded.name,
		is_video = excluded.is_video,
		has_exif = excluded.has_exif,
		has_hash_hit = excluded.has_hash_hit,
		tagged = excluded.tagged
	`

	_, err := t.tx.ExecContext(ctx, query,
		rec.FileID,
		rec.DataSourceID,
		rec.Path,
		rec.Name,
		rec.IsVideo,
		rec.HasExif,
		rec.HasHashHit,
		rec.Tagged,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert drawable record %d: %w", rec.FileID, err)
	}
	return nil
}

// RemoveRecord deletes an index row inside the transaction.
// Removing a row that doesn't exist is a no-op (idempotent).
func (t *Tx) RemoveRecord(ctx context.Context, fileID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM drawable_files WHERE obj_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to remove drawable record %d: %w", fileID, err)
	}
	return nil
}

// RemoveDataSourceRecords deletes every index row belonging to a data
// source inside the transaction.
func (t *Tx) RemoveDataSourceRecords(ctx context.Context, dataSourceID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM drawable_files WHERE data_source_obj_id = ?`, dataSourceID)
	if err != nil {
		return fmt.Errorf("failed to remove drawable records for data source %d: %w", dataSourceID, err)
	}
	return nil
}

// UpsertRecord inserts or updates an index row in its own transaction.
func (db *DB) UpsertRecord(rec *Record) error {
	return db.UpsertRecordContext(context.Background(), rec)
}

// UpsertRecordContext inserts or updates an index row with context support.
func (db *DB) UpsertRecordContext(ctx context.Context, rec *Record) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.UpsertRecord(ctx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveRecord deletes an index row in its own transaction.
// Returns nil if the row doesn't exist (idempotent).
func (db *DB) RemoveRecord(fileID int64) error {
	return db.RemoveRecordContext(context.Background(), fileID)
}

// RemoveRecordContext deletes an index row with context support.
func (db *DB) RemoveRecordContext(ctx context.Context, fileID int64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.RemoveRecord(ctx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRecord fetches one index row. Returns (nil, nil) if the file is
// not in the index.
func (db *DB) GetRecord(ctx context.Context, fileID int64) (*Record, error) {
	query := `
	SELECT obj_id, data_source_obj_id, path, name,
	       is_video, has_exif, has_hash_hit, tagged
	FROM drawable_files
	WHERE obj_id = ?
	`

	var rec Record
	err := db.conn.QueryRowContext(ctx, query, fileID).Scan(
		&rec.FileID,
		&rec.DataSourceID,
		&rec.Path,
		&rec.Name,
		&rec.IsVideo,
		&rec.HasExif,
		&rec.HasHashHit,
		&rec.Tagged,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drawable record %d: %w", fileID, err)
	}
	return &rec, nil
}

// InDB reports whether a file currently has an index row.
func (db *DB) InDB(ctx context.Context, fileID int64) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drawable_files WHERE obj_id = ?`, fileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check drawable record %d: %w", fileID, err)
	}
	return n > 0, nil
}

// CountRecords returns the total number of index rows.
func (db *DB) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM drawable_files`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count drawable records: %w", err)
	}
	return n, nil
}

// CountDataSourceRecords returns the number of index rows for one data
// source.
func (db *DB) CountDataSourceRecords(ctx context.Context, dataSourceID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drawable_files WHERE data_source_obj_id = ?`, dataSourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count drawable records for data source %d: %w", dataSourceID, err)
	}
	return n, nil
}

// RecordIDs returns the file identifiers indexed for a data source,
// ordered by id.
func (db *DB) RecordIDs(ctx context.Context, dataSourceID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT obj_id FROM drawable_files WHERE data_source_obj_id = ? ORDER BY obj_id`, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drawable records for data source %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan drawable record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drawable records: %w", err)
	}
	return ids, nil
}

// SetTagged updates the denormalized tag-presence flag for a file if
// it is in the index. Files outside the index are ignored.
func (db *DB) SetTagged(ctx context.Context, fileID int64, tagged bool) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE drawable_files SET tagged = ? WHERE obj_id = ?`, tagged, fileID)
	if err != nil {
		return fmt.Errorf("failed to update tagged flag for %d: %w", fileID, err)
	}
	return nil
}

// DeleteDataSource removes every index row and the status row for a
// data source in one transaction. Used when the data source is deleted
// upstream; no orphan status rows survive.
func (db *DB) DeleteDataSource(ctx context.Context, dataSourceID int64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.RemoveDataSourceRecords(ctx, dataSourceID); err != nil {
		return err
	}
	if err := tx.RemoveStatus(ctx, dataSourceID); err != nil {
		return err
	}
	return tx.Commit()
}
