package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BulkInserter handles batched insertion of the file listing
type BulkInserter struct {
	db        *Database
	batchSize int
}

// BulkInsertOptions configures bulk insertion behavior
type BulkInsertOptions struct {
	// BatchSize determines how many files to insert per transaction
	BatchSize int
}

// DefaultBulkInsertOptions returns sensible defaults for bulk insertion
func DefaultBulkInsertOptions() *BulkInsertOptions {
	return &BulkInsertOptions{
		BatchSize: 1000,
	}
}

// NewBulkInserter creates a new bulk inserter with the given database and options
func NewBulkInserter(db *Database, options *BulkInsertOptions) *BulkInserter {
	if options == nil {
		options = DefaultBulkInsertOptions()
	}
	if options.BatchSize < 1 {
		options.BatchSize = DefaultBulkInsertOptions().BatchSize
	}

	return &BulkInserter{
		db:        db,
		batchSize: options.BatchSize,
	}
}

// BuildRow is the single row of the build table
type BuildRow struct {
	Key          string
	Name         string
	Version      string
	Branch       string
	RootFormat   string
	Archives     int
	IndexEntries int
}

// FileRow is a file and its spans
type FileRow struct {
	Path       string
	Size       int64
	StoredSize int64 // -1 when not local
	Local      bool
	Spans      []SpanRow
}

// SpanRow is one span of a file. Archive fields are only set for local spans.
type SpanRow struct {
	EKey       string
	Size       uint32
	Local      bool
	Archive    uint32
	Offset     uint64
	StoredSize uint32
}

// InsertBuild writes the build row
func (bi *BulkInserter) InsertBuild(ctx context.Context, row BuildRow) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, name, version, branch, root_format, archives, index_entries, exported_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, quoteSQLIdentifier(BuildTable))

	_, err := bi.db.Exec(ctx, query,
		row.Key, row.Name, row.Version, row.Branch, row.RootFormat,
		row.Archives, row.IndexEntries, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting build: %w", err)
	}
	return nil
}

// InsertFiles performs bulk insertion of files and their spans with
// transaction batching. progress receives the number of files written.
func (bi *BulkInserter) InsertFiles(ctx context.Context, rows []FileRow, progress func(done int)) error {
	if len(rows) == 0 {
		slog.Debug("No files to insert")
		return nil
	}

	for i := 0; i < len(rows); i += bi.batchSize {
		end := min(i+bi.batchSize, len(rows))

		if err := bi.insertBatch(ctx, rows[i:end]); err != nil {
			return fmt.Errorf("inserting batch %d-%d: %w", i, end-1, err)
		}

		if progress != nil {
			progress(end)
		}
	}

	return nil
}

// insertBatch inserts a single batch of rows within a transaction
func (bi *BulkInserter) insertBatch(ctx context.Context, batch []FileRow) error {
	tx, err := bi.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	fileStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (path, directory, name, size, stored_size, local, spans) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		quoteSQLIdentifier(FilesTable)))
	if err != nil {
		return fmt.Errorf("preparing file statement: %w", err)
	}
	defer fileStmt.Close()

	spanStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (path, span_index, ekey, size, local, archive, archive_offset, stored_size) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		quoteSQLIdentifier(SpansTable)))
	if err != nil {
		return fmt.Errorf("preparing span statement: %w", err)
	}
	defer spanStmt.Close()

	for _, row := range batch {
		dir, name := splitPath(row.Path)

		var stored sql.NullInt64
		if row.Local {
			stored = sql.NullInt64{Int64: row.StoredSize, Valid: true}
		}

		if _, err := fileStmt.ExecContext(ctx, row.Path, dir, name, row.Size, stored, row.Local, len(row.Spans)); err != nil {
			return fmt.Errorf("inserting file %s: %w", row.Path, err)
		}

		for i, span := range row.Spans {
			var archive, offset, size sql.NullInt64
			if span.Local {
				archive = sql.NullInt64{Int64: int64(span.Archive), Valid: true}
				offset = sql.NullInt64{Int64: int64(span.Offset), Valid: true}
				size = sql.NullInt64{Int64: int64(span.StoredSize), Valid: true}
			}

			if _, err := spanStmt.ExecContext(ctx, row.Path, i, span.EKey, span.Size, span.Local, archive, offset, size); err != nil {
				return fmt.Errorf("inserting span %d of %s: %w", i, row.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// splitPath separates a '\' separated storage path into directory and name
func splitPath(p string) (string, string) {
	i := strings.LastIndexByte(p, '\\')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}
