package database

import (
	"context"
	"fmt"
	"log/slog"
)

// Table names of the exported listing
const (
	BuildTable = "_build"
	FilesTable = "files"
	SpansTable = "file_spans"
)

// SchemaProgressCallback is called after each DDL statement
type SchemaProgressCallback func(current, total int, description string)

// DDLRequest represents a request to execute DDL
type DDLRequest struct {
	Type        string // "table" or "index"
	DDL         string
	TableName   string
	Description string
}

// DDLManager creates and drops the listing schema
type DDLManager struct {
	db *Database
}

// NewDDLManager creates a DDL manager for db
func NewDDLManager(db *Database) *DDLManager {
	return &DDLManager{db: db}
}

// Requests returns the DDL of the listing schema, tables before indexes
func (dm *DDLManager) Requests() []DDLRequest {
	return []DDLRequest{
		{
			Type:      "table",
			TableName: BuildTable,
			DDL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    key TEXT NOT NULL,
    name TEXT,
    version TEXT,
    branch TEXT,
    root_format TEXT NOT NULL,
    archives INTEGER NOT NULL,
    index_entries INTEGER NOT NULL,
    exported_at TEXT NOT NULL
)`, quoteSQLIdentifier(BuildTable)),
			Description: "build",
		},
		{
			Type:      "table",
			TableName: FilesTable,
			DDL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    path TEXT PRIMARY KEY,
    directory TEXT NOT NULL,
    name TEXT NOT NULL,
    size INTEGER NOT NULL,
    stored_size INTEGER,
    local INTEGER NOT NULL,
    spans INTEGER NOT NULL
)`, quoteSQLIdentifier(FilesTable)),
			Description: "files",
		},
		{
			Type:      "table",
			TableName: SpansTable,
			DDL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    path TEXT NOT NULL REFERENCES %s(path),
    span_index INTEGER NOT NULL,
    ekey TEXT NOT NULL,
    size INTEGER NOT NULL,
    local INTEGER NOT NULL,
    archive INTEGER,
    archive_offset INTEGER,
    stored_size INTEGER,
    UNIQUE(path, span_index)
)`, quoteSQLIdentifier(SpansTable), quoteSQLIdentifier(FilesTable)),
			Description: "file spans",
		},
		{
			Type:        "index",
			TableName:   SpansTable,
			DDL:         fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_file_spans_ekey" ON %s(ekey)`, quoteSQLIdentifier(SpansTable)),
			Description: "file spans by key",
		},
		{
			Type:        "index",
			TableName:   FilesTable,
			DDL:         fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_files_directory" ON %s(directory)`, quoteSQLIdentifier(FilesTable)),
			Description: "files by directory",
		},
	}
}

// CreateSchemas creates the listing tables and indexes in a single transaction
func (dm *DDLManager) CreateSchemas(ctx context.Context, progressCallback SchemaProgressCallback) error {
	requests := dm.Requests()
	current := 0
	if err := dm.executeDDLTransaction(ctx, requests, "listing schema", progressCallback, &current, len(requests)); err != nil {
		return fmt.Errorf("executing DDL: %w", err)
	}

	slog.Debug("Created listing schema", "statements", len(requests))
	return nil
}

// DropSchemas removes a previous export
func (dm *DDLManager) DropSchemas(ctx context.Context) error {
	var requests []DDLRequest
	for _, table := range []string{SpansTable, FilesTable, BuildTable} {
		requests = append(requests, DDLRequest{
			Type:        "drop",
			DDL:         fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteSQLIdentifier(table)),
			TableName:   table,
			Description: table,
		})
	}

	current := 0
	return dm.executeDDLTransaction(ctx, requests, "drop listing", nil, &current, len(requests))
}

// executeDDLTransaction executes DDL statements in a single transaction with progress reporting
func (dm *DDLManager) executeDDLTransaction(ctx context.Context, ddlRequests []DDLRequest, description string, progressCallback SchemaProgressCallback, currentProgress *int, total int) error {
	if len(ddlRequests) == 0 {
		return nil
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction for %s: %w", description, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, req := range ddlRequests {
		if _, err := tx.ExecContext(ctx, req.DDL); err != nil {
			return fmt.Errorf("executing DDL for %s in %s: %w", req.TableName, description, err)
		}

		if progressCallback != nil {
			*currentProgress++
			progressCallback(*currentProgress, total, req.Description)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing DDL transaction for %s: %w", description, err)
	}

	return nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, identifier)
}
