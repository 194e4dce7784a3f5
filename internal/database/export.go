package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jchantrell/casc/internal/storage"
)

// ExportOptions configures Export
type ExportOptions struct {
	// Replace drops a previous export instead of refusing to overwrite it
	Replace bool

	// Progress receives the number of files written so far
	Progress func(done, total int)

	Insert *BulkInsertOptions
}

// Export writes the build and the complete file listing of s into db
func Export(ctx context.Context, db *Database, s *storage.Storage, opts ExportOptions) error {
	ddl := NewDDLManager(db)

	hasTables, err := db.HasUserTables(ctx)
	if err != nil {
		return fmt.Errorf("checking database tables: %w", err)
	}
	if hasTables {
		if !opts.Replace {
			return fmt.Errorf("database already contains tables")
		}
		if err := ddl.DropSchemas(ctx); err != nil {
			return fmt.Errorf("dropping previous export: %w", err)
		}
	}

	if err := ddl.CreateSchemas(ctx, nil); err != nil {
		return fmt.Errorf("creating schemas: %w", err)
	}

	inserter := NewBulkInserter(db, opts.Insert)

	build := s.Build()
	if err := inserter.InsertBuild(ctx, BuildRow{
		Key:          build.Key,
		Name:         build.Name,
		Version:      build.Version,
		Branch:       build.Branch,
		RootFormat:   s.RootFormat().String(),
		Archives:     s.ArchiveCount(),
		IndexEntries: s.IndexEntries(),
	}); err != nil {
		return err
	}

	rows, err := FileRows(s)
	if err != nil {
		return err
	}

	var progress func(int)
	if opts.Progress != nil {
		progress = func(done int) { opts.Progress(done, len(rows)) }
	}
	if err := inserter.InsertFiles(ctx, rows, progress); err != nil {
		return fmt.Errorf("inserting files: %w", err)
	}

	slog.Info("Exported file listing", "files", len(rows), "build", build.Name)
	return nil
}

// FileRows converts the listing of s into database rows
func FileRows(s *storage.Storage) ([]FileRow, error) {
	files := s.Files()
	rows := make([]FileRow, len(files))

	for i, f := range files {
		spans, err := s.Spans(f.Name)
		if err != nil {
			return nil, err
		}

		row := FileRow{
			Path:       f.Name,
			Size:       f.Size,
			StoredSize: f.StoredSize,
			Local:      f.Local,
			Spans:      make([]SpanRow, len(spans)),
		}
		for j, span := range spans {
			row.Spans[j] = SpanRow{
				EKey:       span.Key.String(),
				Size:       span.Size,
				Local:      span.Local,
				Archive:    span.Location.Archive,
				Offset:     span.Location.Offset,
				StoredSize: span.Location.Size,
			}
		}
		rows[i] = row
	}

	return rows, nil
}
