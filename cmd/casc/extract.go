package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/layout"
	"github.com/jchantrell/casc/internal/storage"
	"github.com/jchantrell/casc/internal/utils"
)

type ExtractionStats struct {
	StartTime      time.Time
	EndTime        time.Time
	TotalFiles     int
	ExtractedFiles int64
	BytesWritten   int64
	SkippedFiles   int64
}

var extractAll bool

// files up to this size are decoded in one pass before writing
const preloadLimit = 1 << 20

var extractCmd = &cobra.Command{
	Use:   "extract [path|prefix]...",
	Short: "Extract files from the storage to the output directory",
	Long: `Extract writes files of the root to the output directory, keeping their
directory structure. Each argument selects a file by its exact path, or every
file below it when it names a directory. Use --all to extract everything.

Files whose data is not present in the local archives are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !extractAll && len(args) == 0 {
			return fmt.Errorf("no files selected, pass paths or use --all")
		}

		stats := &ExtractionStats{
			StartTime: time.Now(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		selected := selectFiles(s.Files(), args, extractAll)
		if len(selected) == 0 {
			slog.Info("No files matched")
			return nil
		}
		stats.TotalFiles = len(selected)

		slog.Info("Extracting files", "count", len(selected), "output", cfg.Output, "jobs", cfg.Jobs)

		progress := utils.NewProgress(len(selected), progressEnabled())

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Jobs)

		for _, f := range selected {
			f := f
			if gctx.Err() != nil {
				break
			}

			g.Go(func() error {
				defer progress.Increment(f.Name)

				if !f.Local {
					slog.Warn("Skipping file without local data", "path", f.Name)
					atomic.AddInt64(&stats.SkippedFiles, 1)
					return nil
				}

				n, err := extractFile(gctx, s, f.Name, layout.OutputPath(cfg.Output, f.Name))
				if err != nil {
					if errors.Is(err, casc.ErrNotLocal) {
						slog.Warn("Skipping file without local data", "path", f.Name)
						atomic.AddInt64(&stats.SkippedFiles, 1)
						return nil
					}
					return fmt.Errorf("extracting %s: %w", f.Name, err)
				}

				atomic.AddInt64(&stats.ExtractedFiles, 1)
				atomic.AddInt64(&stats.BytesWritten, n)
				return nil
			})
		}

		err = g.Wait()
		progress.Finish()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			slog.Warn("Extraction canceled")
			return fmt.Errorf("extraction canceled")
		}

		stats.EndTime = time.Now()
		duration := stats.EndTime.Sub(stats.StartTime)

		var byteRate float64
		if seconds := duration.Seconds(); seconds > 0 {
			byteRate = float64(stats.BytesWritten) / seconds
		}

		fmt.Printf("Files extracted: %s/%s\n", utils.Number(stats.ExtractedFiles), utils.Number(int64(stats.TotalFiles)))
		fmt.Printf("Files skipped: %s\n", utils.Number(stats.SkippedFiles))
		fmt.Printf("Bytes written: %s\n", utils.Bytes(stats.BytesWritten))
		fmt.Printf("Total duration: %s\n", utils.Duration(duration))
		fmt.Printf("Write rate: %s bytes/sec\n", utils.Rate(byteRate))

		return nil
	},
}

// selectFiles picks the files named by args, either exactly or as a directory prefix
func selectFiles(files []storage.FileInfo, args []string, all bool) []storage.FileInfo {
	if all {
		return files
	}

	var selected []storage.FileInfo
	for _, f := range files {
		for _, arg := range args {
			name := strings.TrimRight(strings.ReplaceAll(arg, "/", `\`), `\`)
			if f.Name == name || strings.HasPrefix(f.Name, name+`\`) {
				selected = append(selected, f)
				break
			}
		}
	}
	return selected
}

// extractFile copies one file to dst, removing partial output on failure
func extractFile(ctx context.Context, s *storage.Storage, name, dst string) (int64, error) {
	st, err := s.OpenFile(name)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	if st.Size() <= preloadLimit {
		if err := st.Preload(); err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}

	n, err := io.Copy(out, &contextReader{ctx: ctx, r: st})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return n, err
	}

	slog.Debug("Extracted file", "path", name, "bytes", n)
	return n, nil
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "extract every file of the root")
}
