package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/database"
	"github.com/jchantrell/casc/internal/utils"
)

var exportReplace bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the file listing into a SQLite database",
	Long: `Export writes the active build, every file of the root and the archive
location of each of its spans into a SQLite database that can be inspected
with the query command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
		defer db.Close()

		slog.Info("Exporting file listing", "database", cfg.Database)

		var progress *utils.Progress
		err = database.Export(cmd.Context(), db, s, database.ExportOptions{
			Replace: exportReplace,
			Progress: func(done, total int) {
				if progress == nil {
					progress = utils.NewProgress(total, progressEnabled())
				}
				progress.Update(done, "files")
			},
		})
		if progress != nil {
			progress.Finish()
		}
		if err != nil {
			return err
		}

		fmt.Printf("Files exported: %s\n", utils.Number(int64(len(s.Files()))))
		fmt.Printf("Total duration: %s\n", utils.Duration(time.Since(start)))
		fmt.Println("Try running: casc query --tables")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportReplace, "replace", false, "replace a previous export in the database")
}
