package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/config"
	"github.com/jchantrell/casc/internal/storage"
)

var (
	cfg     *config.Config
	cfgFile string

	storageDir string
	dbPath     string
	outputDir  string
	jobs       int
	verify     bool
	logLevel   string
	logFormat  string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "casc",
	Short: "Read-only access to local CASC game archives",
	Long: `casc reads a local CASC installation: it resolves the active build,
loads the archive index tables and the TVFS root, and serves files from the
BLTE encoded archive data.

Files can be listed, printed, extracted to disk, or exported as a listing
into a queryable SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("storage") {
			cfg.Storage = storageDir
		}
		if cmd.Flags().Changed("database") {
			cfg.Database = dbPath
		}
		if cmd.Flags().Changed("output") {
			cfg.Output = outputDir
		}
		if cmd.Flags().Changed("jobs") {
			cfg.Jobs = jobs
		}
		if cmd.Flags().Changed("verify") {
			cfg.Verify = verify
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.Level(),
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: cfg.Level(),
			})
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)

		slog.Debug("Configuration",
			"storage", cfg.Storage,
			"database", cfg.Database,
			"output", cfg.Output,
			"jobs", cfg.Jobs,
			"verify", cfg.Verify,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// openStorage opens the configured installation
func openStorage() (*storage.Storage, error) {
	opts := storage.DefaultOptions()
	opts.VerifyChecksums = cfg.Verify

	s, err := storage.Open(cfg.Storage, opts)
	if err != nil {
		return nil, fmt.Errorf("opening storage %s: %w", cfg.Storage, err)
	}
	return s, nil
}

// progressEnabled reports whether a progress bar would interleave with logs
func progressEnabled() bool {
	return !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is casc.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&storageDir, "storage", "s", "", "installation directory holding .build.info")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "database file path")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "directory extracted files are written to")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "number of files extracted in parallel")
	rootCmd.PersistentFlags().BoolVar(&verify, "verify", false, "verify frame checksums while reading")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
