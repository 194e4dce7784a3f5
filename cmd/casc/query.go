package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/database"
)

var (
	queryTables bool
	querySchema string
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the exported SQLite database",
	Long: `Query executes SQL against a database written by export, lists its
tables, or shows the columns of one table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slog.Debug("Query parameters",
			"database", cfg.Database,
			"list-tables", queryTables,
			"schema", querySchema)

		dbOptions := database.DefaultDatabaseOptions(cfg.Database)
		dbOptions.ReadOnly = true

		db, err := database.NewDatabase(dbOptions)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		switch {
		case queryTables:
			return listTables(ctx, db)
		case querySchema != "":
			return showSchema(ctx, db, querySchema)
		case len(args) > 0:
			return runQuery(ctx, db, args[0])
		}

		return fmt.Errorf("no query provided, use --tables to list tables or --schema <table> to show schema")
	},
}

func listTables(ctx context.Context, db *database.Database) error {
	rows, err := db.Query(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND substr(name, 1, 1) <> '_' AND name NOT LIKE 'sqlite%'
		ORDER BY name
	`)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	fmt.Println("Available tables:")
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning table name: %w", err)
		}
		fmt.Printf("  %s\n", name)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating table names: %w", err)
	}
	return nil
}

func showSchema(ctx context.Context, db *database.Database, table string) error {
	rows, err := db.Query(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("getting schema for table %s: %w", table, err)
	}
	defer rows.Close()

	fmt.Printf("Schema for table '%s':\n", table)
	fmt.Printf("%-20s %-15s %-10s %-10s %-10s\n", "Column", "Type", "NotNull", "Default", "Primary")
	fmt.Println(strings.Repeat("-", 70))

	found := false
	for rows.Next() {
		var name, dataType string
		var notNull, primaryKey int
		var defaultValue any

		if err := rows.Scan(&name, &dataType, &notNull, &defaultValue, &primaryKey); err != nil {
			return fmt.Errorf("scanning schema row: %w", err)
		}
		found = true

		defaultStr := "NULL"
		if defaultValue != nil {
			defaultStr = fmt.Sprintf("%v", defaultValue)
		}

		fmt.Printf("%-20s %-15s %-10s %-10s %-10s\n", name, dataType, yesNo(notNull != 0), defaultStr, yesNo(primaryKey != 0))
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating schema: %w", err)
	}
	if !found {
		return fmt.Errorf("table %s does not exist", table)
	}
	return nil
}

func runQuery(ctx context.Context, db *database.Database, query string) error {
	slog.Debug("Executing SQL query", "query", query)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("getting column names: %w", err)
	}

	fmt.Println(strings.Join(columns, "\t"))
	rules := make([]string, len(columns))
	for i, col := range columns {
		rules[i] = strings.Repeat("-", len(col))
	}
	fmt.Println(strings.Join(rules, "\t"))

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	cells := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		for i, val := range values {
			switch v := val.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Println(strings.Join(cells, "\t"))
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryTables, "tables", false, "List available tables")
	queryCmd.Flags().StringVar(&querySchema, "schema", "", "Show schema for specified table")
}
