package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/PyTables/datasette-core/config"
	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/databases/sqlite"
	"github.com/PyTables/datasette-core/mcp"
)

var (
	configPath  string
	dbPath      string
	queryParams []string
	truncate    bool
	timeLimitMs int
)

var rootCmd = &cobra.Command{
	Use:   "datasette-core",
	Short: "Read-only SQLite access layer",
	Long:  `Inspect the schema of a SQLite database file and run time-limited read-only queries against it, from the command line or as an MCP stdio server.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the database over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		connector, err := newConnector()
		if err != nil {
			return err
		}
		defer connector.Close()

		s := server.NewMCPServer(
			"datasette-core",
			"0.1.0",
			server.WithToolCapabilities(false),
			server.WithLogging(),
		)
		mcp.RegisterTools(s, connector)
		slog.Info("serving database", "path", dbPath)

		return server.ServeStdio(s)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print schema metadata as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		connector, err := newConnector()
		if err != nil {
			return err
		}
		defer connector.Close()

		tables, views, err := connector.Inspect(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"tables": tables, "views": views})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Execute a single SQL statement and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		connector, err := newConnector()
		if err != nil {
			return err
		}
		defer connector.Close()

		opts := databases.ExecuteOptions{Truncate: truncate}
		for _, p := range queryParams {
			opts.Params = append(opts.Params, p)
		}
		if timeLimitMs > 0 {
			opts.TimeLimit = time.Duration(timeLimitMs) * time.Millisecond
		}

		result, err := connector.Execute(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database file (overrides config)")

	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "positional query parameter (repeatable)")
	queryCmd.Flags().BoolVar(&truncate, "truncate", false, "cap the result at the configured maximum row count")
	queryCmd.Flags().IntVar(&timeLimitMs, "time-limit-ms", 0, "wall-clock budget for the statement in milliseconds")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queryCmd)
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("no database file: set --db or database.path in the config file")
	}
	dbPath = cfg.Database.Path
	return cfg, nil
}

func newConnector() (databases.Connector, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)

	return sqlite.NewConnector(cfg.Database.Path, sqlite.Options{
		MaxReturnedRows: cfg.Database.MaxReturnedRows,
		TimeLimit:       cfg.Database.TimeLimit(),
		Extensions:      cfg.Database.Extensions,
	})
}

// setupLogging configures the default slog logger from config. Logs go
// to stderr so stdout stays clean for MCP stdio and JSON output.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
