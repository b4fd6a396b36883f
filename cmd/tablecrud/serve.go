package main

import (
	"fmt"
	"os"

	"github.com/artpar/tablecrud/bootstrap"
	"github.com/artpar/tablecrud/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the tablecrud API server.

The server will:
  - Load configuration from tablecrud.yaml (or --config)
  - Or load configuration from TABLECRUD_* environment variables
  - Load the entity schema and create its table if missing
  - Serve read, create, update and delete under the base path

Environment variables (for Docker deployments):
  TABLECRUD_SCHEMA_PATH      - Schema file (required)
  TABLECRUD_DATABASE_DRIVER  - memory, sqlite3, postgres or pgx
  TABLECRUD_DATABASE_DSN     - Data source name (default: tablecrud.db)
  TABLECRUD_SERVER_PORT      - Server port (default: 8080)
  TABLECRUD_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  tablecrud serve
  tablecrud serve --config /etc/tablecrud/config.yaml
  tablecrud serve --hot-reload=false

  # Docker (env vars only):
  TABLECRUD_SCHEMA_PATH=/schema.yaml tablecrud serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	// No configuration at all
	if !hasConfigFile && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s with a schema.path entry\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set TABLECRUD_SCHEMA_PATH environment variable")
		return nil
	}

	// Create application
	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		// Load config (file with env overrides, or env-only)
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Fprintln(cmd.OutOrStdout(), "Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
