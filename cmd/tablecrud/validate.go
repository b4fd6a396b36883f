package main

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/tablecrud/config"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and schema before deployment",
	Long: `Validate the tablecrud configuration file and the schema it names.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Schema fields, defaults and allowed values are consistent
  - Database is reachable and the table can be created (optional)

Examples:
  tablecrud validate
  tablecrud validate --config /etc/tablecrud/config.yaml --check-database`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the database is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	// Load and validate config
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	s, err := schema.ParseFile(cfg.Schema.Path)
	if err != nil {
		fmt.Fprintf(out, "  %s Schema valid\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Fprintf(out, "  %s Schema valid\n", checkMark)

	// Show config summary
	basePath := cfg.API.BasePath
	if basePath == "" {
		basePath = "/api/" + s.Entity()
	}
	fmt.Fprintf(out, "  %s Entity: %s (%d fields, identifier %s)\n", checkMark, s.Entity(), s.Len(), s.IDField())
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Base path: %s\n", checkMark, basePath)

	// Optional: check database
	if validateCheckDatabase {
		if err := checkDatabase(cfg, s); err != nil {
			fmt.Fprintf(out, "  %s Database reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database reachable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabase(cfg *config.Config, s *schema.Schema) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, s)
	if err != nil {
		return err
	}
	return st.Close()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
