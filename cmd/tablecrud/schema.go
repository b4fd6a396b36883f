package main

import (
	"fmt"

	"github.com/artpar/tablecrud/config"
	"github.com/artpar/tablecrud/core/formatter"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the entity schema",
	Long: `Inspect the entity schema named by the configuration.

Use --file to read a schema file directly instead.

Examples:
  tablecrud schema fields
  tablecrud schema sql --driver postgres
  tablecrud schema sql --file ./schema.yaml`,
}

var schemaFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the schema fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		f, err := formatter.Lookup(fieldsOutput)
		if err != nil {
			return err
		}
		return f.FormatList(cmd.OutOrStdout(), fieldsResult(s), formatter.FormatOptions{Columns: fieldsColumns})
	},
}

var schemaSQLCmd = &cobra.Command{
	Use:   "sql",
	Short: "Print the CREATE TABLE statement",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSchema()
		if err != nil {
			return err
		}
		d, err := storage.DialectFor(schemaDriver)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), storage.BuildCreateTableSQL(d, s)+";")
		return nil
	},
}

var (
	schemaFile    string
	schemaDriver  string
	fieldsOutput  string
	fieldsColumns []string
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaFieldsCmd)
	schemaCmd.AddCommand(schemaSQLCmd)

	schemaCmd.PersistentFlags().StringVarP(&schemaFile, "file", "f", "", "schema file (default: schema.path from config)")
	addOutputFlags(schemaFieldsCmd, &fieldsOutput, &fieldsColumns)
	schemaSQLCmd.Flags().StringVar(&schemaDriver, "driver", storage.DriverSQLite, "SQL dialect: sqlite3, postgres or pgx")
}

func loadSchema() (*schema.Schema, error) {
	path := schemaFile
	if path == "" {
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
		path = cfg.Schema.Path
	}
	return schema.ParseFile(path)
}

// fieldsResult describes the schema fields as records, one per field.
func fieldsResult(s *schema.Schema) formatter.Result {
	res := formatter.Result{
		Entity:  s.Entity(),
		Columns: []string{"name", "type", "required", "default", "values", "identifier"},
	}
	for _, f := range s.Fields() {
		var values any
		if f.IsEnum() {
			values = f.Values
		}
		res.Records = append(res.Records, map[string]any{
			"name":       f.Name,
			"type":       string(f.Type),
			"required":   f.Required,
			"default":    f.Default,
			"values":     values,
			"identifier": f.Name == s.IDField(),
		})
	}
	return res
}
