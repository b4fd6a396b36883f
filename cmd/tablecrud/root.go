package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tablecrud",
	Short: "Schema-driven create, read, update and delete API for one table",
	Long: `tablecrud serves a JSON API over a single database table.

The table is described by a schema file listing its fields, their types,
defaults, required flags and allowed values. Every request is checked
against the schema before it reaches the database.

Quick start:
  tablecrud serve                  # Start the server
  tablecrud validate               # Validate configuration and schema
  tablecrud schema sql             # Print the CREATE TABLE statement`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tablecrud.yaml", "config file path")
}
