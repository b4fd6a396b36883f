package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/tablecrud/config"
	"github.com/artpar/tablecrud/core/formatter"
	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read [field=value ...]",
	Short: "Read records directly from the configured database",
	Long: `Read records from the entity table without going through the server.

Arguments of the form field=value become equality filters, exactly as
query parameters do on the read endpoint.

Examples:
  tablecrud read
  tablecrud read --where "int > 3" --order "id DESC" --limit 10
  tablecrud read test=abc -o json`,
	RunE: runRead,
}

var (
	readWhere   string
	readOrder   string
	readLimit   int
	readOffset  int
	readOutput  string
	readColumns []string
)

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().StringVar(&readWhere, "where", "", "filter expression, e.g. \"int > 3,test = abc\"")
	readCmd.Flags().StringVar(&readOrder, "order", "", "ordering, e.g. \"id DESC\"")
	readCmd.Flags().IntVar(&readLimit, "limit", 0, "maximum number of records (0 = no limit)")
	readCmd.Flags().IntVar(&readOffset, "offset", 0, "number of records to skip")
	addOutputFlags(readCmd, &readOutput, &readColumns)
}

func runRead(cmd *cobra.Command, args []string) error {
	f, err := formatter.Lookup(readOutput)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	s, err := schema.ParseFile(cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("schema error: %w", err)
	}

	params, err := readParams(args)
	if err != nil {
		return err
	}
	qargs, err := query.BuildReadArgs(s, params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, s)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Select(ctx, "*", qargs)
	if err != nil {
		return err
	}

	res := formatter.Result{
		Entity:  s.Entity(),
		Columns: s.Names(),
		Records: make([]map[string]any, len(records)),
	}
	for i, r := range records {
		res.Records[i] = r
	}

	return f.FormatList(cmd.OutOrStdout(), res, formatter.FormatOptions{Columns: readColumns})
}

// readParams assembles the same parameter map the read endpoint builds
// from its query string.
func readParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args)+4)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", arg)
		}
		params[key] = value
	}

	if readWhere != "" {
		params[query.ParamWhere] = readWhere
	}
	if readOrder != "" {
		params[query.ParamOrder] = readOrder
	}
	if readLimit > 0 {
		params[query.ParamLimit] = strconv.Itoa(readLimit)
	}
	if readOffset > 0 {
		params[query.ParamOffset] = strconv.Itoa(readOffset)
	}
	return params, nil
}

func addOutputFlags(cmd *cobra.Command, output *string, columns *[]string) {
	cmd.Flags().StringVarP(output, "output", "o", "", fmt.Sprintf("output format: %v (default: table)", formatter.List()))
	cmd.Flags().StringSliceVar(columns, "columns", nil, "columns to display")
}
