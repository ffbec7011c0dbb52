package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"listquery/internal/apiquery"
	"listquery/internal/introspection"
	"listquery/internal/naming"
	"listquery/internal/planner"
	"listquery/internal/queryspec"
	"listquery/internal/sqlutil"
)

const (
	modeFind    = "find"
	modeBuilder = "builder"
	modeSQL     = "sql"
)

// compileOptions holds flags for the compile command.
type compileOptions struct {
	*rootOptions
	Schema       string
	Mode         string
	Dialect      string
	DefaultLimit int
	MaxLimit     int
}

type sqlOutput struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile <entity> [query]",
		Short: "Compile a query against a schema file",
		Long: `Compile a list-query string for one entity of a YAML schema file.

Modes:
  find     declarative find options (rejects filter groups)
  builder  parameterized query plan
  sql      rendered SELECT statement and bound arguments`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			return runCompile(cmd, opts, args[0], raw)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "YAML schema file (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", modeSQL, "output mode (find|builder|sql)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(sqlutil.MySQL), "SQL dialect (mysql|postgres)")
	cmd.Flags().IntVar(&opts.DefaultLimit, "default-limit", queryspec.DefaultLimit, "limit applied when the query sets none")
	cmd.Flags().IntVar(&opts.MaxLimit, "max-limit", 0, "clamp the rendered limit (0 disables)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *compileOptions, entity, raw string) error {
	switch opts.Mode {
	case modeFind, modeBuilder, modeSQL:
	default:
		return fmt.Errorf("invalid mode %q: must be one of find, builder, sql", opts.Mode)
	}
	dialect, err := sqlutil.DialectForDriver(opts.Dialect)
	if err != nil {
		return err
	}

	logger := opts.logger(cmd)
	namer := naming.New(naming.DefaultConfig(), logger.Logger)
	schema, err := introspection.LoadSchemaFile(cmd.Context(), opts.Schema, namer)
	if err != nil {
		return err
	}
	table, ok := schema.Lookup(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q in %s", entity, opts.Schema)
	}

	policy, err := opts.loadPolicy()
	if err != nil {
		return err
	}
	query, err := apiquery.FromQueryString(raw, policy, apiquery.WithDefaultLimit(opts.DefaultLimit))
	if err != nil {
		return err
	}
	logger.Debug("compiling query",
		slog.String("entity", entity),
		slog.String("mode", opts.Mode),
		slog.String("dialect", string(dialect)),
	)

	out := cmd.OutOrStdout()
	if opts.Mode == modeFind {
		find, err := query.ToFindOptions(table)
		if err != nil {
			return err
		}
		return writeJSON(out, find)
	}

	plan, err := query.ToQueryBuilder(table)
	if err != nil {
		return err
	}
	if opts.Mode == modeBuilder {
		return writeJSON(out, plan)
	}

	rendered, err := planner.Render(plan, schema, planner.RenderOptions{
		Dialect:  dialect,
		MaxLimit: opts.MaxLimit,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, sqlOutput{SQL: rendered.SQL, Args: rendered.Args})
}
