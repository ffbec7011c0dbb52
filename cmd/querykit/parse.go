package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"listquery/internal/apiquery"
)

func newParseCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [query]",
		Short: "Parse a query string into a JSON specification",
		Long: `Parse a list-query string (filters, filterGroups, relations, orderBy,
limit, offset, page) and print the resulting specification as JSON.

The query is read from stdin when omitted or given as "-". With --policy the
restriction policy is enforced before printing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			policy, err := root.loadPolicy()
			if err != nil {
				return err
			}
			opts, err := apiquery.FromQueryString(raw, policy)
			if err != nil {
				return err
			}
			root.logger(cmd).Debug("parsed query",
				slog.String("query", raw),
				slog.Bool("restricted", policy != nil),
			)
			return writeJSON(cmd.OutOrStdout(), opts.Spec())
		},
	}
}
