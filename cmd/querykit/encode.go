package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"listquery/internal/queryparse"
	"listquery/internal/queryspec"
	"listquery/internal/restrict"
)

func newEncodeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encode [spec.json]",
		Short: "Encode a JSON specification as a query string",
		Long: `Encode a JSON specification, as printed by "querykit parse", into its
canonical query string. The specification is read from stdin when no file is given.
With --policy the restriction policy is enforced before encoding.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) > 0 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				var raw string
				raw, err = readInput(cmd, nil)
				data = []byte(raw)
			}
			if err != nil {
				return err
			}

			spec := queryspec.New()
			if err := json.Unmarshal(data, &spec); err != nil {
				return fmt.Errorf("failed to decode specification: %w", err)
			}
			if err := queryspec.Validate(spec); err != nil {
				return err
			}
			policy, err := root.loadPolicy()
			if err != nil {
				return err
			}
			if spec, err = restrict.Enforce(spec, policy); err != nil {
				return err
			}
			encoded, err := queryparse.Encode(spec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}
}
