package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"listquery/internal/logging"
	"listquery/internal/restrict"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	LogLevel string
	Policy   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "querykit",
		Short:         "Work with list-query strings offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "YAML restriction policy applied to parsed queries")

	cmd.AddCommand(newParseCommand(opts))
	cmd.AddCommand(newEncodeCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newTokenCommand())
	return cmd
}

// logger writes to the command's error stream so JSON output stays clean.
func (o *rootOptions) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Level:  o.LogLevel,
		Format: "text",
		Output: cmd.ErrOrStderr(),
	})
}

// loadPolicy reads the --policy file, or returns nil when none was given.
func (o *rootOptions) loadPolicy() (*restrict.Policy, error) {
	if o.Policy == "" {
		return nil, nil
	}
	data, err := os.ReadFile(o.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	var policy restrict.Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy %s: %w", o.Policy, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// readInput returns args[0] when present and not "-", otherwise the whole of stdin.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
