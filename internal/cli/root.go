package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the mfp CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI
// without going through os.Args.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mfp",
		Short:         "Compile OpenAPI/Swagger documents and serve them as MCP meta-tools",
		Long:          "mfp compiles OpenAPI/Swagger documents into a callable Python function library and serves list_servers, get_function, execute_code, and get_cached_code over MCP.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
	})

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

	for _, sub := range []*cobra.Command{newCompileCmd(), newServeCmd(), newRunCmd()} {
		sub.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
			return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
		})
		cmd.AddCommand(sub)
	}

	return cmd
}
