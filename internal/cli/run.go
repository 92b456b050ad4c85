package cli

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile configured sources, then serve the MCP meta-tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			if err := runCompile(cmd, configPath, verbose, false, false); err != nil {
				return err
			}
			return runServe(cmd, configPath, verbose, cmd.Flags())
		},
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve MCP tools over (stdio|http)")
	cmd.Flags().String("host", "127.0.0.1", "Host to bind when --transport=http")
	cmd.Flags().Int("port", 8080, "Port to bind when --transport=http")
	return cmd
}
