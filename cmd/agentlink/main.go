// Command agentlink logs a support agent into the assist backend and keeps a
// live WebSocket session open.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "agentlink",
		Short:         "Agent-assist connection client",
		Long:          `Log in to the agent-assist backend and hold an authenticated WebSocket session.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config is read, if present")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newConnectCmd(opts),
		newVersionCmd(),
	)

	return root
}
