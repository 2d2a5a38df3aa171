// Package main is the entry point for the DevScript client, which converts
// through the remote DevScript service.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/app"
	"devscript.dev/devscript/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	console := ui.Stdio()
	os.Exit(app.Execute(newRootCmd(console), console))
}

func newRootCmd(console *ui.Console) *cobra.Command {
	opts := &app.Options{}

	cmd := &cobra.Command{
		Use:   "devscript-client",
		Short: "DevScript Client",
		Long: `Convert and run DevScript files through the DevScript service.

Examples:
  devscript-client setup                  # Store and verify your API key
  devscript-client convert hello.ds       # Convert to generated_py/hello.py
  devscript-client run hello.ds           # Convert and run
  devscript-client explain                # Explain the last failure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	app.AddGlobalFlags(cmd, opts, app.BuildInfo{
		Name:      "DevScript Client",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	bootstrap := func() (*app.Env, error) {
		return app.Bootstrap(*opts, "client", console, os.Stderr)
	}

	cmd.AddCommand(
		newSetupCmd(bootstrap),
		newConvertCmd(bootstrap),
		newRunCmd(bootstrap),
		newUsageCmd(bootstrap),
		newExplainCmd(bootstrap),
	)

	return cmd
}
