package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/ui"
)

// BuildInfo is version information set at build time.
type BuildInfo struct {
	Name      string
	Version   string
	BuildTime string
	GitCommit string
}

// AddGlobalFlags registers --config and --verbose and wires --version.
func AddGlobalFlags(cmd *cobra.Command, opts *Options, info BuildInfo) {
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to settings file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")

	cmd.Version = info.Version
	cmd.SetVersionTemplate(fmt.Sprintf(
		"%s\n  Version:    %s\n  Build Time: %s\n  Git Commit: %s\n  OS/Arch:    %s/%s\n",
		info.Name, info.Version, info.BuildTime, info.GitCommit, runtime.GOOS, runtime.GOARCH))

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
}

// Execute runs cmd until completion or SIGINT/SIGTERM, prints any error on
// the console and returns the process exit code.
func Execute(cmd *cobra.Command, console *ui.Console) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		console.Error("%s", err)
		return 1
	}
	return 0
}
