// Package main is the entry point for devscript-server, a local DevScript
// service backed by the Gemini API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/app"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/converter"
	"devscript.dev/devscript/internal/server"
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
	var opts app.Options

	cmd := &cobra.Command{
		Use:   "devscript-server",
		Short: "Serve the DevScript API locally",
		Long: `Serve /convert, /explain and /user/usage on top of the Gemini API so
devscript-client can run without a hosted service.

API keys come from the server.accounts list in the settings file and from
DEVSCRIPT_SERVER_API_KEYS (comma-separated). Usage counters live in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Bootstrap(opts, "server", console, os.Stderr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), env)
		},
	}

	app.AddGlobalFlags(cmd, &opts, app.BuildInfo{
		Name:      "DevScript Server",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	return cmd
}

func serve(ctx context.Context, env *app.Env) error {
	logger := env.Logger
	s := env.Settings.Server

	cfg, err := config.NewResolver(env.Paths, logger).Resolve()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(&cfg); err != nil {
		return err
	}

	gemini, err := converter.NewGeminiGenerator(ctx, converter.GeminiConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: env.Settings.Model.Temperature,
	})
	if err != nil {
		return err
	}

	accounts := server.NewAccounts(s.Accounts, logger)
	if accounts.Len() == 0 {
		logger.Warn().Msg("No API keys configured; every request will be rejected")
	}

	srv := server.New(server.Config{
		Host:         s.Host,
		Port:         s.Port,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
		ModelTimeout: env.Settings.Model.Timeout,
	}, server.Dependencies{
		Accounts: accounts,
		GeneratorFor: func(model string) converter.Generator {
			return gemini.WithModel(model)
		},
		DefaultModel: cfg.Model,
		Version:      Version,
		StartTime:    time.Now(),
	}, logger)

	env.Console.Success("DevScript server listening on http://%s (model %s)", srv.Addr(), cfg.Model)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
