// Package main is the entry point for the DevScript converter, which calls
// the model directly.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/app"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/converter"
	"devscript.dev/devscript/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// runFlags are the per-invocation switches of the root command.
type runFlags struct {
	ShowPython bool
	DryRun     bool
	NoSave     bool
}

// generatorFactory builds the model client once credentials are known.
type generatorFactory func(ctx context.Context, cfg config.Config, settings config.Settings) (converter.Generator, error)

func newGemini(ctx context.Context, cfg config.Config, settings config.Settings) (converter.Generator, error) {
	return converter.NewGeminiGenerator(ctx, converter.GeminiConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: settings.Model.Temperature,
	})
}

func main() {
	console := ui.Stdio()
	os.Exit(app.Execute(newRootCmd(console, newGemini), console))
}

func newRootCmd(console *ui.Console, newGenerator generatorFactory) *cobra.Command {
	var (
		opts  app.Options
		flags runFlags
	)

	cmd := &cobra.Command{
		Use:   "devscript <file>",
		Short: "DevScript - AI-powered coding language",
		Long: `Convert a DevScript file to Python with a language model, install the
packages it imports and run it.

Examples:
  devscript hello.ds                 # Convert, install packages and run
  devscript hello.ds --show-python   # Also print the generated code
  devscript hello.ds --dry-run       # Convert and print, do not run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Bootstrap(opts, "direct", console, os.Stderr)
			if err != nil {
				return err
			}
			return run(cmd.Context(), env, args[0], flags, newGenerator)
		},
	}

	app.AddGlobalFlags(cmd, &opts, app.BuildInfo{
		Name:      "DevScript",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	cmd.Flags().BoolVar(&flags.ShowPython, "show-python", false, "Show the generated Python code")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Don't execute the code, just convert it")
	cmd.Flags().BoolVar(&flags.NoSave, "no-save", false, "Don't save the generated Python code")

	return cmd
}

func run(ctx context.Context, env *app.Env, file string, flags runFlags, newGenerator generatorFactory) error {
	c := env.Console

	source, err := app.ReadSource(file)
	if err != nil {
		return err
	}

	cfg, err := config.NewResolver(env.Paths, env.Logger).Resolve()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(&cfg); err != nil {
		return err
	}

	gen, err := newGenerator(ctx, cfg, env.Settings)
	if err != nil {
		return err
	}

	c.Info("🔁 Converting DevScript to Python...")
	conv := converter.New(gen, converter.Config{Timeout: env.Settings.Model.Timeout}, env.Logger)
	result, err := conv.Convert(ctx, source)
	if err != nil {
		env.Audit.LogConversion(file, cfg.Model, 0, 0, err)
		return err
	}
	env.Audit.LogConversion(file, result.Model, result.Duration, result.PromptTokens+result.OutputTokens, nil)

	if !flags.NoSave {
		path, err := app.SaveCode(env.Settings.Output.Dir, file, result.Code)
		if err != nil {
			return err
		}
		c.Info("💾 Saved Python code to: %s", path)
	}

	if flags.ShowPython || flags.DryRun {
		c.Success("Generated Python:\n")
		c.Println(result.Code)
	}

	pipeline := app.NewPipeline(env, nil)
	if _, err := pipeline.Dependencies(ctx, result.Code, !flags.DryRun); err != nil {
		return err
	}

	if flags.DryRun {
		return nil
	}

	_, err = pipeline.RunCode(ctx, file, result.Code)
	return err
}
