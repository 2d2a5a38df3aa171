// Package main is the entry point for devscript-setup, which stores the
// model API key and model name.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/app"
	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type setupFlags struct {
	UpdateKey   bool
	UpdateModel bool
	ShowConfig  bool
	WriteEnv    bool
}

func main() {
	console := ui.Stdio()
	os.Exit(app.Execute(newRootCmd(console, config.DefaultDotenv), console))
}

func newRootCmd(console *ui.Console, dotenvPath string) *cobra.Command {
	var (
		opts  app.Options
		flags setupFlags
	)

	cmd := &cobra.Command{
		Use:   "devscript-setup",
		Short: "Configure the DevScript API key and model",
		Long: `Store the Google AI Studio API key and model name used by devscript.

Get an API key from: https://aistudio.google.com/app/apikey

Examples:
  devscript-setup                  # Set key and model
  devscript-setup --update-model   # Change only the model
  devscript-setup --show-config    # Print the current configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Bootstrap(opts, "setup", console, os.Stderr)
			if err != nil {
				return err
			}
			return runSetup(env, flags, dotenvPath)
		},
	}

	app.AddGlobalFlags(cmd, &opts, app.BuildInfo{
		Name:      "DevScript Setup",
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	cmd.Flags().BoolVar(&flags.UpdateKey, "update-key", false, "Update only the API key")
	cmd.Flags().BoolVar(&flags.UpdateModel, "update-model", false, "Update only the model name")
	cmd.Flags().BoolVar(&flags.ShowConfig, "show-config", false, "Show the current configuration")
	cmd.Flags().BoolVar(&flags.WriteEnv, "write-env", false, "Also write the values to ./.env")
	cmd.MarkFlagsMutuallyExclusive("update-key", "update-model", "show-config")

	return cmd
}

func runSetup(env *app.Env, flags setupFlags, dotenvPath string) error {
	if flags.ShowConfig {
		return showConfig(env, dotenvPath)
	}

	c := env.Console
	path := env.Paths.ConfigFile()

	current, err := config.LoadJSON(path)
	if err != nil {
		env.Logger.Warn().Err(err).Str("path", path).Msg("Existing config is unreadable and will be replaced")
		current = map[string]interface{}{}
	}
	currentModel, _ := current["model"].(string)
	if currentModel == "" {
		currentModel = config.DefaultModel
	}

	if !flags.UpdateKey && !flags.UpdateModel {
		c.Header("🔧 DevScript Setup")
		c.Println("This utility will help you set up DevScript with your API key.")
		c.Println("You need a Google AI Studio API key to use DevScript.")
		c.Println("Get your API key from: https://aistudio.google.com/app/apikey")
		c.Println("")
	}

	updates := map[string]interface{}{}
	envUpdates := map[string]string{}

	if !flags.UpdateModel {
		key, err := c.PromptSecret("Enter your Google AI Studio API key")
		if err != nil {
			return err
		}
		if key == "" {
			return apperr.New(apperr.KindConfigMissing, "setup", "API key is required. Setup aborted")
		}
		updates["api_key"] = key
		envUpdates[config.EnvGoogleAPIKey] = key
	}

	if !flags.UpdateKey {
		model, err := c.Prompt("Enter model name", currentModel)
		if err != nil {
			return err
		}
		if err := config.ValidateModel(model); err != nil {
			return err
		}
		updates["model"] = model
		envUpdates[config.EnvGoogleModel] = model
	}

	if err := config.SaveJSON(path, updates); err != nil {
		return err
	}
	env.Logger.Info().Str("path", path).Int("fields", len(updates)).Msg("Configuration saved")

	if flags.WriteEnv {
		if err := config.WriteDotenv(dotenvPath, envUpdates); err != nil {
			return err
		}
		c.Success("Wrote %s", dotenvPath)
	}

	switch {
	case flags.UpdateKey:
		c.Success("API key updated in %s", path)
	case flags.UpdateModel:
		c.Success("Model set to %s in %s", updates["model"], path)
	default:
		c.Success("Setup complete! Configuration saved to %s", path)
		c.Println("You can now run DevScript with 'devscript your_file.ds'")
	}

	return nil
}

func showConfig(env *app.Env, dotenvPath string) error {
	c := env.Console

	resolver := config.NewResolver(env.Paths, env.Logger)
	resolver.DotenvPath = dotenvPath

	cfg, err := resolver.Resolve()
	if err != nil && apperr.KindOf(err) != apperr.KindConfigMissing {
		return err
	}

	c.Header("DevScript Configuration")
	c.Field("Config file", env.Paths.ConfigFile())
	c.Field("API key", withSource(config.MaskKey(cfg.APIKey), cfg.KeySource))
	c.Field("Model", withSource(cfg.Model, cfg.ModelSource))
	c.Field("Settings", env.Paths.SettingsFile())
	c.Field("Python", env.Settings.Python.Interpreter)
	c.Field("Output dir", env.Settings.Output.Dir)

	return nil
}

func withSource(value string, source config.Source) string {
	if source == config.SourceNone {
		return value
	}
	return fmt.Sprintf("%s (from %s)", value, source)
}
