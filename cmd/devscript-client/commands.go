package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devscript.dev/devscript/internal/app"
	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/client"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/explain"
	"devscript.dev/devscript/pkg/protocol"
)

type bootstrapFunc func() (*app.Env, error)

func newSetupCmd(bootstrap bootstrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Setup API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap()
			if err != nil {
				return err
			}
			return runSetup(cmd.Context(), env)
		},
	}
}

func newConvertCmd(bootstrap bootstrapFunc) *cobra.Command {
	var (
		runAfter bool
		model    string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert DevScript to Python",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap()
			if err != nil {
				return err
			}

			path, err := convert(cmd.Context(), env, args[0], model)
			if err != nil || !runAfter {
				return err
			}
			return runFile(cmd.Context(), env, path)
		},
	}

	cmd.Flags().BoolVar(&runAfter, "run", false, "Run the converted Python code")
	cmd.Flags().StringVar(&model, "model", "", "Specify the model to use (e.g., gemini-2.0-flash)")

	return cmd
}

func newRunCmd(bootstrap bootstrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Convert and run DevScript file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap()
			if err != nil {
				return err
			}

			path, err := convert(cmd.Context(), env, args[0], "")
			if err != nil {
				return err
			}
			return runFile(cmd.Context(), env, path)
		},
	}
}

func newUsageCmd(bootstrap bootstrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show API usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap()
			if err != nil {
				return err
			}

			api, err := newClient(env)
			if err != nil {
				return err
			}

			usage, err := api.Usage(cmd.Context())
			if err != nil {
				return err
			}

			env.Console.Header("DevScript Usage Statistics")
			printUsage(env, usage)
			status := "Active"
			if !usage.Active() {
				status = "Inactive"
			}
			env.Console.Field("Account status", status)
			return nil
		},
	}
}

func newExplainCmd(bootstrap bootstrapFunc) *cobra.Command {
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain the last failed program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap()
			if err != nil {
				return err
			}

			if clearCache {
				if err := explain.NewCache(env.Paths).Clear(); err != nil {
					return err
				}
				env.Console.Success("Cleared the last failure.")
				return nil
			}

			err = explainLast(cmd.Context(), env)
			env.Audit.LogExplain(err)
			return err
		},
	}

	cmd.Flags().BoolVar(&clearCache, "clear", false, "Forget the cached failure instead of explaining it")

	return cmd
}

// ============================================================
// Command bodies
// ============================================================

func newClient(env *app.Env) (*client.Client, error) {
	cfg, err := config.NewResolver(env.Paths, env.Logger).ResolveClient()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateClientConfig(&cfg); err != nil {
		return nil, err
	}

	env.Logger.Debug().
		Str("api_url", cfg.APIURL).
		Str("key_source", string(cfg.KeySource)).
		Msg("Resolved service configuration")

	return client.New(client.Config{
		BaseURL:        cfg.APIURL,
		APIKey:         cfg.APIKey,
		RequestTimeout: env.Settings.API.RequestTimeout,
	}, env.Logger), nil
}

func runSetup(ctx context.Context, env *app.Env) error {
	c := env.Console

	c.Header("🔧 DevScript API Setup")
	c.Println("Please enter your DevScript API key.")
	c.Println("You can get your key at https://devscript.com/dashboard")
	c.Println("")

	key, err := c.PromptSecret("Enter your DevScript API key")
	if err != nil {
		return err
	}
	if key == "" {
		return apperr.New(apperr.KindConfigMissing, "setup", "API key is required")
	}

	resolver := config.NewResolver(env.Paths, env.Logger)
	apiURL := resolver.APIURL()
	c.Info("Connecting to API at: %s/user/usage", apiURL)

	api := client.New(client.Config{
		BaseURL:        apiURL,
		APIKey:         key,
		RequestTimeout: env.Settings.API.RequestTimeout,
	}, env.Logger)

	usage, err := api.Usage(ctx)
	if err != nil {
		if apiErr, ok := client.AsAPIError(err); ok && apiErr.Detail == "API error" {
			apiErr.Detail = "Invalid API key"
		}
		return err
	}

	if err := config.SaveJSON(env.Paths.ClientFile(), map[string]interface{}{"api_key": key}); err != nil {
		return err
	}

	c.Success("API key verified and saved!")
	printUsage(env, usage)
	return nil
}

func printUsage(env *app.Env, usage *protocol.UsageResponse) {
	c := env.Console

	email := usage.Email
	if email == "" {
		email = "Not available"
	}
	c.Field("Email", email)
	c.Field("Subscription", usage.Subscription())
	c.Field("API calls", usage.APICalls)
	if usage.RenewalDate != "" {
		c.Field("Renewal date", usage.RenewalDate)
	}
}

// convert sends the file to the service and saves the result. It returns
// the path of the saved Python file.
func convert(ctx context.Context, env *app.Env, file, model string) (string, error) {
	c := env.Console

	source, err := app.ReadSource(file)
	if err != nil {
		return "", err
	}

	api, err := newClient(env)
	if err != nil {
		return "", err
	}

	c.Info("🔄 Converting DevScript to Python...")
	resp, err := api.Convert(ctx, source, model)
	if err != nil {
		env.Audit.LogConversion(file, model, 0, 0, err)
		return "", err
	}

	tokens := 0
	if resp.TokensUsed != nil {
		tokens = *resp.TokensUsed
	}
	env.Audit.LogConversion(file, model, 0, tokens, nil)

	path, err := app.SaveCode(env.Settings.Output.Dir, file, resp.PythonCode)
	if err != nil {
		return "", err
	}

	c.Success("Converted DevScript to Python: %s", path)
	if resp.TokensUsed != nil {
		c.Field("Tokens used", *resp.TokensUsed)
	}
	if resp.RemainingQuota != nil {
		c.Field("Remaining quota", *resp.RemainingQuota)
	}

	return path, nil
}

func runFile(ctx context.Context, env *app.Env, path string) error {
	_, err := app.NewPipeline(env, nil).RunFile(ctx, path)
	if apperr.KindOf(err) == apperr.KindExecutionFailure {
		env.Console.Info("Run 'devscript-client explain' for help with this error.")
	}
	return err
}

func explainLast(ctx context.Context, env *app.Env) error {
	entry, err := explain.NewCache(env.Paths).Load()
	if err != nil {
		return err
	}

	api, err := newClient(env)
	if err != nil {
		return err
	}

	env.Console.Info("🔍 Asking for an explanation of the last error...")
	resp, err := api.Explain(ctx, entry.Code, entry.Error)
	if err != nil {
		return fmt.Errorf("explain failed: %w", err)
	}

	env.Console.Header("Explanation")
	env.Console.Println(resp.Explanation)
	return nil
}
