package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/deps"
	"devscript.dev/devscript/internal/executor"
	"devscript.dev/devscript/internal/explain"
)

// Pipeline runs the stages after conversion: dependency installation and
// execution with failure caching.
type Pipeline struct {
	env       *Env
	installer *deps.Installer
	executor  *executor.Executor
	cache     *explain.Cache
}

// NewPipeline creates a pipeline from env's settings. A nil runner installs
// packages with the real interpreter.
func NewPipeline(env *Env, runner deps.CommandRunner) *Pipeline {
	s := env.Settings
	return &Pipeline{
		env: env,
		installer: deps.NewInstaller(deps.Config{
			Python:  s.Python.Interpreter,
			Timeout: s.Execution.InstallTimeout,
		}, runner, env.Logger),
		executor: executor.New(executor.Config{
			Python:  s.Python.Interpreter,
			Timeout: s.Execution.Timeout,
			Stdout:  env.Console.Out(),
			Stderr:  env.Console.ErrOut(),
		}, env.Logger),
		cache: explain.NewCache(env.Paths),
	}
}

// Dependencies prints the packages code needs and, when install is set,
// installs the missing ones. Install failures are reported, not fatal.
func (p *Pipeline) Dependencies(ctx context.Context, code string, install bool) (*deps.Report, error) {
	c := p.env.Console

	required := deps.ExtractImports(code)
	if len(required) == 0 {
		return &deps.Report{}, nil
	}

	c.Info("📦 Required packages: %s", strings.Join(required, ", "))
	if !install {
		return &deps.Report{Required: required}, nil
	}

	report, err := p.installer.InstallMissing(ctx, required)

	var failed []string
	for _, f := range report.Failed {
		failed = append(failed, f.Module)
		c.Warn("Failed to install %s: %s", f.Target, f.Output)
	}
	p.env.Audit.LogDependencyInstall(report.Installed, failed, err)

	if err != nil {
		return report, err
	}

	if len(report.Installed) > 0 {
		c.Success("Installed packages: %s", strings.Join(report.Installed, ", "))
	} else if len(report.Failed) == 0 {
		c.Success("All required packages already installed.")
	}

	return report, nil
}

// RunCode executes generated code.
func (p *Pipeline) RunCode(ctx context.Context, sourceFile, code string) (*executor.Result, error) {
	p.env.Console.Info("\n🚀 Running Python code:\n")
	result, err := p.executor.Run(ctx, code)
	return p.finish(sourceFile, code, result, err)
}

// RunFile executes an existing Python file.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*executor.Result, error) {
	p.env.Console.Info("🚀 Running Python code: %s", path)
	p.env.Console.Rule(40)
	result, err := p.executor.RunFile(ctx, path)
	if apperr.KindOf(err) == apperr.KindFileNotFound {
		return nil, err
	}

	code, readErr := os.ReadFile(path)
	if readErr != nil {
		p.env.Logger.Warn().Err(readErr).Str("path", path).Msg("Could not reread code for explain cache")
	}
	return p.finish(path, string(code), result, err)
}

// finish prints captured output, caches failures for explain and turns a
// non-zero exit into an ExecutionFailure.
func (p *Pipeline) finish(sourceFile, code string, result *executor.Result, err error) (*executor.Result, error) {
	c := p.env.Console

	if result != nil && !result.Interactive {
		if result.Stdout != "" {
			_, _ = fmt.Fprint(c.Out(), result.Stdout)
		}
		if result.Stderr != "" {
			c.ProgramStderr(result.Stderr)
		}
	}

	exitCode := -1
	var duration time.Duration
	if result != nil {
		exitCode = result.ExitCode
		duration = result.Duration
	}

	if err != nil {
		p.cacheFailure(code, err.Error())
		p.env.Audit.LogExecution(sourceFile, exitCode, duration, err)
		return result, err
	}

	p.env.Audit.LogExecution(sourceFile, exitCode, duration, nil)

	if !result.Success() {
		errText := result.Stderr
		if strings.TrimSpace(errText) == "" {
			errText = fmt.Sprintf("process exited with status %d", result.ExitCode)
		}
		p.cacheFailure(code, errText)
		return result, apperr.New(apperr.KindExecutionFailure, "execute",
			fmt.Sprintf("program exited with code %d", result.ExitCode))
	}

	return result, nil
}

func (p *Pipeline) cacheFailure(code, errText string) {
	if err := p.cache.Save(code, errText); err != nil {
		p.env.Logger.Warn().Err(err).Msg("Failed to update explain cache")
	}
}
