// Package executor runs generated Python code in a subprocess.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
)

// Executor runs Python source files with a bounded lifetime.
type Executor struct {
	config Config
	logger zerolog.Logger
}

// Config holds executor configuration.
type Config struct {
	// Python is the interpreter command.
	Python string

	// Timeout bounds one run. Zero means no bound.
	Timeout time.Duration

	// WorkDir is the working directory of the child; empty inherits ours.
	WorkDir string

	// Terminal streams attached to interactive programs. Nil means the
	// process's own stdin/stdout/stderr.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes a finished run.
type Result struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	Interactive bool
	Duration    time.Duration
}

// Success reports whether the program exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// waitDelay bounds how long we wait for output pipes after the child is
// killed, in case it left grandchildren holding them open.
const waitDelay = 2 * time.Second

var inputCall = regexp.MustCompile(`\binput\(`)

// IsInteractive reports whether code reads from the terminal via input().
func IsInteractive(code string) bool {
	return inputCall.MatchString(code)
}

// New creates a new executor.
func New(cfg Config, logger zerolog.Logger) *Executor {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	return &Executor{
		config: cfg,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Run writes code to a temporary file, runs it and removes the file.
// A non-zero exit status is reported in the result, not as an error.
func (e *Executor) Run(ctx context.Context, code string) (*Result, error) {
	tmp, err := os.CreateTemp("", "devscript-*.py")
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindExecutionFailure, "execute", err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return nil, apperr.Wrapf(apperr.KindExecutionFailure, "execute", err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, apperr.Wrapf(apperr.KindExecutionFailure, "execute", err, "failed to write temp file")
	}

	return e.run(ctx, tmpName, IsInteractive(code))
}

// RunFile runs an existing Python file.
func (e *Executor) RunFile(ctx context.Context, path string) (*Result, error) {
	code, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.New(apperr.KindFileNotFound, "execute", fmt.Sprintf("file not found: %s", path))
	}
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindExecutionFailure, "execute", err, "failed to read %s", path)
	}

	return e.run(ctx, path, IsInteractive(string(code)))
}

func (e *Executor) run(ctx context.Context, path string, interactive bool) (*Result, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	e.logger.Info().
		Str("python", e.config.Python).
		Str("path", path).
		Bool("interactive", interactive).
		Dur("timeout", e.config.Timeout).
		Msg("Running generated code")

	cmd := exec.CommandContext(ctx, e.config.Python, path)
	cmd.Dir = e.config.WorkDir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	if interactive {
		cmd.Stdin = e.config.Stdin
		cmd.Stdout = e.config.Stdout
		cmd.Stderr = e.config.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		Interactive: interactive,
		Duration:    time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		e.logger.Warn().Dur("timeout", e.config.Timeout).Msg("Generated code timed out")
		return result, apperr.New(apperr.KindExecutionFailure, "execute",
			fmt.Sprintf("program timed out after %s", e.config.Timeout))
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, apperr.Wrapf(apperr.KindExecutionFailure, "execute", err, "failed to start %s", e.config.Python)
	}

	e.logger.Info().
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Generated code finished")

	return result, nil
}
