package deps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// pipNames maps import names to the distribution pip installs them from.
var pipNames = map[string]string{
	"sklearn":  "scikit-learn",
	"cv2":      "opencv-python",
	"PIL":      "Pillow",
	"yaml":     "PyYAML",
	"bs4":      "beautifulsoup4",
	"dotenv":   "python-dotenv",
	"dateutil": "python-dateutil",
}

// pinnedVersions are known-compatible releases of common scientific packages.
var pinnedVersions = map[string]string{
	"pandas":       "pandas==2.0.3",
	"numpy":        "numpy==1.24.3",
	"matplotlib":   "matplotlib==3.7.2",
	"seaborn":      "seaborn==0.12.2",
	"scikit-learn": "scikit-learn==1.3.0",
	"tensorflow":   "tensorflow==2.13.0",
	"torch":        "torch==2.0.1",
}

// PackageFor returns the pip install target for an imported module name.
func PackageFor(module string) string {
	dist := module
	if name, ok := pipNames[module]; ok {
		dist = name
	}
	if pinned, ok := pinnedVersions[dist]; ok {
		return pinned
	}
	return dist
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command and returns combined stdout and stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Installer checks for and installs Python packages with pip.
type Installer struct {
	python  string
	runner  CommandRunner
	timeout time.Duration
	logger  zerolog.Logger
}

// Config holds installer configuration.
type Config struct {
	// Python is the interpreter whose environment receives the packages.
	Python string

	// Timeout bounds each pip invocation. Zero means no bound.
	Timeout time.Duration
}

// Failure records a package that could not be installed.
type Failure struct {
	Module string
	Target string
	Err    error
	Output string
}

// Report summarizes an installation pass.
type Report struct {
	Required  []string
	Present   []string
	Installed []string
	Failed    []Failure
}

// NewInstaller creates an installer. A nil runner uses ExecRunner.
func NewInstaller(cfg Config, runner CommandRunner, logger zerolog.Logger) *Installer {
	if runner == nil {
		runner = ExecRunner{}
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	return &Installer{
		python:  python,
		runner:  runner,
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "deps").Logger(),
	}
}

const findSpecScript = "import importlib.util, sys; sys.exit(0 if importlib.util.find_spec(sys.argv[1]) else 1)"

// IsInstalled reports whether module is importable by the interpreter.
func (i *Installer) IsInstalled(ctx context.Context, module string) bool {
	_, err := i.runner.Run(ctx, i.python, "-c", findSpecScript, module)
	return err == nil
}

// InstallMissing installs every module that is not importable. Individual
// failures are collected in the report; the pass continues past them.
func (i *Installer) InstallMissing(ctx context.Context, modules []string) (*Report, error) {
	report := &Report{Required: modules}

	for _, module := range modules {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if i.IsInstalled(ctx, module) {
			report.Present = append(report.Present, module)
			continue
		}

		target := PackageFor(module)
		i.logger.Info().Str("module", module).Str("target", target).Msg("Installing package")

		out, err := i.install(ctx, target)
		if err != nil {
			i.logger.Warn().Err(err).Str("module", module).Msg("Package install failed")
			report.Failed = append(report.Failed, Failure{
				Module: module,
				Target: target,
				Err:    err,
				Output: lastLines(string(out), 5),
			})
			continue
		}

		report.Installed = append(report.Installed, module)
	}

	return report, nil
}

func (i *Installer) install(ctx context.Context, target string) ([]byte, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	out, err := i.runner.Run(ctx, i.python, "-m", "pip", "install", "--force-reinstall", target)
	if err != nil {
		return out, fmt.Errorf("pip install %s: %w", target, err)
	}
	return out, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
