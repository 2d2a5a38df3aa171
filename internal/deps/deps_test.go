package deps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImports(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "alias and stdlib from-import",
			code: "import pandas as pd\nfrom os import path\n",
			want: []string{"pandas"},
		},
		{
			name: "dotted and multiple names",
			code: "import numpy, matplotlib.pyplot as plt\nimport json\n",
			want: []string{"matplotlib", "numpy"},
		},
		{
			name: "from submodule",
			code: "from sklearn.linear_model import LinearRegression\n",
			want: []string{"sklearn"},
		},
		{
			name: "nested imports are found",
			code: "def load():\n    try:\n        import requests\n    except ImportError:\n        import urllib.request\n",
			want: []string{"requests"},
		},
		{
			name: "relative imports skipped",
			code: "from . import helpers\nfrom .models import User\n",
			want: nil,
		},
		{
			name: "future and builtins skipped",
			code: "from __future__ import annotations\nimport builtins\nimport sys\n",
			want: nil,
		},
		{
			name: "duplicates collapse",
			code: "import requests\nfrom requests import get\nimport requests.adapters\n",
			want: []string{"requests"},
		},
		{
			name: "syntax error yields nothing",
			code: "import pandas as\nprint(\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractImports(tt.code))
		})
	}
}

func TestPackageFor(t *testing.T) {
	tests := map[string]string{
		"pandas":   "pandas==2.0.3",
		"numpy":    "numpy==1.24.3",
		"sklearn":  "scikit-learn==1.3.0",
		"torch":    "torch==2.0.1",
		"PIL":      "Pillow",
		"requests": "requests",
	}
	for module, want := range tests {
		assert.Equal(t, want, PackageFor(module), "PackageFor(%q)", module)
	}
}

type fakeRunner struct {
	installed map[string]bool
	failPip   map[string]bool
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))

	if len(args) >= 3 && args[0] == "-c" {
		if f.installed[args[2]] {
			return nil, nil
		}
		return nil, errors.New("exit status 1")
	}

	target := args[len(args)-1]
	if f.failPip[target] {
		return []byte("ERROR: No matching distribution found for " + target + "\n"), errors.New("exit status 1")
	}
	return []byte("Successfully installed " + target + "\n"), nil
}

func TestInstallMissing(t *testing.T) {
	runner := &fakeRunner{
		installed: map[string]bool{"numpy": true},
		failPip:   map[string]bool{"notapkg": true},
	}
	inst := NewInstaller(Config{Python: "py"}, runner, zerolog.Nop())

	report, err := inst.InstallMissing(context.Background(), []string{"numpy", "pandas", "notapkg"})
	require.NoError(t, err)

	assert.Equal(t, []string{"numpy"}, report.Present)
	assert.Equal(t, []string{"pandas"}, report.Installed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "notapkg", report.Failed[0].Module)
	assert.Contains(t, report.Failed[0].Output, "No matching distribution")

	assert.Contains(t, runner.calls, "py -m pip install --force-reinstall pandas==2.0.3")
}

func TestInstallMissing_CancelledContext(t *testing.T) {
	inst := NewInstaller(Config{}, &fakeRunner{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inst.InstallMissing(ctx, []string{"pandas"})
	assert.ErrorIs(t, err, context.Canceled)
}
