package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/internal/common"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("kousskous", flag.ContinueOnError)
	set.String("output-dir", "", "")
	set.String("log-level", "", "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Name: "kousskous"}, set, nil)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevDefault := logOutput, slog.Default()
	logOutput = &buf
	t.Cleanup(func() {
		logOutput = prevOut
		slog.SetDefault(prevDefault)
	})
	return &buf
}

func TestLogsGoToStderrByDefault(t *testing.T) {
	assert.Equal(t, os.Stderr, logOutput)
}

func TestSetup_LoggerWritesToLogOutput(t *testing.T) {
	buf := captureLogs(t)

	_, logger := setup(newTestContext(t, "--log-level", "debug"))
	logger.Debug("cli.setup.test", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"cli.setup.test"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestSetup_OutputDirOverride(t *testing.T) {
	captureLogs(t)
	t.Setenv("PROGRESS_FILE", "")
	dir := t.TempDir()

	t.Run("tracking follows the output dir when unset", func(t *testing.T) {
		t.Setenv("TRACKING_DB", "restored after the test")
		require.NoError(t, os.Unsetenv("TRACKING_DB"))

		cfg, _ := setup(newTestContext(t, "--output-dir", dir))
		assert.Equal(t, dir, cfg.Paths.OutputDir)
		assert.Equal(t, filepath.Join(dir, "progress.json"), cfg.Paths.ProgressFile)
		assert.Equal(t, filepath.Join(dir, "tracking.db"), cfg.Tracking.DSN)
	})

	t.Run("empty tracking db stays disabled", func(t *testing.T) {
		t.Setenv("TRACKING_DB", "")

		cfg, _ := setup(newTestContext(t, "--output-dir", dir))
		assert.Equal(t, "", cfg.Tracking.DSN)
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"persist", fmt.Errorf("extraction stopped: %w", common.PersistError("write progress file", errors.New("disk full"))), exitFatal},
		{"config", common.NewAppError(common.CodeConfig, "missing key", common.ErrConfig), exitFatal},
		{"cancelled", fmt.Errorf("extraction stopped: %w", context.Canceled), exitFailure},
		{"input", common.NewAppError(common.CodeInput, "read dataset", os.ErrNotExist), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
