package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"firegrid/internal/store"
)

// writeScenario drops a scenario file into a temp dir and returns its path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunShowsUsageWithoutArguments(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, nil)

	require.NoError(t, err)
	require.Contains(t, out.String(), "Usage:")
}

func TestRunShowsUsageOnHelpFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-h"})

	require.NoError(t, err)
	require.Contains(t, out.String(), "Usage:")
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"--not-a-real-flag"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined")
}

func TestRunRejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-log-level", "loud", "scenario.hcl"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid log-level")
}

func TestRunRejectsInvalidLogFormat(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-log-format", "yaml", "scenario.hcl"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid log-format")
}

func TestRunRejectsNegativePace(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-pace", "-5", "scenario.hcl"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid pace")
}

func TestRunWritesJSONLToCompletion(t *testing.T) {
	t.Parallel()

	outPath := filepath.Join(t.TempDir(), "run.jsonl")
	path := writeScenario(t, fmt.Sprintf(`
name = "quick-timeout"

simulation {
  max_time      = 3
  save_interval = 1
  seed          = 7
}

terrain {
  width     = 9
  height    = 9
  cell_size = 10
}

ignition "center" {
  x      = 40
  y      = 40
  radius = 5
}

output {
  jsonl = %q
}
`, outPath))

	out := &bytes.Buffer{}
	err := run(out, []string{"-scenario", path})
	require.NoError(t, err)

	meta, snaps, result, err := store.ReadJSONL(outPath)
	require.NoError(t, err)

	require.Equal(t, "quick-timeout", meta.Name)
	require.Equal(t, int64(7), meta.Seed)
	require.Equal(t, 9, meta.Width)

	// Initial state plus one snapshot per minute up to the timeout.
	require.Len(t, snaps, 4)
	require.Equal(t, 0, snaps[0].Time)
	require.Equal(t, 3, snaps[3].Time)

	require.NotNil(t, result)
	require.Equal(t, "terminated_timeout", result.Status)
	require.Equal(t, 3, result.FinalTime)
}

func TestRunAppliesSeedAndOutputOverrides(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, `
simulation {
  max_time      = 2
  save_interval = 1
  seed          = 7
}

terrain {
  width     = 9
  height    = 9
  cell_size = 10
}

ignition "center" {
  x      = 40
  y      = 40
  radius = 5
}
`)
	outPath := filepath.Join(t.TempDir(), "override.jsonl")

	out := &bytes.Buffer{}
	err := run(out, []string{"-seed", "99", "-out", outPath, "-pace", "500", path})
	require.NoError(t, err)

	meta, _, result, err := store.ReadJSONL(outPath)
	require.NoError(t, err)
	require.Equal(t, int64(99), meta.Seed)
	require.NotNil(t, result)
	require.Equal(t, "terminated_timeout", result.Status)
}
