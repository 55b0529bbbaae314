package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firegrid/pkg/automaton"
)

func sampleMeta() RunMeta {
	return RunMeta{
		Name:      "unit",
		Seed:      7,
		Width:     4,
		Height:    3,
		CellSize:  10,
		TimeStep:  1,
		StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleSnapshot(minute int) automaton.Snapshot {
	return automaton.Snapshot{
		Time: minute,
		Stats: automaton.Stats{
			Surface:    automaton.LayerCounts{Unburned: 10, Burning: 2},
			BurnedArea: 200,
		},
		Cells: []byte{0, 1, 2, 3, 0, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "unit.jsonl")

	s, err := NewJSONLStore(path)
	require.NoError(t, err)

	meta := sampleMeta()
	require.NoError(t, s.BeginRun(meta))
	require.NoError(t, s.WriteSnapshot(sampleSnapshot(0)))
	require.NoError(t, s.WriteSnapshot(sampleSnapshot(60)))
	require.NoError(t, s.EndRun(automaton.Result{
		Status:    automaton.StatusTerminatedNaturally,
		FinalTime: 90,
		Stats:     automaton.Stats{BurnedArea: 500},
	}))
	require.NoError(t, s.Close())

	gotMeta, snaps, result, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Equal(t, meta, gotMeta)
	require.Len(t, snaps, 2)
	require.Equal(t, sampleSnapshot(0), snaps[0])
	require.Equal(t, 60, snaps[1].Time)
	require.NotNil(t, result)
	require.Equal(t, "terminated_naturally", result.Status)
	require.Equal(t, 90, result.FinalTime)
	require.Equal(t, 500.0, result.Stats.BurnedArea)
}

func TestJSONLIsOneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.jsonl")

	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.BeginRun(sampleMeta()))
	require.NoError(t, s.WriteSnapshot(sampleSnapshot(0)))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"meta"`)
	require.Contains(t, lines[1], `"snapshot"`)
}

func TestJSONLOrderEnforced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.jsonl")

	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.Error(t, s.WriteSnapshot(sampleSnapshot(0)))
	require.Error(t, s.EndRun(automaton.Result{}))
	require.NoError(t, s.BeginRun(sampleMeta()))
	require.Error(t, s.BeginRun(sampleMeta()))
}

func TestReadJSONLWithoutResult(t *testing.T) {
	// A run cut short leaves a file with no terminal record.
	path := filepath.Join(t.TempDir(), "unit.jsonl")

	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.BeginRun(sampleMeta()))
	require.NoError(t, s.WriteSnapshot(sampleSnapshot(0)))
	require.NoError(t, s.Close())

	_, snaps, result, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Nil(t, result)
}

func TestReadJSONLRejectsMissingMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"snapshot\":{\"time\":0}}\n"), 0o644))

	_, _, _, err := ReadJSONL(path)
	require.Error(t, err)
	require.ErrorContains(t, err, "no meta record")
}
