// Package store persists simulation runs: metadata when a run starts, a
// snapshot stream while it progresses, and the final result when it ends.
// Two backends exist, an append-only JSONL file and Postgres.
package store

import (
	"time"

	"firegrid/pkg/automaton"
)

// RunMeta identifies a run and carries what a reader needs to interpret its
// snapshots.
type RunMeta struct {
	Name      string    `json:"name"`
	Seed      int64     `json:"seed"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CellSize  float64   `json:"cell_size_m"`
	TimeStep  int       `json:"time_step_min"`
	StartedAt time.Time `json:"started_at"`
}

// MetaFor builds the metadata for a named run.
func MetaFor(name string, cfg automaton.Config) RunMeta {
	return RunMeta{
		Name:      name,
		Seed:      cfg.Seed,
		Width:     cfg.Terrain.Width,
		Height:    cfg.Terrain.Height,
		CellSize:  cfg.Terrain.CellSize,
		TimeStep:  cfg.TimeStep,
		StartedAt: time.Now().UTC(),
	}
}

// Store receives one run in order: BeginRun once, WriteSnapshot per recorded
// snapshot, EndRun once, then Close.
type Store interface {
	BeginRun(meta RunMeta) error
	WriteSnapshot(snap automaton.Snapshot) error
	EndRun(result automaton.Result) error
	Close() error
}
