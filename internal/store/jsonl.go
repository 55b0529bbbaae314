package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"firegrid/pkg/automaton"
)

// Line is one JSONL record. Exactly one field is set: the first line of a
// file is the meta record, the last a result record, everything between a
// snapshot.
type Line struct {
	Meta     *RunMeta            `json:"meta,omitempty"`
	Snapshot *automaton.Snapshot `json:"snapshot,omitempty"`
	Result   *RunResult          `json:"result,omitempty"`
}

// RunResult is the terminal record of a run.
type RunResult struct {
	Status    string          `json:"status"`
	FinalTime int             `json:"final_time_min"`
	Stats     automaton.Stats `json:"stats"`
}

// JSONLStore appends a run to a file, one JSON record per line.
type JSONLStore struct {
	f     *os.File
	enc   *json.Encoder
	begun bool
}

// NewJSONLStore creates (or truncates) the file at path, making parent
// directories as needed.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", path, err)
	}
	return &JSONLStore{f: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLStore) BeginRun(meta RunMeta) error {
	if s.begun {
		return errors.New("store: run already begun")
	}
	s.begun = true
	return s.write(Line{Meta: &meta})
}

func (s *JSONLStore) WriteSnapshot(snap automaton.Snapshot) error {
	if !s.begun {
		return errors.New("store: snapshot before BeginRun")
	}
	return s.write(Line{Snapshot: &snap})
}

func (s *JSONLStore) EndRun(result automaton.Result) error {
	if !s.begun {
		return errors.New("store: result before BeginRun")
	}
	return s.write(Line{Result: &RunResult{
		Status:    result.Status.String(),
		FinalTime: result.FinalTime,
		Stats:     result.Stats,
	}})
}

func (s *JSONLStore) write(l Line) error {
	if err := s.enc.Encode(l); err != nil {
		return fmt.Errorf("store: write %s: %w", s.f.Name(), err)
	}
	return nil
}

func (s *JSONLStore) Close() error {
	return s.f.Close()
}

// ReadJSONL loads a run file back. The result is nil when the file ends
// without a terminal record, which happens when a run was cut short.
func ReadJSONL(path string) (RunMeta, []automaton.Snapshot, *RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunMeta{}, nil, nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		meta      RunMeta
		snapshots []automaton.Snapshot
		result    *RunResult
		sawMeta   bool
	)
	dec := json.NewDecoder(f)
	for {
		var l Line
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return RunMeta{}, nil, nil, fmt.Errorf("store: read %s: %w", path, err)
		}
		switch {
		case l.Meta != nil:
			meta = *l.Meta
			sawMeta = true
		case l.Snapshot != nil:
			snapshots = append(snapshots, *l.Snapshot)
		case l.Result != nil:
			result = l.Result
		}
	}
	if !sawMeta {
		return RunMeta{}, nil, nil, fmt.Errorf("store: %s has no meta record", path)
	}
	return meta, snapshots, result, nil
}
