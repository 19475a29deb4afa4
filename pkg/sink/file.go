package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"

	"github.com/user/gosec-audit/pkg/engine"
)

// WriteError reports that the JSON report could not be persisted. The console
// report has already been emitted when it occurs.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// WriteJSON writes r to path atomically: readers see either the previous report or
// the new one, never a partial document. Concurrent writers to the same path are
// serialised through an advisory lock on path + ".lock".
func WriteJSON(path string, r *engine.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("lock: %w", err)}
	}
	defer func() { _ = lock.Unlock() }()

	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// ReadJSON loads a report previously written by WriteJSON. The summary is
// recomputed from the results.
func ReadJSON(path string) (*engine.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r engine.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	r.Summary = engine.Summarize(r.Results)
	return &r, nil
}
