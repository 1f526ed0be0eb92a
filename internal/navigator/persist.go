package navigator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/synth"
)

// stateFiles persists expedition state as one JSON file per catch,
// written to a temp file and renamed so a crash never leaves a torn state.
// An empty dir disables persistence.
type stateFiles struct {
	dir string
}

func newStateFiles(dir string) *stateFiles {
	return &stateFiles{dir: dir}
}

func (s *stateFiles) path(catchID string) string {
	return filepath.Join(s.dir, catchID+".json")
}

func (s *stateFiles) save(catch *model.Catch) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(catch, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, catch.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close state temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(catch.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// saveScenarios writes the catch's scenario set in the plain-text form an
// external test runner reads, next to the state file.
func (s *stateFiles) saveScenarios(catch *model.Catch) error {
	if s.dir == "" || len(catch.Scenarios) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(s.dir, catch.ID+".scenarios.txt")
	return os.WriteFile(path, []byte(synth.Render(catch.Scenarios)), 0o644)
}

// Save persists a catch outside the navigator's own transitions, e.g. when
// a parity evaluation attaches its result after deployment.
func Save(dir string, catch *model.Catch) error {
	return (&stateFiles{dir: dir}).save(catch)
}

// Load reads a persisted expedition state.
func Load(dir, catchID string) (*model.Catch, error) {
	data, err := os.ReadFile(filepath.Join(dir, catchID+".json"))
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var catch model.Catch
	if err := json.Unmarshal(data, &catch); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &catch, nil
}

// List returns the ids of every persisted expedition in the dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}
