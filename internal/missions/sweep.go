package missions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrMissionNotFound = errors.New("mission not found")

// SweepFile is the sweep runner's input:
//
//	{"missions": [{"cho-6s": ["--nstates 1 ...", ...]}, ...]}
type SweepFile struct {
	Missions []map[string][]string `json:"missions"`
}

func LoadSweepFile(path string) (*SweepFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read missions file: %w", err)
	}

	var f SweepFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse missions file %s: %w", path, err)
	}
	return &f, nil
}

// FSMs returns the FSM strings listed under mission in the first group that
// defines it.
func (f *SweepFile) FSMs(mission string) ([]string, error) {
	for _, group := range f.Missions {
		if fsms, ok := group[mission]; ok {
			return fsms, nil
		}
	}
	return nil, fmt.Errorf("mission %q: %w", mission, ErrMissionNotFound)
}

// Save writes the file with four-space indentation. Empty FSM lists are
// written as [] rather than null.
func (f *SweepFile) Save(path string) error {
	for _, group := range f.Missions {
		for name, fsms := range group {
			if fsms == nil {
				group[name] = []string{}
			}
		}
	}
	if f.Missions == nil {
		f.Missions = []map[string][]string{}
	}

	compact, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode missions file: %w", err)
	}
	data, err := indentJSON(compact)
	if err != nil {
		return fmt.Errorf("failed to encode missions file: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write missions file %s: %w", path, err)
	}
	return nil
}
