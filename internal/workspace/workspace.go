package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mpataki/argosweep/internal/scores"
)

// Workspace names the files shared between the drivers and the simulator.
// They are process-wide: two drivers using the same Workspace concurrently
// will clobber each other.
type Workspace struct {
	ArgosFile    string
	ScoreFile    string
	LauncherPath string
	Binary       string
}

func New(argosFile, scoreFile, launcherPath, binary string) (*Workspace, error) {
	if argosFile == "" {
		return nil, fmt.Errorf("argos file is required")
	}
	if scoreFile == "" {
		return nil, fmt.Errorf("score file is required")
	}
	if launcherPath == "" {
		launcherPath = "./argos.sh"
	}
	if binary == "" {
		binary = "argos3"
	}

	return &Workspace{
		ArgosFile:    argosFile,
		ScoreFile:    scoreFile,
		LauncherPath: launcherPath,
		Binary:       binary,
	}, nil
}

// WithArgosFile returns a copy pointing at a different .argos file.
func (w *Workspace) WithArgosFile(path string) *Workspace {
	c := *w
	c.ArgosFile = path
	return &c
}

// Prepare writes the FSM and seed into the .argos file.
func (w *Workspace) Prepare(fsm string, seed int) error {
	return EditArgos(w.ArgosFile, fsm, seed)
}

// WriteLauncher writes the two-line launcher script and marks it executable.
func (w *Workspace) WriteLauncher() error {
	if dir := filepath.Dir(w.LauncherPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create launcher directory: %w", err)
		}
	}

	content := "#!/bin/bash\n" + fmt.Sprintf("%s -c %s\n", w.Binary, w.ArgosFile)
	if err := os.WriteFile(w.LauncherPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write launcher: %w", err)
	}

	st, err := os.Stat(w.LauncherPath)
	if err != nil {
		return fmt.Errorf("failed to stat launcher: %w", err)
	}
	if err := os.Chmod(w.LauncherPath, st.Mode()|0111); err != nil {
		return fmt.Errorf("failed to mark launcher executable: %w", err)
	}

	return nil
}

// Command builds the simulator invocation. Output is discarded.
func (w *Workspace) Command(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "bash", w.LauncherPath)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

func (w *Workspace) ClearScores() error {
	return scores.Clear(w.ScoreFile)
}

func (w *Workspace) ReadScores() (scores.Readout, error) {
	return scores.ReadFile(w.ScoreFile)
}
