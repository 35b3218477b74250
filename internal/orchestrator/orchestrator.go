package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mpataki/argosweep/internal/models"
	"github.com/mpataki/argosweep/internal/storage"
	"github.com/mpataki/argosweep/internal/workspace"
)

// Launcher runs the simulator once against the workspace's current
// configuration. started is called with the child PID once it is running.
type Launcher interface {
	Launch(ctx context.Context, ws *workspace.Workspace, started func(pid int)) (exitCode int, err error)
}

// ProcessLauncher writes the launcher script and runs it with bash. There is
// no timeout: a hung simulator blocks until ctx is cancelled.
type ProcessLauncher struct{}

func (ProcessLauncher) Launch(ctx context.Context, ws *workspace.Workspace, started func(pid int)) (int, error) {
	if err := ws.WriteLauncher(); err != nil {
		return 0, err
	}

	cmd := ws.Command(ctx)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the process group so argos3 goes down with bash.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	if cmd.Process != nil && started != nil {
		started(cmd.Process.Pid)
	}

	err := cmd.Wait()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return exitCode, ctx.Err()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return exitCode, err
		}
	}

	return exitCode, nil
}

type Orchestrator struct {
	storage  *storage.Storage // nil disables history
	launcher Launcher
	out      io.Writer
}

func New(store *storage.Storage, launcher Launcher, out io.Writer) *Orchestrator {
	if launcher == nil {
		launcher = ProcessLauncher{}
	}
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		storage:  store,
		launcher: launcher,
		out:      out,
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

func (o *Orchestrator) startCampaign(kind models.CampaignKind, label string) (*models.Campaign, error) {
	pid := os.Getpid()
	c := &models.Campaign{
		Kind:   kind,
		Label:  label,
		Status: models.CampaignStatusRunning,
		PID:    &pid,
	}
	if o.storage == nil {
		return c, nil
	}

	id, err := o.storage.CreateCampaign(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	c.ID = id
	return c, nil
}

// finishCampaign records the outcome and passes cause through.
func (o *Orchestrator) finishCampaign(c *models.Campaign, cause error) error {
	now := time.Now()
	c.CompletedAt = &now
	c.Status = models.CampaignStatusComplete
	if cause != nil {
		c.Status = models.CampaignStatusFailed
		c.Error = cause.Error()
	}

	if o.storage != nil {
		if err := o.storage.UpdateCampaign(c); err != nil && cause == nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}
	}
	return cause
}

type trialSpec struct {
	Mission   string
	Behaviour string
	FSMIndex  int
	FSM       string
	Seed      int
}

// runTrial edits the .argos file and runs the simulator once. A simulator
// that fails to start or exits non-zero is recorded and otherwise ignored;
// only configuration errors and cancellation are returned.
func (o *Orchestrator) runTrial(ctx context.Context, c *models.Campaign, ws *workspace.Workspace, spec trialSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ws.Prepare(spec.FSM, spec.Seed); err != nil {
		return err
	}

	now := time.Now()
	trial := &models.Trial{
		CampaignID: c.ID,
		Mission:    spec.Mission,
		Behaviour:  spec.Behaviour,
		FSMIndex:   spec.FSMIndex,
		FSMConfig:  spec.FSM,
		Seed:       spec.Seed,
		Status:     models.TrialStatusRunning,
		StartedAt:  &now,
	}
	if o.storage != nil {
		id, err := o.storage.CreateTrial(trial)
		if err != nil {
			return fmt.Errorf("failed to record trial: %w", err)
		}
		trial.ID = id
	}

	exitCode, err := o.launcher.Launch(ctx, ws, func(pid int) {
		if o.storage == nil {
			return
		}
		if err := o.storage.UpdateTrialPID(trial.ID, pid); err != nil {
			o.printf("    ! failed to record trial: %v\n", err)
		}
	})

	completedAt := time.Now()
	trial.CompletedAt = &completedAt
	trial.ExitCode = &exitCode
	trial.Status = models.TrialStatusComplete
	if err != nil {
		trial.Status = models.TrialStatusFailed
	}
	if o.storage != nil {
		if err := o.storage.UpdateTrial(trial); err != nil {
			o.printf("    ! failed to record trial: %v\n", err)
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.printf("    ! simulator did not run: %v\n", err)
	}
	return nil
}

func (o *Orchestrator) recordEvaluation(c *models.Campaign, e *models.Evaluation) {
	if o.storage == nil {
		return
	}
	e.CampaignID = c.ID
	if _, err := o.storage.CreateEvaluation(e); err != nil {
		o.printf("    ! failed to record evaluation: %v\n", err)
	}
}

// Read methods for the history views

func (o *Orchestrator) ListCampaigns(limit int) ([]*models.Campaign, error) {
	if o.storage == nil {
		return nil, nil
	}
	return o.storage.ListCampaigns(limit)
}

func (o *Orchestrator) GetCampaign(id int64) (*models.Campaign, error) {
	if o.storage == nil {
		return nil, fmt.Errorf("history is disabled")
	}
	return o.storage.GetCampaign(id)
}

func (o *Orchestrator) GetTrialsForCampaign(id int64) ([]*models.Trial, error) {
	if o.storage == nil {
		return nil, nil
	}
	return o.storage.GetTrialsForCampaign(id)
}

func (o *Orchestrator) GetEvaluationsForCampaign(id int64) ([]*models.Evaluation, error) {
	if o.storage == nil {
		return nil, nil
	}
	return o.storage.GetEvaluationsForCampaign(id)
}

// KillCampaign interrupts the driver process of a running campaign. The
// driver cancels its context, which kills the simulator in turn. When the
// driver is gone, or its PID now belongs to another program, the campaign is
// marked failed instead.
func (o *Orchestrator) KillCampaign(id int64) error {
	c, err := o.GetCampaign(id)
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	if c.Status != models.CampaignStatusRunning {
		return fmt.Errorf("campaign %d is not running (%s)", id, c.Status)
	}

	if c.PID != nil && driverAlive(*c.PID) {
		err := syscall.Kill(*c.PID, syscall.SIGINT)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("failed to interrupt campaign %d: %w", id, err)
		}
	}

	// Driver is gone; kill a stray simulator and close out the record.
	running, err := o.storage.GetRunningTrialForCampaign(id)
	if err != nil {
		return fmt.Errorf("failed to get running trial: %w", err)
	}
	now := time.Now()
	if running != nil {
		if running.PID != nil {
			o.killGroup(*running.PID)
		}
		running.Status = models.TrialStatusFailed
		running.CompletedAt = &now
		if err := o.storage.UpdateTrial(running); err != nil {
			o.printf("! failed to record trial: %v\n", err)
		}
	}

	c.Status = models.CampaignStatusFailed
	c.CompletedAt = &now
	c.Error = "killed"
	return o.storage.UpdateCampaign(c)
}

// killGroup kills a simulator's process group. The launcher makes every
// simulator a group leader, so a pid that no longer leads its own group has
// been reused.
func (o *Orchestrator) killGroup(pid int) {
	if pgid, err := syscall.Getpgid(pid); err != nil || pgid != pid {
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		o.printf("! failed to kill simulator %d: %v\n", pid, err)
	}
}

// driverAlive reports whether pid is still a running copy of this program.
// Where /proc is unavailable a live pid is trusted.
func driverAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}

	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	self, err := os.Executable()
	if err != nil {
		return true
	}
	return sameFile(strings.TrimSuffix(exe, " (deleted)"), self)
}

func sameFile(a, b string) bool {
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return a == b
}

// DeleteCampaign removes a finished campaign and its trials. Running
// campaigns must be killed first.
func (o *Orchestrator) DeleteCampaign(id int64) error {
	if o.storage == nil {
		return fmt.Errorf("history is disabled")
	}
	c, err := o.storage.GetCampaign(id)
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	if c.Status == models.CampaignStatusRunning {
		return fmt.Errorf("campaign %d is running; kill it first", id)
	}
	return o.storage.DeleteCampaign(id)
}
