package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/argosweep/internal/missions"
	"github.com/mpataki/argosweep/internal/models"
	"github.com/mpataki/argosweep/internal/scores"
	"github.com/mpataki/argosweep/internal/workspace"
)

type SweepOptions struct {
	Workspace    *workspace.Workspace
	MissionsFile string
	Missions     []string
	Trials       int
	SeedBase     int
}

type SweepResult struct {
	Mission string
	FSMs    []FSMReadout
}

type FSMReadout struct {
	Index   int
	FSM     string
	Readout scores.Readout
}

// Sweep runs every FSM listed under each mission Trials times, seeding trial
// n with SeedBase+n, and reads the score file back once per FSM.
func (o *Orchestrator) Sweep(ctx context.Context, opts SweepOptions) ([]SweepResult, error) {
	if opts.Workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if len(opts.Missions) == 0 {
		return nil, fmt.Errorf("at least one mission is required")
	}

	file, err := missions.LoadSweepFile(opts.MissionsFile)
	if err != nil {
		return nil, err
	}

	c, err := o.startCampaign(models.CampaignKindSweep, strings.Join(opts.Missions, ","))
	if err != nil {
		return nil, err
	}

	results, err := o.sweep(ctx, c, file, opts)
	return results, o.finishCampaign(c, err)
}

func (o *Orchestrator) sweep(ctx context.Context, c *models.Campaign, file *missions.SweepFile, opts SweepOptions) ([]SweepResult, error) {
	var results []SweepResult

	for _, mission := range opts.Missions {
		fsms, err := file.FSMs(mission)
		if err != nil {
			return results, err
		}

		result := SweepResult{Mission: mission}
		for m, fsm := range fsms {
			o.printf("Running simulation for %s, fsm %d...\n", mission, m)

			if err := opts.Workspace.ClearScores(); err != nil {
				return results, err
			}

			for n := 0; n < opts.Trials; n++ {
				err := o.runTrial(ctx, c, opts.Workspace, trialSpec{
					Mission:  mission,
					FSMIndex: m,
					FSM:      fsm,
					Seed:     opts.SeedBase + n,
				})
				if err != nil {
					return results, err
				}
			}

			readout, err := opts.Workspace.ReadScores()
			if err != nil {
				return results, err
			}
			if !readout.Available() {
				o.printf("  no data for fsm %d\n", m)
			}

			result.FSMs = append(result.FSMs, FSMReadout{Index: m, FSM: fsm, Readout: readout})

			data, err := json.Marshal(readout)
			if err != nil {
				o.printf("    ! failed to encode scores: %v\n", err)
				data = []byte("null")
			}
			o.recordEvaluation(c, &models.Evaluation{
				Mission:   mission,
				FSMIndex:  m,
				FSMConfig: fsm,
				Available: readout.Available(),
				Scores:    data,
			})
		}
		results = append(results, result)
	}

	return results, nil
}

// WriteSweepSummary writes {mission: [scores | null, ...]} with one element
// per FSM, null where the score file was missing.
func WriteSweepSummary(path string, results []SweepResult) error {
	summary := make(map[string][]scores.Readout, len(results))
	for _, r := range results {
		list := make([]scores.Readout, 0, len(r.FSMs))
		for _, f := range r.FSMs {
			list = append(list, f.Readout)
		}
		summary[r.Mission] = list
	}

	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode sweep summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
