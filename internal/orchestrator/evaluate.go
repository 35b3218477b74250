package orchestrator

import (
	"context"
	"fmt"

	"github.com/mpataki/argosweep/internal/missions"
	"github.com/mpataki/argosweep/internal/models"
	"github.com/mpataki/argosweep/internal/workspace"
)

// ScenarioResolver maps a mission name to its .argos file.
type ScenarioResolver interface {
	Resolve(mission string) (string, error)
}

type EvaluateOptions struct {
	// Workspace supplies the score file, launcher and binary. Its ArgosFile
	// is replaced per mission.
	Workspace    *workspace.Workspace
	ResultsFile  string
	Resolver     ScenarioResolver
	Runs         int
	SeedBase     int
	SkipComplete bool
}

type EvaluateSummary struct {
	Evaluated int
	Skipped   int
}

// Evaluate runs every FSM entry of the results file and writes its scores
// back into the entry. The file is replaced on disk after each entry, so an
// interrupted evaluation leaves every finished entry in place.
func (o *Orchestrator) Evaluate(ctx context.Context, opts EvaluateOptions) (EvaluateSummary, error) {
	var summary EvaluateSummary
	if opts.Workspace == nil || opts.Resolver == nil {
		return summary, fmt.Errorf("workspace and resolver are required")
	}

	doc, err := missions.LoadResults(opts.ResultsFile)
	if err != nil {
		return summary, err
	}

	c, err := o.startCampaign(models.CampaignKindEvaluate, opts.ResultsFile)
	if err != nil {
		return summary, err
	}

	err = o.evaluate(ctx, c, doc, opts, &summary)
	if err == nil {
		if err = doc.Save(opts.ResultsFile); err == nil {
			o.printf("\n✔ All experiments completed. Results saved to %s\n", opts.ResultsFile)
		}
	}
	return summary, o.finishCampaign(c, err)
}

func (o *Orchestrator) evaluate(ctx context.Context, c *models.Campaign, doc *missions.Results, opts EvaluateOptions, summary *EvaluateSummary) error {
	for _, mission := range doc.Missions {
		o.printf("\n=== Mission: %s ===\n", mission.Name)

		argosFile, err := opts.Resolver.Resolve(mission.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve scenario for %q: %w", mission.Name, err)
		}
		ws := opts.Workspace.WithArgosFile(argosFile)

		for _, behaviour := range mission.Behaviours {
			o.printf("\n→ Behaviour: %s\n", behaviour.Name)

			for idx, entry := range behaviour.Entries {
				if opts.SkipComplete && entry.Complete(opts.Runs) {
					o.printf("  → FSM #%d (already complete)\n", idx)
					summary.Skipped++
					continue
				}

				o.printf("  → FSM #%d\n", idx)
				if err := o.evaluateEntry(ctx, c, ws, mission.Name, behaviour.Name, idx, entry, opts); err != nil {
					return err
				}

				if err := doc.Save(opts.ResultsFile); err != nil {
					return err
				}
				summary.Evaluated++
				o.printf("    ✓ Saved results for one FSM\n")
			}
		}
	}
	return nil
}

func (o *Orchestrator) evaluateEntry(ctx context.Context, c *models.Campaign, ws *workspace.Workspace, mission, behaviour string, idx int, entry *missions.Entry, opts EvaluateOptions) error {
	if err := ws.ClearScores(); err != nil {
		return err
	}

	for seed := 0; seed < opts.Runs; seed++ {
		err := o.runTrial(ctx, c, ws, trialSpec{
			Mission:   mission,
			Behaviour: behaviour,
			FSMIndex:  idx,
			FSM:       entry.FSM,
			Seed:      opts.SeedBase + seed,
		})
		if err != nil {
			return err
		}
	}

	readout, err := ws.ReadScores()
	if err != nil {
		return err
	}
	if err := entry.SetScores(readout.List()); err != nil {
		return err
	}

	o.recordEvaluation(c, &models.Evaluation{
		Mission:   mission,
		Behaviour: behaviour,
		FSMIndex:  idx,
		FSMConfig: entry.FSM,
		Available: readout.Available(),
		Scores:    entry.Scores,
	})
	return nil
}
