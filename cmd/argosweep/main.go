package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/argosweep/internal/config"
	"github.com/mpataki/argosweep/internal/extract"
	sweepLua "github.com/mpataki/argosweep/internal/lua"
	"github.com/mpataki/argosweep/internal/missions"
	"github.com/mpataki/argosweep/internal/orchestrator"
	"github.com/mpataki/argosweep/internal/report"
	"github.com/mpataki/argosweep/internal/storage"
	"github.com/mpataki/argosweep/internal/tui"
	"github.com/mpataki/argosweep/internal/workspace"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "argosweep",
		Short: "Batch drivers for the ARGoS simulator",
		Long:  "argosweep runs FSM configurations through ARGoS, collects their scores and extracts tuned configurations from logs.",
		RunE:  runTUI,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default $ARGOSWEEP_CONFIG or <data dir>/config.yaml)")
	rootCmd.PersistentFlags().Bool("no-history", false, "Do not record campaigns in the history database")

	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newEvaluateCommand())
	rootCmd.AddCommand(newExtractCommand())
	rootCmd.AddCommand(newSummaryCommand())
	rootCmd.AddCommand(newPlotCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newDeleteCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStorage opens the history database unless --no-history is set, in
// which case it returns nil.
func openStorage(cmd *cobra.Command, cfg *config.Config) (*storage.Storage, error) {
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		return nil, nil
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// openHistory is openStorage for commands that only make sense with history.
func openHistory(cmd *cobra.Command) (*storage.Storage, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func closeStorage(store *storage.Storage) {
	if store != nil {
		store.Close()
	}
}

func stringFlag(cmd *cobra.Command, name string, target *string) {
	if cmd.Flags().Changed(name) {
		*target, _ = cmd.Flags().GetString(name)
	}
}

func intFlag(cmd *cobra.Command, name string, target *int) {
	if cmd.Flags().Changed(name) {
		*target, _ = cmd.Flags().GetInt(name)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := orchestrator.New(store, nil, nil)

	app := tui.NewApp(orch)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func newSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep <mission> [mission...]",
		Short: "Run every FSM listed under each mission and read back its scores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			sc := cfg.Sweep
			stringFlag(cmd, "argos", &sc.ArgosFile)
			stringFlag(cmd, "score", &sc.ScoreFile)
			stringFlag(cmd, "missions", &sc.MissionsFile)
			intFlag(cmd, "trials", &sc.Trials)
			intFlag(cmd, "seed-base", &sc.SeedBase)
			out, _ := cmd.Flags().GetString("out")

			ws, err := workspace.New(sc.ArgosFile, sc.ScoreFile, cfg.Simulator.Launcher, cfg.Simulator.Binary)
			if err != nil {
				return err
			}

			store, err := openStorage(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			orch := orchestrator.New(store, nil, cmd.OutOrStdout())
			results, err := orch.Sweep(cmd.Context(), orchestrator.SweepOptions{
				Workspace:    ws,
				MissionsFile: sc.MissionsFile,
				Missions:     args,
				Trials:       sc.Trials,
				SeedBase:     sc.SeedBase,
			})
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			for _, r := range results {
				for _, f := range r.FSMs {
					if f.Readout.Available() {
						fmt.Fprintf(cmd.OutOrStdout(), "%s fsm %d: %v\n", r.Mission, f.Index, f.Readout.List())
					}
				}
			}

			if out != "" {
				if err := orchestrator.WriteSweepSummary(out, results); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", out)
			}
			return nil
		},
	}

	cmd.Flags().String("argos", "", "Simulator configuration file to edit")
	cmd.Flags().String("score", "", "Score file written by the simulator")
	cmd.Flags().String("missions", "", "Missions document listing FSMs per mission")
	cmd.Flags().IntP("trials", "n", 1, "Simulator runs per FSM")
	cmd.Flags().Int("seed-base", 100, "Seed of the first trial")
	cmd.Flags().StringP("out", "o", "", "Write a JSON summary of the scores to this file")
	return cmd
}

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every FSM of a results document and store its scores in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ec := cfg.Evaluate
			stringFlag(cmd, "results", &ec.ResultsFile)
			stringFlag(cmd, "score", &ec.ScoreFile)
			stringFlag(cmd, "scenario-template", &ec.ScenarioTemplate)
			stringFlag(cmd, "scenario-script", &ec.ScenarioScript)
			intFlag(cmd, "runs", &ec.Runs)
			intFlag(cmd, "seed-base", &ec.SeedBase)
			skip, _ := cmd.Flags().GetBool("skip-complete")

			if ec.ScenarioTemplate == "" && ec.ScenarioScript == "" {
				return fmt.Errorf("either a scenario template or a scenario script is required")
			}

			var resolver orchestrator.ScenarioResolver = sweepLua.TemplateResolver{Template: ec.ScenarioTemplate}
			if ec.ScenarioScript != "" {
				if !sweepLua.IsLuaScript(ec.ScenarioScript) {
					return fmt.Errorf("not a Lua script: %s", ec.ScenarioScript)
				}
				sr, err := sweepLua.NewScriptResolver(ec.ScenarioScript, sweepLua.TemplateResolver{Template: ec.ScenarioTemplate})
				if err != nil {
					return err
				}
				defer sr.Close()
				resolver = sr
			}

			// The .argos file is swapped in per mission.
			placeholder := ec.ScenarioTemplate
			if placeholder == "" {
				placeholder = ec.ScenarioScript
			}
			ws, err := workspace.New(placeholder, ec.ScoreFile, cfg.Simulator.Launcher, cfg.Simulator.Binary)
			if err != nil {
				return err
			}

			store, err := openStorage(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			orch := orchestrator.New(store, nil, cmd.OutOrStdout())
			summary, err := orch.Evaluate(cmd.Context(), orchestrator.EvaluateOptions{
				Workspace:    ws,
				ResultsFile:  ec.ResultsFile,
				Resolver:     resolver,
				Runs:         ec.Runs,
				SeedBase:     ec.SeedBase,
				SkipComplete: skip,
			})
			if err != nil {
				return fmt.Errorf("evaluation failed after %d FSMs: %w", summary.Evaluated, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %d FSMs, skipped %d\n", summary.Evaluated, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().String("results", "", "Results document to evaluate and update")
	cmd.Flags().String("score", "", "Score file written by the simulator")
	cmd.Flags().String("scenario-template", "", "Scenario path template with {number} and {mission}")
	cmd.Flags().String("scenario-script", "", "Lua script defining scenario(mission)")
	cmd.Flags().IntP("runs", "n", 10, "Simulator runs per FSM")
	cmd.Flags().Int("seed-base", 100, "Seed of the first run")
	cmd.Flags().Bool("skip-complete", false, "Leave entries that already hold all their scores")
	return cmd
}

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Collect the best FSM configuration from each tuning log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			xc := cfg.Extract
			stringFlag(cmd, "dir", &xc.LogDir)
			stringFlag(cmd, "mission", &xc.MissionName)
			intFlag(cmd, "first", &xc.First)
			intFlag(cmd, "last", &xc.Last)
			stringFlag(cmd, "code-format", &xc.CodeFormat)
			stringFlag(cmd, "marker", &xc.Marker)
			stringFlag(cmd, "pattern", &xc.LinePattern)
			stringFlag(cmd, "output", &xc.Output)
			cfg.Extract = xc

			e, err := extract.New(extract.Options{
				LogDir:      xc.LogDir,
				MissionName: xc.MissionName,
				First:       xc.First,
				Last:        xc.Last,
				CodeFormat:  xc.CodeFormat,
				Marker:      xc.Marker,
				LinePattern: xc.LinePattern,
			}, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			doc, err := e.Run()
			if err != nil {
				return err
			}

			output := cfg.ExtractOutput()
			if err := doc.Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d mission codes to %s\n", len(doc.Missions), output)
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Directory holding the *.stdout logs")
	cmd.Flags().String("mission", "", "Mission name prefixed to each code")
	cmd.Flags().Int("first", 1, "First mission index")
	cmd.Flags().Int("last", 6, "Last mission index")
	cmd.Flags().String("code-format", "", "Mission code format, e.g. %dg1s")
	cmd.Flags().String("marker", "", "Line prefix that precedes the best configuration")
	cmd.Flags().String("pattern", "", "Regexp for the configuration line; group 1 is kept")
	cmd.Flags().StringP("output", "o", "", "Output file (default fsm/<mission>_fsm.json)")
	return cmd
}

func newSummaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <results.json>",
		Short: "Print score statistics for every FSM of a results document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := missions.LoadResults(args[0])
			if err != nil {
				return err
			}

			summary, err := report.Summarize(doc)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return report.WriteSummary(cmd.OutOrStdout(), summary)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := report.WriteSummary(f, summary); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringP("out", "o", "", "Write the summary to this file instead of stdout")
	return cmd
}

func newPlotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot <results.json>",
		Short: "Draw a box plot of the scores for every mission and behaviour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			doc, err := missions.LoadResults(args[0])
			if err != nil {
				return err
			}

			opts := report.PlotOptions{Runs: cfg.Evaluate.Runs}
			opts.Dir, _ = cmd.Flags().GetString("dir")
			intFlag(cmd, "runs", &opts.Runs)
			if cmd.Flags().Changed("ymin") {
				v, _ := cmd.Flags().GetFloat64("ymin")
				opts.YMin = &v
			}
			if cmd.Flags().Changed("ymax") {
				v, _ := cmd.Flags().GetFloat64("ymax")
				opts.YMax = &v
			}

			paths, err := report.Plot(doc, opts)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "plots", "Output directory")
	cmd.Flags().Int("runs", 10, "Runs per FSM, shown on the score axis")
	cmd.Flags().Float64("ymin", 0, "Lower bound of the score axis")
	cmd.Flags().Float64("ymax", 0, "Upper bound of the score axis")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			campaigns, err := store.ListCampaigns(20)
			if err != nil {
				return err
			}

			if len(campaigns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No campaigns found.")
				return nil
			}

			for _, c := range campaigns {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s [%s] %s  %s\n",
					c.ID, c.Kind, c.Status, storage.FormatTimeAgo(c.CreatedAt), truncate(c.Label, 50))
			}
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <campaign-id>",
		Short: "Show a campaign with its trials and scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign ID: %w", err)
			}

			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			c, err := store.GetCampaign(id)
			if err != nil {
				return fmt.Errorf("failed to get campaign: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Campaign #%d: %s %s\n", c.ID, c.Kind, c.Label)
			fmt.Fprintf(w, "Status: %s\n", c.Status)
			fmt.Fprintf(w, "Started: %s\n", storage.FormatTimeAgo(c.CreatedAt))
			if c.Error != "" {
				fmt.Fprintf(w, "Error: %s\n", c.Error)
			}

			evals, err := store.GetEvaluationsForCampaign(id)
			if err != nil {
				return err
			}
			if len(evals) > 0 {
				fmt.Fprintln(w, "\nScores:")
				for _, e := range evals {
					name := e.Mission
					if e.Behaviour != "" {
						name += " / " + e.Behaviour
					}
					scores := string(e.Scores)
					if !e.Available {
						scores = "no data"
					}
					fmt.Fprintf(w, "  %s fsm %d: %s\n", name, e.FSMIndex, scores)
				}
			}

			trials, err := store.GetTrialsForCampaign(id)
			if err != nil {
				return err
			}
			if len(trials) > 0 {
				fmt.Fprintln(w, "\nTrials:")
				for _, t := range trials {
					status := string(t.Status)
					if t.ExitCode != nil {
						status += fmt.Sprintf(" (exit %d)", *t.ExitCode)
					}
					fmt.Fprintf(w, "  %s fsm %d seed %d [%s]\n", t.Mission, t.FSMIndex, t.Seed, status)
				}
			}

			return nil
		},
	}
}

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <campaign-id>",
		Short: "Interrupt a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign ID: %w", err)
			}

			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			orch := orchestrator.New(store, nil, cmd.ErrOrStderr())
			if err := orch.KillCampaign(id); err != nil {
				return fmt.Errorf("failed to kill campaign: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Killed campaign #%d\n", id)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <campaign-id>",
		Short: "Delete a campaign from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign ID: %w", err)
			}

			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			orch := orchestrator.New(store, nil, cmd.ErrOrStderr())
			if err := orch.DeleteCampaign(id); err != nil {
				return fmt.Errorf("failed to delete campaign: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted campaign #%d\n", id)
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
