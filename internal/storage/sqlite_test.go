package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/argosweep/internal/models"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCampaignLifecycle(t *testing.T) {
	s := openTestStorage(t)

	pid := 4242
	c := &models.Campaign{
		Kind:   models.CampaignKindEvaluate,
		Label:  "fsm.json",
		Status: models.CampaignStatusRunning,
		PID:    &pid,
	}
	id, err := s.CreateCampaign(c)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	c.ID = id

	now := time.Now()
	c.Status = models.CampaignStatusComplete
	c.CompletedAt = &now
	if err := s.UpdateCampaign(c); err != nil {
		t.Fatalf("update campaign: %v", err)
	}

	got, err := s.GetCampaign(id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if got.Status != models.CampaignStatusComplete || got.CompletedAt == nil {
		t.Fatalf("unexpected campaign: %+v", got)
	}
	if got.PID == nil || *got.PID != pid {
		t.Fatalf("pid not stored: %v", got.PID)
	}

	list, err := s.ListCampaigns(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("unexpected list: %v", list)
	}
}

func TestTrialsAndEvaluations(t *testing.T) {
	s := openTestStorage(t)

	campaignID, err := s.CreateCampaign(&models.Campaign{
		Kind:   models.CampaignKindSweep,
		Label:  "cho-hom",
		Status: models.CampaignStatusRunning,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	started := time.Now()
	trial := &models.Trial{
		CampaignID: campaignID,
		Mission:    "cho-hom",
		FSMIndex:   0,
		FSMConfig:  "--nstates 1",
		Seed:       100,
		Status:     models.TrialStatusRunning,
		StartedAt:  &started,
	}
	trialID, err := s.CreateTrial(trial)
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}
	trial.ID = trialID

	if err := s.UpdateTrialPID(trialID, 99); err != nil {
		t.Fatalf("update pid: %v", err)
	}

	running, err := s.GetRunningTrialForCampaign(campaignID)
	if err != nil || running == nil || running.ID != trialID {
		t.Fatalf("expected running trial, got %v, %v", running, err)
	}

	code := 0
	completed := time.Now()
	trial.Status = models.TrialStatusComplete
	trial.ExitCode = &code
	trial.CompletedAt = &completed
	if err := s.UpdateTrial(trial); err != nil {
		t.Fatalf("update trial: %v", err)
	}

	trials, err := s.GetTrialsForCampaign(campaignID)
	if err != nil {
		t.Fatalf("get trials: %v", err)
	}
	if len(trials) != 1 || trials[0].PID == nil || *trials[0].PID != 99 || trials[0].ExitCode == nil {
		t.Fatalf("unexpected trials: %+v", trials[0])
	}

	if _, err := s.CreateEvaluation(&models.Evaluation{
		CampaignID: campaignID,
		Mission:    "cho-hom",
		FSMConfig:  "--nstates 1",
		Available:  true,
		Scores:     []byte(`[3,2.5,"foo"]`),
	}); err != nil {
		t.Fatalf("create evaluation: %v", err)
	}
	evals, err := s.GetEvaluationsForCampaign(campaignID)
	if err != nil {
		t.Fatalf("get evaluations: %v", err)
	}
	if len(evals) != 1 || !evals[0].Available || string(evals[0].Scores) != `[3,2.5,"foo"]` {
		t.Fatalf("unexpected evaluation: %+v", evals[0])
	}

	if err := s.DeleteCampaign(campaignID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCampaign(campaignID); err == nil {
		t.Fatal("campaign still present after delete")
	}
	trials, _ = s.GetTrialsForCampaign(campaignID)
	if len(trials) != 0 {
		t.Fatal("trials still present after delete")
	}
}
