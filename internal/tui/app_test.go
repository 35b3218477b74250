package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/argosweep/internal/models"
)

type fakeHistory struct {
	campaigns []*models.Campaign
	deleted   []int64
}

func (f *fakeHistory) ListCampaigns(limit int) ([]*models.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeHistory) GetCampaign(id int64) (*models.Campaign, error) {
	for _, c := range f.campaigns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeHistory) GetTrialsForCampaign(id int64) ([]*models.Trial, error) {
	code := 0
	return []*models.Trial{{CampaignID: id, Mission: "cho-hom", Seed: 100, Status: models.TrialStatusComplete, ExitCode: &code}}, nil
}

func (f *fakeHistory) GetEvaluationsForCampaign(id int64) ([]*models.Evaluation, error) {
	return []*models.Evaluation{{CampaignID: id, Mission: "cho-hom", FSMConfig: "--nstates 1", Available: true, Scores: []byte(`[3,2.5]`)}}, nil
}

func (f *fakeHistory) KillCampaign(id int64) error { return nil }

func (f *fakeHistory) DeleteCampaign(id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestApp() (*App, *fakeHistory) {
	h := &fakeHistory{campaigns: []*models.Campaign{
		{ID: 2, Kind: models.CampaignKindEvaluate, Label: "fsm.json", Status: models.CampaignStatusRunning, CreatedAt: time.Now()},
		{ID: 1, Kind: models.CampaignKindSweep, Label: "cho-hom", Status: models.CampaignStatusComplete, CreatedAt: time.Now()},
	}}
	app := NewApp(h)
	app.Update(app.loadCampaigns())
	return app, h
}

func press(app *App, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := app.Update(msg)
	return cmd
}

func TestListNavigationAndDetail(t *testing.T) {
	app, _ := newTestApp()

	if !strings.Contains(app.View(), "cho-hom") {
		t.Fatalf("list view missing campaign:\n%s", app.View())
	}

	press(app, "down")
	press(app, "down")
	if app.selectedIdx != 1 {
		t.Fatalf("selection should stop at the last row, got %d", app.selectedIdx)
	}

	cmd := press(app, "enter")
	if cmd == nil {
		t.Fatal("enter should load the campaign detail")
	}
	app.Update(cmd())
	if app.view != ViewCampaignDetail || app.selected.ID != 1 {
		t.Fatalf("expected detail of campaign 1, got view %v", app.view)
	}
	if !strings.Contains(app.renderDetail(), "[3,2.5]") {
		t.Fatalf("detail missing scores:\n%s", app.renderDetail())
	}

	press(app, "esc")
	if app.view != ViewCampaignList || app.selected != nil {
		t.Fatal("esc should return to the list")
	}
}

func TestDeleteSelectedCampaign(t *testing.T) {
	app, h := newTestApp()

	press(app, "down")
	cmd := press(app, "d")
	if cmd == nil {
		t.Fatal("delete should return a command")
	}
	app.Update(cmd())
	if len(h.deleted) != 1 || h.deleted[0] != 1 {
		t.Fatalf("expected campaign 1 deleted, got %v", h.deleted)
	}
}

func TestDeleteRunningCampaignIsRefused(t *testing.T) {
	app, h := newTestApp()

	if cmd := press(app, "d"); cmd != nil {
		t.Fatal("deleting a running campaign should not issue a command")
	}
	if len(h.deleted) != 0 {
		t.Fatalf("running campaign was deleted: %v", h.deleted)
	}
	if !strings.Contains(app.View(), "kill it first") {
		t.Fatalf("expected refusal in view:\n%s", app.View())
	}
}
