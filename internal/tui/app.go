package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/argosweep/internal/models"
	"github.com/mpataki/argosweep/internal/storage"
)

// History is the read side of the campaign history used by the browser.
type History interface {
	ListCampaigns(limit int) ([]*models.Campaign, error)
	GetCampaign(id int64) (*models.Campaign, error)
	GetTrialsForCampaign(id int64) ([]*models.Trial, error)
	GetEvaluationsForCampaign(id int64) ([]*models.Evaluation, error)
	KillCampaign(id int64) error
	DeleteCampaign(id int64) error
}

type View int

const (
	ViewCampaignList View = iota
	ViewCampaignDetail
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Kill    key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Back, k.Kill, k.Delete, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "view")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Kill:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "kill")),
	Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type App struct {
	history History

	view        View
	campaigns   []*models.Campaign
	selectedIdx int
	selected    *models.Campaign
	trials      []*models.Trial
	evaluations []*models.Evaluation

	detail viewport.Model
	help   help.Model

	width  int
	height int
	err    error
}

func NewApp(history History) *App {
	return &App{
		history: history,
		view:    ViewCampaignList,
		detail:  viewport.New(80, 20),
		help:    help.New(),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadCampaigns, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningCampaigns() bool {
	for _, c := range a.campaigns {
		if c.Status == models.CampaignStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.detail.Width = msg.Width
		a.detail.Height = max(msg.Height-4, 1)
		a.help.Width = msg.Width
		return a, nil

	case campaignsLoadedMsg:
		a.campaigns = msg.campaigns
		a.err = msg.err
		if a.selectedIdx >= len(a.campaigns) {
			a.selectedIdx = max(len(a.campaigns)-1, 0)
		}
		return a, nil

	case tickMsg:
		if a.view == ViewCampaignList && a.hasRunningCampaigns() {
			return a, tea.Batch(a.loadCampaigns, a.tickCmd())
		}
		if a.view == ViewCampaignDetail && a.selected != nil && a.selected.Status == models.CampaignStatusRunning {
			return a, tea.Batch(a.loadCampaignDetail(a.selected.ID), a.tickCmd())
		}
		return a, a.tickCmd()

	case campaignDetailMsg:
		a.err = msg.err
		if msg.err == nil {
			a.selected = msg.campaign
			a.trials = msg.trials
			a.evaluations = msg.evaluations
			a.detail.SetContent(a.renderDetail())
			a.view = ViewCampaignDetail
		}
		return a, nil

	case campaignKilledMsg:
		a.err = msg.err
		return a, a.loadCampaigns

	case campaignDeletedMsg:
		a.err = msg.err
		return a, a.loadCampaigns
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewCampaignList:
		return a.handleListKey(msg)
	case ViewCampaignDetail:
		return a.handleDetailKey(msg)
	}
	return a, nil
}

func (a *App) current() *models.Campaign {
	if a.selectedIdx < 0 || a.selectedIdx >= len(a.campaigns) {
		return nil
	}
	return a.campaigns[a.selectedIdx]
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Up):
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case key.Matches(msg, keys.Down):
		if a.selectedIdx < len(a.campaigns)-1 {
			a.selectedIdx++
		}

	case key.Matches(msg, keys.Enter):
		if c := a.current(); c != nil {
			return a, a.loadCampaignDetail(c.ID)
		}

	case key.Matches(msg, keys.Refresh):
		return a, a.loadCampaigns

	case key.Matches(msg, keys.Kill):
		if c := a.current(); c != nil {
			return a, a.killCampaign(c.ID)
		}

	case key.Matches(msg, keys.Delete):
		c := a.current()
		if c == nil {
			break
		}
		if c.Status == models.CampaignStatusRunning {
			a.err = fmt.Errorf("campaign %d is running; kill it first", c.ID)
			break
		}
		return a, a.deleteCampaign(c.ID)
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return a, tea.Quit

	case key.Matches(msg, keys.Back), msg.String() == "q":
		a.view = ViewCampaignList
		a.selected = nil
		a.trials = nil
		a.evaluations = nil
		return a, a.loadCampaigns

	case key.Matches(msg, keys.Refresh):
		if a.selected != nil {
			return a, a.loadCampaignDetail(a.selected.ID)
		}
	}

	var cmd tea.Cmd
	a.detail, cmd = a.detail.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewCampaignList:
		return a.viewCampaignList()
	case ViewCampaignDetail:
		return a.viewCampaignDetail()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewCampaignList() string {
	s := titleStyle.Render("argosweep") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.campaigns) == 0 {
		s += "No campaigns yet. Run 'argosweep sweep' or 'argosweep evaluate'.\n"
	} else {
		s += "Recent Campaigns\n"
		s += "────────────────\n"

		for i, c := range a.campaigns {
			line := FormatCampaignLine(c)
			switch {
			case i == a.selectedIdx:
				line = selectedStyle.Render("▶ " + line)
			case c.Status != models.CampaignStatusRunning:
				line = "  " + dimStyle.Render(line)
			default:
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + a.help.View(keys)
	return s
}

// FormatCampaignLine renders one row of the campaign list.
func FormatCampaignLine(c *models.Campaign) string {
	return fmt.Sprintf("#%-3d %-8s %s  %-14s  %s",
		c.ID, c.Kind, FormatStatus(string(c.Status)), storage.FormatTimeAgo(c.CreatedAt), truncate(c.Label, 40))
}

func FormatStatus(status string) string {
	switch status {
	case "running":
		return statusRunning.Render("● running ")
	case "complete":
		return statusComplete.Render("✓ complete")
	case "failed":
		return statusFailed.Render("✗ failed  ")
	default:
		return statusPending.Render("○ " + fmt.Sprintf("%-8s", status))
	}
}

func (a *App) viewCampaignDetail() string {
	if a.selected == nil {
		return "No campaign selected"
	}

	header := fmt.Sprintf("Campaign #%d: %s %s", a.selected.ID, a.selected.Kind, a.selected.Label)
	s := titleStyle.Render(header) + "  " + FormatStatus(string(a.selected.Status)) + "\n\n"
	s += a.detail.View() + "\n"
	s += dimStyle.Render(fmt.Sprintf("%3.f%%", a.detail.ScrollPercent()*100)) + "  " +
		dimStyle.Render("[↑/↓] scroll  [r] refresh  [esc] back")
	return s
}

func (a *App) renderDetail() string {
	var b strings.Builder
	c := a.selected

	b.WriteString(labelStyle.Render("Started: ") + storage.FormatTimeAgo(c.CreatedAt) + "\n")
	if c.CompletedAt != nil {
		b.WriteString(labelStyle.Render("Took:    ") + formatDuration(c.CompletedAt.Sub(c.CreatedAt)) + "\n")
	}
	if c.Error != "" {
		b.WriteString(labelStyle.Render("Error:   ") + statusFailed.Render(c.Error) + "\n")
	}

	b.WriteString("\nScores\n──────\n")
	if len(a.evaluations) == 0 {
		b.WriteString("(no evaluations yet)\n")
	}
	for _, e := range a.evaluations {
		name := e.Mission
		if e.Behaviour != "" {
			name += " / " + e.Behaviour
		}
		scores := string(e.Scores)
		if !e.Available {
			scores = dimStyle.Render("no data")
		}
		fmt.Fprintf(&b, "%s  fsm %d  %s\n", name, e.FSMIndex, scores)
		b.WriteString("  " + dimStyle.Render(truncate(e.FSMConfig, 70)) + "\n")
	}

	b.WriteString("\nTrials\n──────\n")
	if len(a.trials) == 0 {
		b.WriteString("(no trials yet)\n")
	}
	for _, t := range a.trials {
		b.WriteString(formatTrialLine(t) + "\n")
	}

	return b.String()
}

func formatTrialLine(t *models.Trial) string {
	status := "○"
	switch t.Status {
	case models.TrialStatusComplete:
		status = statusComplete.Render("✓")
	case models.TrialStatusRunning:
		status = statusRunning.Render("●")
	case models.TrialStatusFailed:
		status = statusFailed.Render("✗")
	}

	line := fmt.Sprintf("%s fsm %-3d seed %-5d %s", t.Mission, t.FSMIndex, t.Seed, status)

	if t.ExitCode != nil {
		if *t.ExitCode == 0 {
			line += "  " + dimStyle.Render("exit:0")
		} else {
			line += "  " + statusFailed.Render(fmt.Sprintf("exit:%d", *t.ExitCode))
		}
	}

	if t.StartedAt != nil && t.CompletedAt != nil {
		line += "  " + dimStyle.Render(formatDuration(t.CompletedAt.Sub(*t.StartedAt)))
	} else if t.StartedAt != nil && t.Status == models.TrialStatusRunning {
		line += "  " + statusRunning.Render(formatDuration(time.Since(*t.StartedAt))+"...")
	}

	return line
}

// Messages

type campaignsLoadedMsg struct {
	campaigns []*models.Campaign
	err       error
}

type campaignDetailMsg struct {
	campaign    *models.Campaign
	trials      []*models.Trial
	evaluations []*models.Evaluation
	err         error
}

type campaignKilledMsg struct {
	id  int64
	err error
}

type campaignDeletedMsg struct {
	id  int64
	err error
}

// Commands

func (a *App) loadCampaigns() tea.Msg {
	campaigns, err := a.history.ListCampaigns(50)
	return campaignsLoadedMsg{campaigns: campaigns, err: err}
}

func (a *App) loadCampaignDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		c, err := a.history.GetCampaign(id)
		if err != nil {
			return campaignDetailMsg{err: err}
		}
		trials, err := a.history.GetTrialsForCampaign(id)
		if err != nil {
			return campaignDetailMsg{err: err}
		}
		evals, err := a.history.GetEvaluationsForCampaign(id)
		return campaignDetailMsg{campaign: c, trials: trials, evaluations: evals, err: err}
	}
}

func (a *App) killCampaign(id int64) tea.Cmd {
	return func() tea.Msg {
		return campaignKilledMsg{id: id, err: a.history.KillCampaign(id)}
	}
}

func (a *App) deleteCampaign(id int64) tea.Cmd {
	return func() tea.Msg {
		return campaignDeletedMsg{id: id, err: a.history.DeleteCampaign(id)}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
