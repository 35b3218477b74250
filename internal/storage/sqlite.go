package storage

import (
	"database/sql"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mpataki/argosweep/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		kind TEXT NOT NULL,
		label TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		pid INTEGER,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		mission TEXT NOT NULL,
		behaviour TEXT NOT NULL DEFAULT '',
		fsm_index INTEGER NOT NULL,
		fsm_config TEXT NOT NULL,
		seed INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		pid INTEGER,
		exit_code INTEGER,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		mission TEXT NOT NULL,
		behaviour TEXT NOT NULL DEFAULT '',
		fsm_index INTEGER NOT NULL,
		fsm_config TEXT NOT NULL,
		available INTEGER NOT NULL,
		scores TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
	CREATE INDEX IF NOT EXISTS idx_trials_campaign ON trials(campaign_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_campaign ON evaluations(campaign_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateCampaign(c *models.Campaign) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO campaigns (kind, label, status, pid) VALUES (?, ?, ?, ?)`,
		c.Kind, c.Label, c.Status, c.PID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetCampaign(id int64) (*models.Campaign, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, completed_at, kind, label, status, pid, error
		 FROM campaigns WHERE id = ?`, id,
	)
	return scanCampaign(row)
}

func (s *Storage) UpdateCampaign(c *models.Campaign) error {
	_, err := s.db.Exec(
		`UPDATE campaigns SET completed_at = ?, status = ?, error = ? WHERE id = ?`,
		c.CompletedAt, c.Status, c.Error, c.ID,
	)
	return err
}

func (s *Storage) ListCampaigns(limit int) ([]*models.Campaign, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, completed_at, kind, label, status, pid, error
		 FROM campaigns ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var completedAt sql.NullTime
	var errText sql.NullString
	var pid sql.NullInt64

	err := row.Scan(&c.ID, &c.CreatedAt, &completedAt, &c.Kind, &c.Label, &c.Status, &pid, &errText)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if errText.Valid {
		c.Error = errText.String
	}
	if pid.Valid {
		p := int(pid.Int64)
		c.PID = &p
	}

	return &c, nil
}

func (s *Storage) CreateTrial(t *models.Trial) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO trials (campaign_id, mission, behaviour, fsm_index, fsm_config, seed, status, pid, exit_code, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.CampaignID, t.Mission, t.Behaviour, t.FSMIndex, t.FSMConfig, t.Seed,
		t.Status, t.PID, t.ExitCode, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) UpdateTrialPID(trialID int64, pid int) error {
	_, err := s.db.Exec(`UPDATE trials SET pid = ? WHERE id = ?`, pid, trialID)
	return err
}

func (s *Storage) UpdateTrial(t *models.Trial) error {
	_, err := s.db.Exec(
		`UPDATE trials SET status = ?, exit_code = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		t.Status, t.ExitCode, t.StartedAt, t.CompletedAt, t.ID,
	)
	return err
}

// GetRunningTrialForCampaign returns the trial currently marked running, or
// nil if there is none.
func (s *Storage) GetRunningTrialForCampaign(campaignID int64) (*models.Trial, error) {
	trials, err := s.GetTrialsForCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	for _, t := range trials {
		if t.Status == models.TrialStatusRunning {
			return t, nil
		}
	}
	return nil, nil
}

func (s *Storage) GetTrialsForCampaign(campaignID int64) ([]*models.Trial, error) {
	rows, err := s.db.Query(
		`SELECT id, campaign_id, mission, behaviour, fsm_index, fsm_config, seed, status, pid, exit_code, started_at, completed_at
		 FROM trials WHERE campaign_id = ? ORDER BY id`, campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trials []*models.Trial
	for rows.Next() {
		var t models.Trial
		var pid, exitCode sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&t.ID, &t.CampaignID, &t.Mission, &t.Behaviour, &t.FSMIndex, &t.FSMConfig,
			&t.Seed, &t.Status, &pid, &exitCode, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		if pid.Valid {
			p := int(pid.Int64)
			t.PID = &p
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			t.ExitCode = &code
		}
		if startedAt.Valid {
			t.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}

		trials = append(trials, &t)
	}

	return trials, rows.Err()
}

func (s *Storage) CreateEvaluation(e *models.Evaluation) (int64, error) {
	scores := string(e.Scores)
	if scores == "" {
		scores = "[]"
	}
	result, err := s.db.Exec(
		`INSERT INTO evaluations (campaign_id, mission, behaviour, fsm_index, fsm_config, available, scores)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CampaignID, e.Mission, e.Behaviour, e.FSMIndex, e.FSMConfig, e.Available, scores,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetEvaluationsForCampaign(campaignID int64) ([]*models.Evaluation, error) {
	rows, err := s.db.Query(
		`SELECT id, campaign_id, created_at, mission, behaviour, fsm_index, fsm_config, available, scores
		 FROM evaluations WHERE campaign_id = ? ORDER BY id`, campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []*models.Evaluation
	for rows.Next() {
		var e models.Evaluation
		var scores string

		err := rows.Scan(
			&e.ID, &e.CampaignID, &e.CreatedAt, &e.Mission, &e.Behaviour,
			&e.FSMIndex, &e.FSMConfig, &e.Available, &scores,
		)
		if err != nil {
			return nil, err
		}
		e.Scores = []byte(scores)

		evals = append(evals, &e)
	}

	return evals, rows.Err()
}

func (s *Storage) DeleteCampaign(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM evaluations WHERE campaign_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM trials WHERE campaign_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM campaigns WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// FormatTimeAgo renders t relative to now for list output.
func FormatTimeAgo(t time.Time) string {
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}
