package models

import (
	"encoding/json"
	"time"
)

type TrialStatus string

const (
	TrialStatusPending  TrialStatus = "pending"
	TrialStatusRunning  TrialStatus = "running"
	TrialStatusComplete TrialStatus = "complete"
	TrialStatusFailed   TrialStatus = "failed"
)

// Trial is a single simulator invocation.
type Trial struct {
	ID          int64
	CampaignID  int64
	Mission     string
	Behaviour   string
	FSMIndex    int
	FSMConfig   string
	Seed        int
	Status      TrialStatus
	PID         *int
	ExitCode    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Evaluation holds the scores read back for one FSM after its trials ran.
type Evaluation struct {
	ID         int64
	CampaignID int64
	Mission    string
	Behaviour  string
	FSMIndex   int
	FSMConfig  string
	Available  bool            // false when the score file was missing
	Scores     json.RawMessage // JSON array of scores
	CreatedAt  time.Time
}
