package models

import "time"

type CampaignKind string

const (
	CampaignKindSweep    CampaignKind = "sweep"
	CampaignKindEvaluate CampaignKind = "evaluate"
)

type CampaignStatus string

const (
	CampaignStatusPending  CampaignStatus = "pending"
	CampaignStatusRunning  CampaignStatus = "running"
	CampaignStatusComplete CampaignStatus = "complete"
	CampaignStatusFailed   CampaignStatus = "failed"
)

// Campaign is one invocation of the sweep runner or the batch evaluator.
type Campaign struct {
	ID          int64
	Kind        CampaignKind
	Label       string // mission names or results file, for display
	Status      CampaignStatus
	PID         *int // driver process, signalled by kill
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}
