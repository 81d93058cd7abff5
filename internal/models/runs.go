package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusNotFound  RunStatus = "not-found"
)

type RunID string

// Run is a background valuation started by a trigger.
type Run struct {
	ID         RunID            `json:"id"`
	Kind       string           `json:"kind"`
	Status     RunStatus        `json:"status"`
	Total      *decimal.Decimal `json:"totalValueUsd,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// Done reports whether the run has finished, successfully or not.
func (r Run) Done() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
