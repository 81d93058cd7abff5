package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrganizationValuation is one persisted snapshot of an organization's total.
type OrganizationValuation struct {
	ID             int64           `db:"id" json:"id"`
	OrganizationID string          `db:"organization_id" json:"organizationId"`
	TotalValueUSD  decimal.Decimal `db:"value" json:"totalValueUsd"`
	ComputedAt     time.Time       `db:"calculated_at" json:"lastUpdated"`
}

// FleetValuation is one persisted snapshot of the fleet-wide total.
type FleetValuation struct {
	ID            int64           `db:"id" json:"id"`
	TotalValueUSD decimal.Decimal `db:"value" json:"totalValueUsd"`
	ComputedAt    time.Time       `db:"calculated_at" json:"lastUpdated"`
}
