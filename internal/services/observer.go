package services

import (
	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/models"
)

// Observer receives progress events of a valuation run. Calls are made from
// the goroutine running the valuation.
type Observer interface {
	OrganizationStarted(root models.OrganizationRoot)
	OrganizationCached(root models.OrganizationRoot, v models.OrganizationValuation)
	TreasuriesDiscovered(root models.OrganizationRoot, count int)
	TreasuryValued(root models.OrganizationRoot, done, total int, v models.TreasuryValuation)
	OrganizationDone(root models.OrganizationRoot, total decimal.Decimal)
	OrganizationFailed(root models.OrganizationRoot, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OrganizationStarted(models.OrganizationRoot) {}
func (NopObserver) OrganizationCached(models.OrganizationRoot, models.OrganizationValuation) {}
func (NopObserver) TreasuriesDiscovered(models.OrganizationRoot, int) {}
func (NopObserver) TreasuryValued(models.OrganizationRoot, int, int, models.TreasuryValuation) {}
func (NopObserver) OrganizationDone(models.OrganizationRoot, decimal.Decimal) {}
func (NopObserver) OrganizationFailed(models.OrganizationRoot, error) {}
