package services

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
)

// AssetTotal accumulates one asset across every treasury of a run.
type AssetTotal struct {
	AssetID  string          `json:"assetId"`
	Balance  decimal.Decimal `json:"balance"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	Unpriced bool            `json:"unpriced"`
}

// Report collects what a run looked at, for operators.
type Report struct {
	mu         sync.Mutex
	assets     map[string]*AssetTotal
	treasuries map[string][]models.TreasuryAddress
	unpriced   int
}

func NewReport() *Report {
	return &Report{
		assets:     make(map[string]*AssetTotal),
		treasuries: make(map[string][]models.TreasuryAddress),
	}
}

// AddTreasury records a valued treasury of organizationID.
func (r *Report) AddTreasury(organizationID string, v models.TreasuryValuation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.treasuries[organizationID] = append(r.treasuries[organizationID], v.Address)

	for _, h := range v.Holdings {
		if h.Unpriced() {
			r.unpriced++
		}
		total, ok := r.assets[h.AssetID]
		if !ok {
			// First seen price is kept.
			r.assets[h.AssetID] = &AssetTotal{
				AssetID:  h.AssetID,
				Balance:  h.Quantity,
				Price:    h.UnitPrice,
				Value:    h.Value,
				Unpriced: h.Unpriced(),
			}
			continue
		}
		total.Balance = total.Balance.Add(h.Quantity)
		total.Value = total.Value.Add(h.Value)
	}
}

// Assets returns the asset totals, largest value first.
func (r *Report) Assets() []AssetTotal {
	r.mu.Lock()
	defer r.mu.Unlock()

	assets := make([]AssetTotal, 0, len(r.assets))
	for _, a := range r.assets {
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool {
		if c := assets[i].Value.Cmp(assets[j].Value); c != 0 {
			return c > 0
		}
		return assets[i].AssetID < assets[j].AssetID
	})
	return assets
}

// Treasuries returns the treasury addresses recorded for organizationID.
func (r *Report) Treasuries(organizationID string) []models.TreasuryAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TreasuryAddress(nil), r.treasuries[organizationID]...)
}

// UnpricedCount is the number of holdings counted at zero.
func (r *Report) UnpricedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unpriced
}

// LogOrganization writes the treasury addresses recorded for organizationID.
func (r *Report) LogOrganization(organizationID string) {
	addrs := r.Treasuries(organizationID)
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = string(a)
	}
	logger.Info("Organization %s: %d treasuries: %s", organizationID, len(addrs), strings.Join(parts, ", "))
}

// Log writes the asset totals accumulated so far.
func (r *Report) Log() {
	assets := r.Assets()
	logger.Info("Token details for %d assets (%d unpriced holdings):", len(assets), r.UnpricedCount())
	for _, a := range assets {
		logger.Info("Token: %s, Total Balance: %s, Price: %s, Total Value: %s",
			a.AssetID, a.Balance.StringFixed(6), a.Price.StringFixed(2), a.Value.StringFixed(2))
	}
}
