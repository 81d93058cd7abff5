package models

import "github.com/shopspring/decimal"

const (
	// SOLMint is the wrapped SOL mint, used as the price id of native balances.
	SOLMint = "So11111111111111111111111111111111111111112"
	// TokenProgramID is the SPL token program owning fungible token accounts.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	// LamportsDecimals is the fixed unit scale of native balances (1e9).
	LamportsDecimals = 9
)

// TreasuryAddress is the account holding a governance's native and token assets.
type TreasuryAddress string

// Realm is an organizational unit registered under an organization root.
type Realm struct {
	Address   string
	ProgramID string
}

// TokenHolding is a fungible token balance as read from chain, in display units.
type TokenHolding struct {
	Account string
	Mint    string
	Amount  decimal.Decimal
}

// PriceStatus tells a genuine zero price apart from a price that could not be resolved.
type PriceStatus string

const (
	PriceOK      PriceStatus = "ok"
	PriceMissing PriceStatus = "missing"
	PriceFailed  PriceStatus = "failed"
)

// HoldingValue is a single priced holding of a treasury.
type HoldingValue struct {
	AssetID     string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Value       decimal.Decimal
	PriceStatus PriceStatus
}

// Unpriced reports whether the holding was counted at zero for lack of a price.
func (h HoldingValue) Unpriced() bool {
	return h.PriceStatus != PriceOK
}

// TreasuryValuation is the summed value of one treasury.
type TreasuryValuation struct {
	Address  TreasuryAddress
	Holdings []HoldingValue
	Total    decimal.Decimal
}

// Add appends a holding and accumulates its value into Total.
func (t *TreasuryValuation) Add(h HoldingValue) {
	t.Holdings = append(t.Holdings, h)
	t.Total = t.Total.Add(h.Value)
}

// UnpricedCount returns how many holdings were valued at zero for lack of a price.
func (t TreasuryValuation) UnpricedCount() int {
	n := 0
	for _, h := range t.Holdings {
		if h.Unpriced() {
			n++
		}
	}
	return n
}
