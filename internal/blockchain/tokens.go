package blockchain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/kelsos/realms-tvl/internal/models"
)

// parseTokenAccount extracts mint and display amount from a jsonParsed SPL
// token account.
func parseTokenAccount(raw []byte) (models.TokenHolding, error) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return models.TokenHolding{}, fmt.Errorf("account data is not parsed JSON")
	}

	info := gjson.GetBytes(raw, "parsed.info")
	mint := info.Get("mint").String()
	if mint == "" {
		return models.TokenHolding{}, fmt.Errorf("token account without mint")
	}

	tokenAmount := info.Get("tokenAmount")
	amount, err := displayAmount(tokenAmount)
	if err != nil {
		return models.TokenHolding{}, fmt.Errorf("mint %s: %w", mint, err)
	}

	return models.TokenHolding{Mint: mint, Amount: amount}, nil
}

// displayAmount prefers the exact uiAmountString and falls back to scaling
// the raw amount by decimals.
func displayAmount(tokenAmount gjson.Result) (decimal.Decimal, error) {
	if s := tokenAmount.Get("uiAmountString").String(); s != "" {
		return decimal.NewFromString(s)
	}

	raw := tokenAmount.Get("amount").String()
	if raw == "" {
		return decimal.Zero, fmt.Errorf("token amount missing")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Shift(-int32(tokenAmount.Get("decimals").Int())), nil
}
