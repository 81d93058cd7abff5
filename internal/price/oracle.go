package price

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/kelsos/realms-tvl/internal/client"
)

// Oracle looks up the current USD unit price of an asset. found is false when
// the oracle has no price for it.
type Oracle interface {
	Price(ctx context.Context, assetID string) (price decimal.Decimal, found bool, err error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, assetID string) (decimal.Decimal, bool, error)

func (f OracleFunc) Price(ctx context.Context, assetID string) (decimal.Decimal, bool, error) {
	return f(ctx, assetID)
}

// JupiterOracle reads prices from a Jupiter-style price endpoint:
// GET <base>?ids=<mint> -> {"data": {"<mint>": {"price": ...}}}.
type JupiterOracle struct {
	client *client.APIClient
}

func NewJupiterOracle(c *client.APIClient) *JupiterOracle {
	return &JupiterOracle{client: c}
}

func (o *JupiterOracle) Price(ctx context.Context, assetID string) (decimal.Decimal, bool, error) {
	body, err := o.client.GetRaw(ctx, "", map[string]string{"ids": assetID})
	if err != nil {
		return decimal.Zero, false, err
	}
	return parsePrice(body, assetID)
}

func parsePrice(body []byte, assetID string) (decimal.Decimal, bool, error) {
	if !gjson.ValidBytes(body) {
		return decimal.Zero, false, fmt.Errorf("invalid price response for %s", assetID)
	}

	// v4 returns a number, v2 a string; both parse through Raw.
	result := gjson.GetBytes(body, "data."+assetID+".price")
	if !result.Exists() || result.Type == gjson.Null {
		return decimal.Zero, false, nil
	}

	raw := result.Str
	if result.Type == gjson.Number {
		raw = result.Raw
	}

	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid price %q for %s: %w", raw, assetID, err)
	}
	return p, true, nil
}
