// Package holdings values the native and token balances of a single treasury.
package holdings

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/price"
)

// BalanceReader reads the balances held by an address.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address models.TreasuryAddress) (uint64, error)
	TokenHoldings(ctx context.Context, address models.TreasuryAddress) ([]models.TokenHolding, error)
}

// PriceSource resolves unit prices; it never fails.
type PriceSource interface {
	Price(ctx context.Context, assetID string) price.Quote
}

// Valuator sums the value of a treasury's holdings.
type Valuator struct {
	reader BalanceReader
	prices PriceSource
	exec   *executor.Executor
}

func NewValuator(reader BalanceReader, prices PriceSource, exec *executor.Executor) *Valuator {
	return &Valuator{reader: reader, prices: prices, exec: exec}
}

// Valuate returns the native balance plus every token holding of address,
// each multiplied by its unit price. Nothing is persisted.
func (v *Valuator) Valuate(ctx context.Context, address models.TreasuryAddress) (models.TreasuryValuation, error) {
	result := models.TreasuryValuation{Address: address, Total: decimal.Zero}

	lamports, err := executor.Call(ctx, v.exec, "balance", func(ctx context.Context) (uint64, error) {
		return v.reader.NativeBalance(ctx, address)
	})
	if err != nil {
		return models.TreasuryValuation{}, fmt.Errorf("failed to fetch balance of %s: %w", address, err)
	}

	native := decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -models.LamportsDecimals)
	result.Add(v.value(ctx, models.SOLMint, native))

	tokens, err := executor.Call(ctx, v.exec, "token-accounts", func(ctx context.Context) ([]models.TokenHolding, error) {
		return v.reader.TokenHoldings(ctx, address)
	})
	if err != nil {
		return models.TreasuryValuation{}, fmt.Errorf("failed to fetch token accounts of %s: %w", address, err)
	}

	for _, token := range tokens {
		result.Add(v.value(ctx, token.Mint, token.Amount))
	}

	logger.Debug("Treasury %s: %d holdings worth %s", address, len(result.Holdings), result.Total.StringFixed(2))
	return result, nil
}

func (v *Valuator) value(ctx context.Context, assetID string, quantity decimal.Decimal) models.HoldingValue {
	quote := v.prices.Price(ctx, assetID)
	return models.HoldingValue{
		AssetID:     assetID,
		Quantity:    quantity,
		UnitPrice:   quote.Price,
		Value:       quantity.Mul(quote.Price),
		PriceStatus: quote.Status,
	}
}
