// Package blockchain reads spl-governance registries and treasury balances
// from a Solana JSON-RPC endpoint.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
)

// Client wraps the Solana RPC client. It does no pacing or retrying of its
// own; callers route every method through an executor.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewClient creates a client for the given RPC endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
}

// NativeBalance returns the lamport balance of address.
func (c *Client) NativeBalance(ctx context.Context, address models.TreasuryAddress) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(string(address))
	if err != nil {
		return 0, fmt.Errorf("invalid address %s: %w", address, err)
	}

	out, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, wrapRPCError("getBalance", err)
	}
	return out.Value, nil
}

// TokenHoldings returns every SPL token account owned by address, with
// display-unit amounts.
func (c *Client) TokenHoldings(ctx context.Context, address models.TreasuryAddress) ([]models.TokenHolding, error) {
	owner, err := solana.PublicKeyFromBase58(string(address))
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}

	programID := solana.MustPublicKeyFromBase58(models.TokenProgramID)
	out, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingJSONParsed},
	)
	if err != nil {
		return nil, wrapRPCError("getTokenAccountsByOwner", err)
	}

	holdings := make([]models.TokenHolding, 0, len(out.Value))
	for _, acc := range out.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		holding, err := parseTokenAccount(acc.Account.Data.GetRawJSON())
		if err != nil {
			logger.Warn("Skipping token account %s: %v", acc.Pubkey, err)
			continue
		}
		holding.Account = acc.Pubkey.String()
		holdings = append(holdings, holding)
	}

	return holdings, nil
}

// wrapRPCError marks provider rate limiting so the executor retries it.
func wrapRPCError(method string, err error) error {
	if isRPCRateLimit(err) {
		return fmt.Errorf("%s: %w: %v", method, executor.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

func isRPCRateLimit(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == http.StatusTooManyRequests {
		return true
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
		return true
	}
	return executor.IsRateLimited(err)
}
