package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/kelsos/realms-tvl/internal/models"
)

// spl-governance account type discriminators (first byte of account data).
const (
	accountRealmV1             byte = 1
	accountGovernanceV1        byte = 3
	accountProgramGovernanceV1 byte = 4
	accountMintGovernanceV1    byte = 9
	accountTokenGovernanceV1   byte = 10
	accountRealmV2             byte = 16
	accountGovernanceV2        byte = 18
	accountProgramGovernanceV2 byte = 19
	accountMintGovernanceV2    byte = 20
	accountTokenGovernanceV2   byte = 21
)

var (
	realmAccountTypes = []byte{accountRealmV1, accountRealmV2}

	governanceAccountTypes = []byte{
		accountGovernanceV1,
		accountProgramGovernanceV1,
		accountMintGovernanceV1,
		accountTokenGovernanceV1,
		accountGovernanceV2,
		accountProgramGovernanceV2,
		accountMintGovernanceV2,
		accountTokenGovernanceV2,
	}
)

const nativeTreasurySeed = "native-treasury"

// governanceRealmOffset is where the realm pubkey sits in governance accounts,
// right after the account type byte.
const governanceRealmOffset = 1

// Realms lists every realm registered under the governance program.
func (c *Client) Realms(ctx context.Context, programID string) ([]models.Realm, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %s: %w", programID, err)
	}

	var realms []models.Realm
	for _, accountType := range realmAccountTypes {
		keys, err := c.programAccounts(ctx, program, accountTypeFilter(accountType))
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			realms = append(realms, models.Realm{Address: key.String(), ProgramID: programID})
		}
	}

	return realms, nil
}

// Governances lists the governance accounts of a realm.
func (c *Client) Governances(ctx context.Context, realm models.Realm) ([]string, error) {
	program, err := solana.PublicKeyFromBase58(realm.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %s: %w", realm.ProgramID, err)
	}
	realmKey, err := solana.PublicKeyFromBase58(realm.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid realm %s: %w", realm.Address, err)
	}

	var governances []string
	for _, accountType := range governanceAccountTypes {
		keys, err := c.programAccounts(ctx, program,
			accountTypeFilter(accountType),
			rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: governanceRealmOffset, Bytes: solana.Base58(realmKey.Bytes())}},
		)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			governances = append(governances, key.String())
		}
	}

	return governances, nil
}

// NativeTreasury derives the native treasury address of a governance. It is a
// pure computation and makes no RPC call.
func NativeTreasury(programID, governance string) (models.TreasuryAddress, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return "", fmt.Errorf("invalid program id %s: %w", programID, err)
	}
	gov, err := solana.PublicKeyFromBase58(governance)
	if err != nil {
		return "", fmt.Errorf("invalid governance %s: %w", governance, err)
	}

	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(nativeTreasurySeed), gov.Bytes()}, program)
	if err != nil {
		return "", fmt.Errorf("deriving treasury for %s: %w", governance, err)
	}
	return models.TreasuryAddress(addr.String()), nil
}

// NativeTreasury is the method form of the package function, so Client
// satisfies the discovery reader interface.
func (c *Client) NativeTreasury(programID, governance string) (models.TreasuryAddress, error) {
	return NativeTreasury(programID, governance)
}

func accountTypeFilter(accountType byte) rpc.RPCFilter {
	return rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58{accountType}}}
}

// programAccounts returns only the keys; account data is sliced away to keep
// responses small.
func (c *Client) programAccounts(ctx context.Context, program solana.PublicKey, filters ...rpc.RPCFilter) ([]solana.PublicKey, error) {
	var zero uint64
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		DataSlice:  &rpc.DataSlice{Offset: &zero, Length: &zero},
		Filters:    filters,
	})
	if err != nil {
		return nil, wrapRPCError("getProgramAccounts", err)
	}

	keys := make([]solana.PublicKey, 0, len(out))
	for _, acc := range out {
		if acc == nil {
			continue
		}
		keys = append(keys, acc.Pubkey)
	}
	return keys, nil
}
