// Package treasury walks an organization's registry hierarchy down to its
// native treasury addresses.
package treasury

import (
	"context"
	"fmt"

	"github.com/kelsos/realms-tvl/internal/executor"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
)

// RegistryReader enumerates governance registry records.
type RegistryReader interface {
	Realms(ctx context.Context, programID string) ([]models.Realm, error)
	Governances(ctx context.Context, realm models.Realm) ([]string, error)
	NativeTreasury(programID, governance string) (models.TreasuryAddress, error)
}

// Discoverer finds the treasuries of an organization.
type Discoverer struct {
	reader  RegistryReader
	exec    *executor.Executor
	onRealm func(root models.OrganizationRoot, realm models.Realm, treasuries int)
}

func NewDiscoverer(reader RegistryReader, exec *executor.Executor) *Discoverer {
	return &Discoverer{reader: reader, exec: exec}
}

// OnRealm registers a callback invoked after each realm has been walked.
func (d *Discoverer) OnRealm(fn func(root models.OrganizationRoot, realm models.Realm, treasuries int)) {
	d.onRealm = fn
}

// Discover returns the native treasury of every governance of every realm
// under root, in discovery order. The realm set is unbounded.
func (d *Discoverer) Discover(ctx context.Context, root models.OrganizationRoot) ([]models.TreasuryAddress, error) {
	realms, err := executor.Call(ctx, d.exec, "realms", func(ctx context.Context) ([]models.Realm, error) {
		return d.reader.Realms(ctx, root.ProgramID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list realms of %s: %w", root.ProgramID, err)
	}
	logger.Info("Found %d realms under %s", len(realms), root.Label())

	var treasuries []models.TreasuryAddress
	for _, realm := range realms {
		found, err := d.RealmTreasuries(ctx, realm)
		if err != nil {
			return nil, err
		}
		treasuries = append(treasuries, found...)
		if d.onRealm != nil {
			d.onRealm(root, realm, len(found))
		}
	}

	logger.Info("Found %d treasuries under %s", len(treasuries), root.Label())
	return treasuries, nil
}

// RealmTreasuries returns the native treasuries of one realm's governances.
func (d *Discoverer) RealmTreasuries(ctx context.Context, realm models.Realm) ([]models.TreasuryAddress, error) {
	governances, err := executor.Call(ctx, d.exec, "governances", func(ctx context.Context) ([]string, error) {
		return d.reader.Governances(ctx, realm)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list governances of realm %s: %w", realm.Address, err)
	}

	treasuries := make([]models.TreasuryAddress, 0, len(governances))
	for _, governance := range governances {
		addr, err := d.reader.NativeTreasury(realm.ProgramID, governance)
		if err != nil {
			return nil, fmt.Errorf("failed to derive treasury of governance %s: %w", governance, err)
		}
		treasuries = append(treasuries, addr)
	}

	logger.Debug("Realm %s has %d governances", realm.Address, len(governances))
	return treasuries, nil
}
