// Package chainmanager instantiates and runs one full bot stack — config,
// contract clients, scheduler, factory listener — per configured chain,
// and coordinates running all configured chains concurrently.
package chainmanager

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/listener"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/scheduler"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

// Chain bundles one chain's full stack.
type Chain struct {
	ID          int64
	Name        string
	Client      *ethclient.Client
	Scheduler   *scheduler.Scheduler
	Listener    *listener.FactoryListener
	Clients     vault.ProtocolClients
}

// Run backfills the factory listener, registers every discovered vault
// with the scheduler, then runs the scheduler's dispatch/maintenance
// loops and the listener's live polling concurrently until ctx is
// cancelled or either fails.
func (c *Chain) Run(ctx context.Context) error {
	log.Info("starting chain", "chain_id", c.ID, "name", c.Name)

	if err := c.Listener.Backfill(ctx, c.onNewVault(ctx)); err != nil {
		return fmt.Errorf("chain %s: backfill failed: %w", c.Name, err)
	}
	c.Scheduler.SetLastSavedBlock(c.Listener.LastScannedBlock())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.Scheduler.Run(ctx)
	})
	group.Go(func() error {
		return c.Listener.Run(ctx, c.onNewVault(ctx))
	})

	return group.Wait()
}

func (c *Chain) onNewVault(ctx context.Context) listener.NewVaultHandler {
	return func(ctx context.Context, addr common.Address, blockNumber uint64) {
		v, err := vault.NewVaultForAddress(ctx, addr, c.Clients)
		if err != nil {
			log.Warn("chain: failed to construct vault adapter, vault is not tracked",
				"chain_id", c.ID, "address", addr.Hex(), "block", blockNumber, "err", err)
			return
		}
		c.Scheduler.AddVault(v)
		c.Scheduler.SetLastSavedBlock(blockNumber)
		log.Info("discovered vault", "chain_id", c.ID, "address", addr.Hex(), "protocol", v.Protocol(), "block", blockNumber)
	}
}

// Manager runs every configured chain concurrently, failing fast if any
// one of them returns a non-context-cancellation error.
type Manager struct {
	chains []*Chain
}

// NewManager builds a manager over the given chains.
func NewManager(chains []*Chain) *Manager {
	return &Manager{chains: chains}
}

// Run starts every chain and blocks until ctx is cancelled or one chain
// fails.
func (m *Manager) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, c := range m.chains {
		c := c
		group.Go(func() error {
			return c.Run(ctx)
		})
	}
	return group.Wait()
}
