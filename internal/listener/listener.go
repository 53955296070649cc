// Package listener watches a collateral vault factory contract for
// VaultCreated-style events and reports newly deployed vaults to a
// callback, backfilling any blocks the bot missed while it was down
// before settling into live polling.
package listener

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// maxBlockRangePerScan bounds how many blocks a single eth_getLogs call
// spans, since most public RPC endpoints cap the range of a single log
// query.
const maxBlockRangePerScan = 2_000

// NewVaultHandler is called once per vault address discovered, in the
// order blocks were scanned.
type NewVaultHandler func(ctx context.Context, vaultAddr common.Address, blockNumber uint64)

// FactoryListener polls a factory contract's event log for new vault
// deployments.
type FactoryListener struct {
	eth          *ethclient.Client
	factoryAddr  common.Address
	eventTopic   common.Hash
	pollInterval time.Duration

	lastScannedBlock uint64
}

// NewFactoryListener builds a listener for factoryAddr's vaultCreatedTopic
// event, starting its backfill scan from fromBlock.
func NewFactoryListener(eth *ethclient.Client, factoryAddr common.Address, vaultCreatedTopic common.Hash, fromBlock uint64, pollInterval time.Duration) *FactoryListener {
	return &FactoryListener{
		eth:              eth,
		factoryAddr:      factoryAddr,
		eventTopic:       vaultCreatedTopic,
		pollInterval:     pollInterval,
		lastScannedBlock: fromBlock,
	}
}

// LastScannedBlock returns the listener's watermark: the next block it
// will scan, one past the highest block fully scanned so far (or the
// starting block before any scan). It is used to persist a resumable
// checkpoint.
func (l *FactoryListener) LastScannedBlock() uint64 {
	return l.lastScannedBlock
}

// Backfill scans from the listener's starting block up to the chain's
// current head, reporting every vault found along the way, before the
// caller switches to Run for live polling. It exists as a distinct step
// because a bot that was down for any length of time needs to catch up
// on missed deployments before it starts trusting its live feed alone.
func (l *FactoryListener) Backfill(ctx context.Context, handler NewVaultHandler) error {
	head, err := l.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("listener: fetch head block: %w", err)
	}
	return l.ScanBlockRange(ctx, l.lastScannedBlock, head, handler)
}

// ScanBlockRange scans [from, to] inclusive for vault-creation events,
// chunking the range to stay under maxBlockRangePerScan, and advances the
// listener's watermark to to+1 once done.
func (l *FactoryListener) ScanBlockRange(ctx context.Context, from, to uint64, handler NewVaultHandler) error {
	if to < from {
		return nil
	}

	for start := from; start <= to; start += maxBlockRangePerScan {
		end := start + maxBlockRangePerScan - 1
		if end > to {
			end = to
		}

		logs, err := l.eth.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{l.factoryAddr},
			Topics:    [][]common.Hash{{l.eventTopic}},
		})
		if err != nil {
			return fmt.Errorf("listener: filter logs [%d,%d]: %w", start, end, err)
		}

		for _, entry := range logs {
			vaultAddr, err := decodeVaultAddress(entry)
			if err != nil {
				log.Warn("listener: could not decode vault address from log", "block", entry.BlockNumber, "err", err)
				continue
			}
			handler(ctx, vaultAddr, entry.BlockNumber)
		}
	}

	l.lastScannedBlock = to + 1
	return nil
}

// decodeVaultAddress extracts the newly-created vault's address from a
// VaultCreated log. Factories index the vault address as the event's
// first indexed topic (after the event signature itself).
func decodeVaultAddress(entry types.Log) (common.Address, error) {
	if len(entry.Topics) < 2 {
		return common.Address{}, fmt.Errorf("log has no indexed vault address topic")
	}
	return common.BytesToAddress(entry.Topics[1].Bytes()), nil
}

// Run polls for new events every pollInterval until ctx is cancelled.
// Callers should invoke Backfill first.
func (l *FactoryListener) Run(ctx context.Context, handler NewVaultHandler) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			head, err := l.eth.BlockNumber(ctx)
			if err != nil {
				log.Warn("listener: failed to fetch head block, will retry", "err", err)
				continue
			}
			if head < l.lastScannedBlock {
				continue
			}
			if err := l.ScanBlockRange(ctx, l.lastScannedBlock, head, handler); err != nil {
				log.Warn("listener: scan failed, will retry next tick", "err", err)
			}
		}
	}
}
