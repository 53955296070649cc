// Package txlistener polls an RPC endpoint for a transaction's receipt,
// the way the teacher's txlistener waits out a submitted swap before
// reporting success. The liquidation bot reuses the same poll-until-mined
// shape to confirm liquidation and approval transactions.
package txlistener

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	bottypes "github.com/0xTwyne/twyne-liquidation-bot/pkg/types"
)

// TxListener waits for a submitted transaction to be mined.
type TxListener interface {
	WaitForTransaction(txHash common.Hash) (*bottypes.TxReceipt, error)
}

type listener struct {
	eth          *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a listener at construction time.
type Option func(*listener)

// WithPollInterval sets how often the listener checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *listener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will poll before giving
// up.
func WithTimeout(d time.Duration) Option {
	return func(l *listener) { l.timeout = d }
}

// NewTxListener builds a listener with sane defaults, overridable via
// options.
func NewTxListener(eth *ethclient.Client, opts ...Option) TxListener {
	l := &listener{
		eth:          eth,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction polls for txHash's receipt until it is mined or the
// listener's timeout elapses.
func (l *listener) WaitForTransaction(txHash common.Hash) (*bottypes.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return toTxReceipt(txHash, receipt), nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("fetch receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func toTxReceipt(txHash common.Hash, r *types.Receipt) *bottypes.TxReceipt {
	status := "0x0"
	if r.Status == 1 {
		status = "0x1"
	}
	return &bottypes.TxReceipt{
		TxHash:            txHash.Hex(),
		BlockNumber:       hexBig(r.BlockNumber),
		GasUsed:           hexUint(r.GasUsed),
		EffectiveGasPrice: hexBig(r.EffectiveGasPrice),
		Status:            status,
	}
}

func hexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func hexUint(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
