package listener

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var vaultCreatedTopic = common.HexToHash("0xabc123")

func TestDecodeVaultAddress_Success(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000042")
	entry := types.Log{
		Topics: []common.Hash{vaultCreatedTopic, common.BytesToHash(want.Bytes())},
	}

	got, err := decodeVaultAddress(entry)
	if err != nil {
		t.Fatalf("decodeVaultAddress returned error: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got.Hex(), want.Hex())
	}
}

func TestDecodeVaultAddress_MissingTopic(t *testing.T) {
	entry := types.Log{Topics: []common.Hash{vaultCreatedTopic}}
	if _, err := decodeVaultAddress(entry); err == nil {
		t.Fatal("expected error when the log has no indexed vault address topic")
	}
}

func TestNewFactoryListener_InitialWatermark(t *testing.T) {
	l := NewFactoryListener(nil, common.HexToAddress("0x01"), vaultCreatedTopic, 1000, time.Second)
	if l.lastScannedBlock != 1000 {
		t.Fatalf("expected initial watermark 1000, got %d", l.lastScannedBlock)
	}
}

func TestScanBlockRange_EmptyRangeIsNoop(t *testing.T) {
	l := NewFactoryListener(nil, common.HexToAddress("0x01"), vaultCreatedTopic, 1000, time.Second)

	called := false
	err := l.ScanBlockRange(context.Background(), 2000, 1000, func(ctx context.Context, addr common.Address, block uint64) {
		called = true
	})
	if err != nil {
		t.Fatalf("expected nil error for an inverted range, got %v", err)
	}
	if called {
		t.Fatal("handler should not be invoked for an empty range")
	}
	if l.lastScannedBlock != 1000 {
		t.Fatalf("watermark should be untouched by a no-op scan, got %d", l.lastScannedBlock)
	}
}
