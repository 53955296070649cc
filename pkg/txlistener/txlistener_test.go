package txlistener

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestToTxReceipt_Success(t *testing.T) {
	txHash := common.HexToHash("0xabc123")
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(100),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
	}

	got := toTxReceipt(txHash, receipt)
	if got.TxHash != txHash.Hex() {
		t.Fatalf("got TxHash %s, want %s", got.TxHash, txHash.Hex())
	}
	if got.Status != "0x1" {
		t.Fatalf("got Status %s, want 0x1", got.Status)
	}
	if !got.Success() {
		t.Fatal("expected Success() to be true for status 1")
	}
	if got.BlockNumber != "0x64" {
		t.Fatalf("got BlockNumber %s, want 0x64", got.BlockNumber)
	}
	if got.GasUsed != "0x5208" {
		t.Fatalf("got GasUsed %s, want 0x5208", got.GasUsed)
	}
}

func TestToTxReceipt_Failure(t *testing.T) {
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(1),
	}
	got := toTxReceipt(common.HexToHash("0xdef"), receipt)
	if got.Status != "0x0" {
		t.Fatalf("got Status %s, want 0x0", got.Status)
	}
	if got.Success() {
		t.Fatal("expected Success() to be false for status 0")
	}
}

func TestHexBig_Nil(t *testing.T) {
	if got := hexBig(nil); got != "0x0" {
		t.Fatalf("hexBig(nil) = %s, want 0x0", got)
	}
}

func TestHexUint(t *testing.T) {
	if got := hexUint(255); got != "0xff" {
		t.Fatalf("hexUint(255) = %s, want 0xff", got)
	}
}
