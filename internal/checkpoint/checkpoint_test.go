package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	want := State{
		Vaults: []vault.VaultCheckpoint{
			{
				Address:             "0x0000000000000000000000000000000000000001",
				Protocol:            "euler",
				ChainID:             1,
				InternalHealthScore: 1.2,
				ExternalHealthScore: 1.4,
				TimeOfNextUpdate:    time.Now().Add(time.Hour).UTC().Round(time.Second),
			},
		},
		Queue: []QueueEntry{
			{Address: "0x0000000000000000000000000000000000000001", DueAt: time.Now().Add(time.Hour).UTC().Round(time.Second)},
		},
		LastSavedBlock: 12345,
		FailedInitializations: []FailedInit{
			{Address: "0x0000000000000000000000000000000000000002", Protocol: "aave", Attempts: 2, NextTry: time.Now().Add(time.Minute).UTC().Round(time.Second)},
		},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil state")
	}
	if len(got.Vaults) != 1 {
		t.Fatalf("expected 1 checkpointed vault, got %d", len(got.Vaults))
	}
	if got.Vaults[0].Address != want.Vaults[0].Address || got.Vaults[0].Protocol != want.Vaults[0].Protocol {
		t.Fatalf("round-tripped checkpoint mismatch: got %+v, want %+v", got.Vaults[0], want.Vaults[0])
	}
	if !got.Vaults[0].TimeOfNextUpdate.Equal(want.Vaults[0].TimeOfNextUpdate) {
		t.Fatalf("TimeOfNextUpdate mismatch: got %v, want %v", got.Vaults[0].TimeOfNextUpdate, want.Vaults[0].TimeOfNextUpdate)
	}
	if got.LastSavedBlock != want.LastSavedBlock {
		t.Fatalf("LastSavedBlock mismatch: got %d, want %d", got.LastSavedBlock, want.LastSavedBlock)
	}
	if len(got.Queue) != 1 || got.Queue[0].Address != want.Queue[0].Address {
		t.Fatalf("Queue mismatch: got %+v, want %+v", got.Queue, want.Queue)
	}
	if len(got.FailedInitializations) != 1 || got.FailedInitializations[0].Attempts != 2 {
		t.Fatalf("FailedInitializations mismatch: got %+v, want %+v", got.FailedInitializations, want.FailedInitializations)
	}
}

func TestLoad_MissingFileStartsFresh(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state for missing file, got %v", got)
	}
}

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	if err := os.WriteFile(path, []byte("not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("expected nil error for corrupt file, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state for corrupt file, got %v", got)
	}
}

func TestLoad_VersionMismatchStillLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	if err := os.WriteFile(path, []byte(`{"version": 999, "vaults": [{"address": "0xabc", "protocol": "euler"}], "last_saved_block": 7}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("expected nil error for version mismatch, got %v", err)
	}
	if got == nil {
		t.Fatal("expected a loaded state despite version mismatch")
	}
	if len(got.Vaults) != 1 || got.Vaults[0].Address != "0xabc" {
		t.Fatalf("expected version-mismatched state to still be usable, got %+v", got)
	}
	if got.LastSavedBlock != 7 {
		t.Fatalf("expected LastSavedBlock to still load, got %d", got.LastSavedBlock)
	}
}
