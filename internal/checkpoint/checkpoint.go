// Package checkpoint persists the scheduler's tracked-vault set, pending
// queue, and failed-initialization backlog to disk as JSON, so a restart
// resumes from the last known state instead of re-discovering every vault
// from genesis.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

// currentVersion is bumped whenever the on-disk shape changes in a way
// that makes an old file unreadable; State.Version is checked against it
// on load.
const currentVersion = 1

// QueueEntry is one pending due-time entry in the scheduler's priority
// queue, persisted so a restart doesn't have to wait for every vault's
// next natural update to rebuild its schedule.
type QueueEntry struct {
	Address string    `json:"address"`
	DueAt   time.Time `json:"due_at"`
}

// FailedInit is one vault stuck in the failed-initialization backlog,
// mirroring AccountMonitor.failed_initializations.
type FailedInit struct {
	Address  string    `json:"address"`
	Protocol string    `json:"protocol"`
	Attempts int       `json:"attempts"`
	NextTry  time.Time `json:"next_try"`
}

// State is the full on-disk checkpoint: a version tag, every tracked
// vault's last-known state, the pending queue, the failed-init backlog,
// and the last block number the factory listener had scanned up to.
type State struct {
	Version                int                     `json:"version"`
	Vaults                 []vault.VaultCheckpoint `json:"vaults"`
	Queue                  []QueueEntry            `json:"queue"`
	LastSavedBlock         uint64                  `json:"last_saved_block"`
	FailedInitializations  []FailedInit            `json:"failed_initializations"`
}

// Save atomically writes state to path by writing to a temp file in the
// same directory and renaming it over the destination, so a crash
// mid-write never leaves a half-written checkpoint behind.
func Save(path string, state State) error {
	state.Version = currentVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

// Load reads a previously-saved checkpoint. A missing file or a corrupt
// file are reported to the caller as a "start fresh" signal (nil, nil)
// rather than an error: a liquidation bot must never refuse to start just
// because its checkpoint is unreadable. A version mismatch, unlike those
// two cases, still carries a usable (if possibly stale) state: it is
// logged as a warning and the load proceeds rather than discarding
// whatever state is on disk.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("checkpoint file is corrupt, starting fresh", "path", path, "err", err)
		return nil, nil
	}

	if state.Version != currentVersion {
		log.Warn("checkpoint version mismatch, attempting load anyway", "path", path, "found", state.Version, "want", currentVersion)
	}

	return &state, nil
}
