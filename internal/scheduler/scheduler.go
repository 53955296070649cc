// Package scheduler drives the adaptive priority-queue re-check loop:
// every tracked vault gets a next-due time derived from its health score
// and size, and a bounded worker pool pops due vaults, refreshes their
// state, and acts on liquidation opportunities as they appear.
package scheduler

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/checkpoint"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/notify"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/txlistener"
)

// maxWorkers bounds how many vaults can be refreshed concurrently, the
// Go equivalent of the original bot's ThreadPoolExecutor(max_workers=32).
const maxWorkers = 32

// maxInitBackoff caps the exponential backoff applied to a vault whose
// initial on-chain read keeps failing, at min(60*2^(n-1), maxInitBackoff).
const maxInitBackoff = time.Hour

// failedInitRetryInterval is how often the scheduler re-checks the
// failed-init backlog for entries whose backoff has elapsed.
const failedInitRetryInterval = 5 * time.Minute

// staleSweepInterval is how often the stale-account sweep runs.
const staleSweepInterval = time.Hour

// staleFailedInitThreshold marks a vault's schedule as stale once its
// time_of_next_update has sat more than this long in the past.
const staleFailedInitThreshold = time.Hour

// AuditRecorder persists a durable record of every liquidation attempt,
// independent of the log file and notification stream.
type AuditRecorder interface {
	RecordAttempt(ctx context.Context, addr common.Address, protocol string, plan *vault.LiquidationPlan, txHash string, err error) error
}

// failedInit tracks a vault whose on-chain read (UpdateLiquidity) failed, so the
// scheduler can retry it on an exponential backoff instead of either
// hammering the RPC endpoint or abandoning it forever.
type failedInit struct {
	address  common.Address
	protocol string
	attempts int
	nextTry  time.Time
}

// Scheduler owns the due-time priority queue, the set of vaults currently
// being processed by a worker, and the maintenance loops (failed-init
// retry, low-health digest, stale-entry sweep, checkpointing).
type Scheduler struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      *dueQueue
	vaults     map[common.Address]vault.CollateralVault
	processing map[common.Address]bool
	failed     map[common.Address]*failedInit
	nextDue    map[common.Address]time.Time

	sem chan struct{}

	signer         *ecdsa.PrivateKey
	notifier       notify.Sink
	recorder       AuditRecorder
	confirmer      txlistener.TxListener
	spyBaseURL     string
	mentionIDs     []string
	checkpointPath string
	cadence        vault.RuntimeConfig
	usdsAddress    common.Address

	lastSavedBlock uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler. signer is the liquidator EOA's private key
// used to submit liquidations; notifier and recorder may be
// notify.NoopSink{} / nil respectively if not configured for a chain.
// confirmer, if non-nil, is used to wait for a submitted liquidation's
// receipt before posting the final result notification; if nil, the
// result is reported immediately on broadcast instead of on confirmation.
// cadence supplies the low-health report interval and report threshold;
// usdsAddress is the USDS token whose positions this chain skips.
func New(signer *ecdsa.PrivateKey, notifier notify.Sink, recorder AuditRecorder, confirmer txlistener.TxListener, spyBaseURL string, mentionIDs []string, checkpointPath string, cadence vault.RuntimeConfig, usdsAddress common.Address) *Scheduler {
	s := &Scheduler{
		queue:          newDueQueue(),
		vaults:         make(map[common.Address]vault.CollateralVault),
		processing:     make(map[common.Address]bool),
		failed:         make(map[common.Address]*failedInit),
		nextDue:        make(map[common.Address]time.Time),
		sem:            make(chan struct{}, maxWorkers),
		signer:         signer,
		notifier:       notifier,
		recorder:       recorder,
		confirmer:      confirmer,
		spyBaseURL:     spyBaseURL,
		mentionIDs:     mentionIDs,
		checkpointPath: checkpointPath,
		cadence:        cadence,
		usdsAddress:    usdsAddress,
		stopCh:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AddVault registers a newly-discovered vault and schedules its first
// check immediately.
func (s *Scheduler) AddVault(v vault.CollateralVault) {
	s.mu.Lock()
	s.vaults[v.Address()] = v
	s.mu.Unlock()

	s.scheduleCheck(v.Address(), time.Now())
}

// SetLastSavedBlock records the factory listener's current watermark, so
// the next checkpoint write carries a resumable backfill cursor.
func (s *Scheduler) SetLastSavedBlock(block uint64) {
	s.mu.Lock()
	s.lastSavedBlock = block
	s.mu.Unlock()
}

// scheduleCheck pushes a due-time entry for addr, refusing to push the
// vault's effective schedule any later than one already pending: if addr
// already has a sooner check scheduled, this call is dropped rather than
// silently deferring that promise. A shorter due time always overrides a
// longer one.
func (s *Scheduler) scheduleCheck(addr common.Address, due time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nextDue[addr]; ok && existing.Before(due) {
		return
	}
	s.nextDue[addr] = due
	s.queue.push(addr, due)
	s.cond.Signal()
}

// rescheduleAfterUpdate schedules addr's next check at the time its own
// UpdateLiquidity call just computed, honoring the "never shorten an
// already-due-sooner check" invariant implicitly via scheduleCheck's
// duplicate-tolerant push.
func (s *Scheduler) rescheduleAfterUpdate(v vault.CollateralVault) {
	s.scheduleCheck(v.Address(), v.TimeOfNextUpdate())
}

// Run starts the dispatcher loop and every maintenance goroutine. It
// blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	s.wg.Add(1)
	go s.periodicRetryFailedInitializations(ctx)

	s.wg.Add(1)
	go s.periodicReportLowHealthAccounts(ctx)

	s.wg.Add(1)
	go s.periodicSweepStaleAccounts(ctx)

	s.wg.Add(1)
	go s.periodicCheckpoint(ctx)

	<-ctx.Done()
	s.Stop()
	s.wg.Wait()
	return ctx.Err()
}

// Stop signals every maintenance loop to exit and wakes the dispatcher so
// it notices stopCh is closed.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		// already stopped
	default:
		close(s.stopCh)
	}
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// dispatchLoop is the consumer side of the priority queue: it sleeps
// until the earliest entry is due, pops everything that has come due,
// discards stale duplicates of vaults already being processed, and hands
// the rest to the bounded worker pool.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for {
			select {
			case <-s.stopCh:
				s.mu.Unlock()
				return
			default:
			}

			due, ok := s.queue.peekDue()
			if !ok {
				s.cond.Wait()
				continue
			}
			wait := time.Until(due)
			if wait <= 0 {
				break
			}
			s.waitOrWake(wait)
		}

		var toRun []common.Address
		for {
			due, ok := s.queue.peekDue()
			if !ok || due.After(time.Now()) {
				break
			}
			item := s.queue.pop()
			if s.processing[item.address] {
				continue // stale duplicate, the in-flight run will reschedule
			}
			s.processing[item.address] = true
			delete(s.nextDue, item.address)
			toRun = append(toRun, item.address)
		}
		s.mu.Unlock()

		for _, addr := range toRun {
			s.dispatch(ctx, addr)
		}
	}
}

// waitOrWake blocks on the condition variable for at most d, so a newly
// pushed earlier entry (or Stop) can interrupt the wait rather than
// sleeping past it. Called with s.mu held; releases and reacquires it.
func (s *Scheduler) waitOrWake(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.cond.Wait()
}

// dispatch acquires a worker slot and processes addr in its own
// goroutine, unblocking the dispatch loop immediately.
func (s *Scheduler) dispatch(ctx context.Context, addr common.Address) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.clearProcessing(addr)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		defer s.clearProcessing(addr)
		s.processAccountUpdate(ctx, addr)
	}()
}

func (s *Scheduler) clearProcessing(addr common.Address) {
	s.mu.Lock()
	delete(s.processing, addr)
	s.mu.Unlock()
}

func (s *Scheduler) vaultFor(addr common.Address) (vault.CollateralVault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[addr]
	return v, ok
}

// isUSDSDebt reports whether v borrows against the chain's USDS token, a
// denomination this bot never attempts to liquidate.
func (s *Scheduler) isUSDSDebt(v vault.CollateralVault) bool {
	var zero common.Address
	if s.usdsAddress == zero {
		return false
	}
	return strings.EqualFold(v.TargetAsset().Hex(), s.usdsAddress.Hex())
}

// processAccountUpdate is the per-vault unit of work the worker pool
// runs: refresh on-chain state, reschedule the next check, and if the
// position looks liquidatable, simulate and (if profitable) submit a
// liquidation. The liquidation trigger mirrors update_account_liquidity:
// a position is worth acting on if either protocol's own canLiquidate
// view says so, if it has already been picked up by another liquidator's
// external path and still has collateral to release, or if either health
// score has dropped below 1.
func (s *Scheduler) processAccountUpdate(ctx context.Context, addr common.Address) {
	v, ok := s.vaultFor(addr)
	if !ok {
		return
	}

	if err := v.UpdateLiquidity(ctx); err != nil {
		s.handleUpdateError(ctx, v, err)
		return
	}
	s.clearFailedInitialization(v.Address())

	s.rescheduleAfterUpdate(v)

	if s.isUSDSDebt(v) {
		log.Info("scheduler: skipping position with USDS debt", "address", addr.Hex())
		return
	}

	canLiquidate, externallyLiquidated, maxRelease, _, _ := v.CheckLiquidationStatus(ctx)
	internalHS := v.InternalHealthScore()
	externalHS := v.ExternalHealthScore()

	if !(canLiquidate || (externallyLiquidated && maxRelease.Sign() > 0) || internalHS < 1 || externalHS < 1) {
		return
	}

	s.handleUnhealthyNotification(ctx, v, externallyLiquidated)
	s.handleLiquidation(ctx, v)
}

func (s *Scheduler) handleUpdateError(ctx context.Context, v vault.CollateralVault, err error) {
	s.trackFailedInitialization(v.Address(), v.Protocol().String())
	log.Warn("vault update failed", "address", v.Address().Hex(), "err", err)

	base, ok := v.(interface {
		ShouldNotifyError(time.Time) bool
	})
	if ok && base.ShouldNotifyError(time.Now()) {
		_ = s.notifier.Post(ctx, notify.ErrorMessage(v.Address(), err))
	}
}

func (s *Scheduler) handleUnhealthyNotification(ctx context.Context, v vault.CollateralVault, externallyLiquidated bool) {
	notifier, ok := v.(interface {
		ShouldNotifyUnhealthy(time.Time) bool
	})
	if !ok || !notifier.ShouldNotifyUnhealthy(time.Now()) {
		return
	}
	msg := notify.UnhealthyAccountMessage(s.spyBaseURL, v.Address(), externallyLiquidated,
		v.InternalHealthScore(), v.ExternalHealthScore(),
		v.InternalValueBorrowedUSD(), v.ExternalValueBorrowedUSD(), s.mentionIDs)
	_ = s.notifier.Post(ctx, msg)
}

// handleLiquidation simulates a liquidation for v and, if profitable,
// submits it and records the attempt via the audit recorder.
func (s *Scheduler) handleLiquidation(ctx context.Context, v vault.CollateralVault) {
	plan, err := v.CheckLiquidation(ctx)
	if err != nil {
		log.Debug("liquidation check did not produce a plan", "address", v.Address().Hex(), "err", err)
		return
	}
	if !plan.Profitable {
		return
	}

	_ = s.notifier.Post(ctx, notify.LiquidationOpportunityMessage(s.spyBaseURL, v.Address(), plan.ProfitUSD, plan.Internal))

	txHash, err := v.Liquidate(ctx, plan, s.signer)
	if s.recorder != nil {
		protocol := v.Protocol().String()
		_ = s.recorder.RecordAttempt(ctx, v.Address(), protocol, plan, txHash.Hex(), err)
	}
	if err != nil {
		log.Error("liquidation submission failed", "address", v.Address().Hex(), "err", err)
		return
	}

	s.confirmAndReport(v.Address(), txHash)
}

// confirmAndReport waits for txHash to be mined (if a confirmer is
// configured) before posting the final result notification, so the
// reported outcome reflects what actually landed on-chain rather than
// just a successful broadcast.
func (s *Scheduler) confirmAndReport(addr common.Address, txHash common.Hash) {
	if s.confirmer == nil {
		_ = s.notifier.Post(context.Background(), notify.LiquidationResultMessage(addr, txHash.Hex(), true))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		receipt, err := s.confirmer.WaitForTransaction(txHash)
		success := err == nil && receipt.Success()
		if err != nil {
			log.Warn("failed to confirm liquidation transaction", "address", addr.Hex(), "tx", txHash.Hex(), "err", err)
		}
		_ = s.notifier.Post(context.Background(), notify.LiquidationResultMessage(addr, txHash.Hex(), success))
	}()
}

// trackFailedInitialization records (or bumps) a failed-read tracking
// entry for addr, computing the next retry time as
// min(60 * 2^(attempts-1), maxInitBackoff).
func (s *Scheduler) trackFailedInitialization(addr common.Address, protocol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failed[addr]
	if !ok {
		f = &failedInit{address: addr, protocol: protocol}
		s.failed[addr] = f
	}
	f.attempts++

	backoffSeconds := 60 * math.Pow(2, float64(f.attempts-1))
	backoff := time.Duration(backoffSeconds) * time.Second
	if backoff > maxInitBackoff {
		backoff = maxInitBackoff
	}
	f.nextTry = time.Now().Add(backoff)
}

// clearFailedInitialization removes addr's failed-init tracking once it
// successfully updates again.
func (s *Scheduler) clearFailedInitialization(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, addr)
}

// periodicRetryFailedInitializations re-queues every vault with a due
// failed-init backoff every five minutes.
func (s *Scheduler) periodicRetryFailedInitializations(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(failedInitRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.retryFailedInitializations()
		}
	}
}

func (s *Scheduler) retryFailedInitializations() {
	now := time.Now()
	var due []common.Address

	s.mu.Lock()
	for addr, f := range s.failed {
		if !f.nextTry.After(now) {
			due = append(due, addr)
		}
	}
	s.mu.Unlock()

	for _, addr := range due {
		s.scheduleCheck(addr, now)
	}
}

// periodicReportLowHealthAccounts posts a single digest, on the
// configured interval, covering every vault below the report threshold
// on either health score.
func (s *Scheduler) periodicReportLowHealthAccounts(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cadence.LowHealthReportInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reportLowHealthAccounts(ctx)
		}
	}
}

func (s *Scheduler) reportLowHealthAccounts(ctx context.Context) {
	vaults := s.AccountsByHealthScore()
	entries := make([]notify.LowHealthAccountEntry, 0, len(vaults))
	for _, v := range vaults {
		entries = append(entries, notify.LowHealthAccountEntry{
			Address:               v.Address(),
			InternalHealthScore:   v.InternalHealthScore(),
			ExternalHealthScore:   v.ExternalHealthScore(),
			InternalBorrowedUSD:   v.InternalValueBorrowedUSD(),
			ExternalBorrowedUSD:   v.ExternalValueBorrowedUSD(),
			UnderlyingAssetSymbol: v.UnderlyingAssetSymbol(),
		})
	}
	msg := notify.LowHealthReportMessage(s.spyBaseURL, entries, s.cadence.HSSafe)
	_ = s.notifier.Post(ctx, msg)
}

// periodicSweepStaleAccounts re-enqueues vaults that have had no
// successful update in a long time, preventing a permanently-broken
// vault (e.g. one whose contract selfdestructed) from silently sitting
// outside the due queue forever. It never removes a tracked vault: a
// vault, once discovered, is tracked for the life of the process.
func (s *Scheduler) periodicSweepStaleAccounts(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepStaleAccounts()
		}
	}
}

func (s *Scheduler) sweepStaleAccounts() int {
	now := time.Now()
	var stale []common.Address

	s.mu.Lock()
	for addr, due := range s.nextDue {
		if now.Sub(due) > staleFailedInitThreshold {
			stale = append(stale, addr)
		}
	}
	s.mu.Unlock()

	for _, addr := range stale {
		jittered := now.Add(time.Duration(rand.Float64()*60) * time.Second)
		log.Warn("scheduler: found stale vault, re-queueing", "address", addr.Hex())
		s.mu.Lock()
		s.nextDue[addr] = jittered
		s.queue.push(addr, jittered)
		s.cond.Signal()
		s.mu.Unlock()
	}
	return len(stale)
}

// periodicCheckpoint persists the current vault set every minute.
func (s *Scheduler) periodicCheckpoint(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.saveState()
			return
		case <-s.stopCh:
			s.saveState()
			return
		case <-ticker.C:
			s.saveState()
		}
	}
}

func (s *Scheduler) saveState() {
	if s.checkpointPath == "" {
		return
	}
	vaults := s.snapshotVaults()
	vaultCheckpoints := make([]vault.VaultCheckpoint, 0, len(vaults))
	for _, v := range vaults {
		vaultCheckpoints = append(vaultCheckpoints, v.ToCheckpoint())
	}

	s.mu.Lock()
	queue := make([]checkpoint.QueueEntry, 0, len(s.nextDue))
	for addr, due := range s.nextDue {
		queue = append(queue, checkpoint.QueueEntry{Address: addr.Hex(), DueAt: due})
	}
	failedInits := make([]checkpoint.FailedInit, 0, len(s.failed))
	for _, f := range s.failed {
		failedInits = append(failedInits, checkpoint.FailedInit{
			Address:  f.address.Hex(),
			Protocol: f.protocol,
			Attempts: f.attempts,
			NextTry:  f.nextTry,
		})
	}
	lastSavedBlock := s.lastSavedBlock
	s.mu.Unlock()

	state := checkpoint.State{
		Vaults:                vaultCheckpoints,
		Queue:                 queue,
		LastSavedBlock:        lastSavedBlock,
		FailedInitializations: failedInits,
	}
	if err := checkpoint.Save(s.checkpointPath, state); err != nil {
		log.Error("failed to save scheduler checkpoint", "path", s.checkpointPath, "err", err)
	}
}

func (s *Scheduler) snapshotVaults() []vault.CollateralVault {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vault.CollateralVault, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, v)
	}
	return out
}

// AccountsByHealthScore returns every tracked vault sorted ascending by
// the tighter of its two health scores, for the /liquidation/allPositions
// endpoint and the low-health digest. Vaults with both health scores
// infinite (no debt on either side) are omitted entirely.
func (s *Scheduler) AccountsByHealthScore() []vault.CollateralVault {
	vaults := s.snapshotVaults()
	out := make([]vault.CollateralVault, 0, len(vaults))
	for _, v := range vaults {
		if !(math.IsInf(v.InternalHealthScore(), 1) && math.IsInf(v.ExternalHealthScore(), 1)) {
			out = append(out, v)
		}
	}
	sortByHealthScore(out)
	return out
}

func sortByHealthScore(vaults []vault.CollateralVault) {
	for i := 1; i < len(vaults); i++ {
		for j := i; j > 0 && vault.MinHealthScore(vaults[j-1]) > vault.MinHealthScore(vaults[j]); j-- {
			vaults[j-1], vaults[j] = vaults[j], vaults[j-1]
		}
	}
}

// RebuildFromCheckpoint re-registers vaults recovered from a checkpoint
// at their previously-known schedule, instead of treating them as brand
// new with an immediate due time. Callers must have already constructed
// live CollateralVault instances for each checkpoint entry (protocol
// detection and contract binding require live RPC access this package
// doesn't have).
func (s *Scheduler) RebuildFromCheckpoint(vaults map[common.Address]vault.CollateralVault, state *checkpoint.State) {
	if state == nil {
		return
	}
	now := time.Now()
	for _, cp := range state.Vaults {
		addr := common.HexToAddress(cp.Address)
		v, ok := vaults[addr]
		if !ok {
			continue
		}
		s.mu.Lock()
		s.vaults[addr] = v
		s.mu.Unlock()

		due := cp.TimeOfNextUpdate
		if due.Before(now) {
			due = now
		}
		s.scheduleCheck(addr, due)
	}

	for _, f := range state.FailedInitializations {
		addr := common.HexToAddress(f.Address)
		s.mu.Lock()
		s.failed[addr] = &failedInit{address: addr, protocol: f.Protocol, attempts: f.Attempts, nextTry: f.NextTry}
		s.mu.Unlock()
	}

	s.SetLastSavedBlock(state.LastSavedBlock)
}

// Submit attempts to submit an already-simulated plan for addr outside
// the normal dispatch cycle; used by manual/operator-triggered retries.
func (s *Scheduler) Submit(ctx context.Context, addr common.Address, plan *vault.LiquidationPlan) (string, error) {
	v, ok := s.vaultFor(addr)
	if !ok {
		return "", fmt.Errorf("scheduler: vault %s is not tracked", addr.Hex())
	}
	hash, err := v.Liquidate(ctx, plan, s.signer)
	return hash.Hex(), err
}
