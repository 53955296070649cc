package vault

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xTwyne/twyne-liquidation-bot/pkg/contractclient"
)

// BaseCollateralVault holds the state and behavior common to every
// protocol adapter: cached health/liability readings guarded by a mutex
// (the scheduler reads these from a different goroutine than the one
// that refreshes them), the shared contract clients every protocol reads
// health and liquidation eligibility from, and the per-address
// notification cooldown clock.
type BaseCollateralVault struct {
	mu sync.RWMutex

	address common.Address
	chainID int64

	evc           contractclient.ContractClient
	vaultInstance contractclient.ContractClient
	healthViewer  contractclient.ContractClient

	cadence RuntimeConfig

	// resolveStatic fetches the protocol-specific static fields (target
	// asset, underlying symbol) once and is supplied by each protocol
	// adapter's constructor, since resolving them differs by protocol but
	// caching and refresh timing is shared.
	resolveStatic func(ctx context.Context) (targetAsset common.Address, underlyingSymbol string, err error)
	staticLoaded  bool

	internalHealthScore       float64
	externalHealthScore       float64
	internalValueBorrowedUSD  float64
	externalValueBorrowedUSD float64
	balanceOf                 *big.Int
	targetAsset               common.Address
	underlyingAssetSymbol     string
	externallyLiquidated      bool
	timeOfNextUpdate          time.Time
	lastUpdated               time.Time

	lastUnhealthyNotify time.Time
	lastErrorNotify     time.Time
}

// NewBaseCollateralVault constructs the shared core for a protocol
// adapter, initialized to an unknown (infinite-health, zero-liability)
// state until the first UpdateLiquidity call. vaultInstance is the
// Twyne collateral vault contract itself (canLiquidate, isExternallyLiquidated,
// maxRelease, maxRepay, totalAssetsDepositedOrReserved, balanceOf,
// targetAsset are all read from it regardless of which lending protocol
// backs the vault); healthViewer is the shared health-state contract both
// protocols read their dual health score from.
func NewBaseCollateralVault(address common.Address, chainID int64, evc, vaultInstance, healthViewer contractclient.ContractClient, cadence RuntimeConfig, resolveStatic func(context.Context) (common.Address, string, error)) BaseCollateralVault {
	return BaseCollateralVault{
		address:             address,
		chainID:             chainID,
		evc:                 evc,
		vaultInstance:       vaultInstance,
		healthViewer:        healthViewer,
		cadence:             cadence,
		resolveStatic:       resolveStatic,
		internalHealthScore: math.Inf(1),
		externalHealthScore: math.Inf(1),
		timeOfNextUpdate:    time.Now(),
	}
}

func (b *BaseCollateralVault) Address() common.Address {
	return b.address
}

func (b *BaseCollateralVault) InternalHealthScore() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.internalHealthScore
}

func (b *BaseCollateralVault) ExternalHealthScore() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.externalHealthScore
}

func (b *BaseCollateralVault) InternalValueBorrowedUSD() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.internalValueBorrowedUSD
}

func (b *BaseCollateralVault) ExternalValueBorrowedUSD() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.externalValueBorrowedUSD
}

func (b *BaseCollateralVault) BalanceOf() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceOf
}

func (b *BaseCollateralVault) TargetAsset() common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.targetAsset
}

func (b *BaseCollateralVault) UnderlyingAssetSymbol() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.underlyingAssetSymbol
}

func (b *BaseCollateralVault) TimeOfNextUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timeOfNextUpdate
}

func (b *BaseCollateralVault) ExternallyLiquidated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.externallyLiquidated
}

// UpdateLiquidity refreshes every piece of state the scheduler depends
// on: the vault's static identity fields (resolved once and cached), its
// dual health score and liability, its share balance, its
// externally-liquidated flag, and finally its own next-due time. This
// mirrors the shared base-class update_liquidity/get_health_score/
// get_time_of_next_update trio; individual protocol adapters never
// override it, since none of it differs by protocol beyond which
// contracts resolveStatic and healthViewer are bound to.
func (b *BaseCollateralVault) UpdateLiquidity(ctx context.Context) error {
	if err := b.ensureStaticFields(ctx); err != nil {
		return err
	}
	if err := b.refreshHealthScore(ctx); err != nil {
		return err
	}
	b.refreshBalance(ctx)
	b.refreshExternallyLiquidated(ctx)
	b.refreshTimeOfNextUpdate()
	return nil
}

func (b *BaseCollateralVault) ensureStaticFields(ctx context.Context) error {
	b.mu.RLock()
	loaded := b.staticLoaded
	b.mu.RUnlock()
	if loaded {
		return nil
	}

	targetAsset, symbol, err := b.resolveStatic(ctx)
	if err != nil {
		return fmt.Errorf("%w: resolve static fields for %s: %v", ErrLiquidation, b.address.Hex(), err)
	}

	b.mu.Lock()
	b.targetAsset = targetAsset
	b.underlyingAssetSymbol = symbol
	b.staticLoaded = true
	b.mu.Unlock()
	return nil
}

func (b *BaseCollateralVault) refreshBalance(ctx context.Context) {
	out, err := b.vaultInstance.Call(nil, "balanceOf", b.address)
	if err != nil {
		return
	}
	bal, _ := out[0].(*big.Int)
	b.mu.Lock()
	b.balanceOf = bal
	b.mu.Unlock()
}

// refreshHealthScore implements get_health_score: a single read of the
// shared health-state viewer's health(address) view, which returns
// (externalHF, internalHF, externalLiability, internalLiability), all
// raw 1e18-scaled values. A negative liability on either side, or a zero
// liability on one side (forced to +Inf rather than divided by zero), or
// a negative health factor after scaling, all collapse both scores to
// +Inf: these are the contract's own error-signaling conventions, not
// genuinely healthy positions, but the bot treats "can't tell" the same
// as "nothing to liquidate" rather than guessing.
func (b *BaseCollateralVault) refreshHealthScore(ctx context.Context) error {
	out, err := b.healthViewer.Call(nil, "health", b.address)
	if err != nil {
		return fmt.Errorf("%w: health %s: %v", ErrLiquidation, b.address.Hex(), err)
	}
	if len(out) < 4 {
		return fmt.Errorf("%w: unexpected health() shape for %s", ErrLiquidation, b.address.Hex())
	}

	externalHFRaw, _ := out[0].(*big.Int)
	internalHFRaw, _ := out[1].(*big.Int)
	externalLiability, _ := out[2].(*big.Int)
	internalLiability, _ := out[3].(*big.Int)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.internalValueBorrowedUSD = weiToUSD(internalLiability)
	b.externalValueBorrowedUSD = weiToUSD(externalLiability)

	if bigSign(externalLiability) < 0 || bigSign(internalLiability) < 0 {
		b.internalHealthScore = math.Inf(1)
		b.externalHealthScore = math.Inf(1)
		return nil
	}

	externalHS := weiToUSD(externalHFRaw)
	internalHS := weiToUSD(internalHFRaw)
	if bigSign(externalLiability) == 0 {
		externalHS = math.Inf(1)
	}
	if bigSign(internalLiability) == 0 {
		internalHS = math.Inf(1)
	}

	if externalHS < 0 || internalHS < 0 {
		b.internalHealthScore = math.Inf(1)
		b.externalHealthScore = math.Inf(1)
		return nil
	}

	b.internalHealthScore = internalHS
	b.externalHealthScore = externalHS
	return nil
}

func bigSign(v *big.Int) int {
	if v == nil {
		return 0
	}
	return v.Sign()
}

func (b *BaseCollateralVault) refreshExternallyLiquidated(ctx context.Context) {
	out, err := b.vaultInstance.Call(nil, "isExternallyLiquidated")
	liq := false
	if err == nil && len(out) > 0 {
		liq, _ = out[0].(bool)
	}
	b.mu.Lock()
	b.externallyLiquidated = liq
	b.mu.Unlock()
}

// refreshTimeOfNextUpdate computes a fresh candidate next-due time and
// adopts it unless the vault's existing time_of_next_update is both
// sooner than the candidate and still in the future - the
// never-push-further-out invariant that keeps an already-promised
// imminent check from being bumped later by a subsequent, less urgent
// pass.
func (b *BaseCollateralVault) refreshTimeOfNextUpdate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	candidate := GetTimeOfNextUpdate(b.cadence, b.internalHealthScore, b.externalHealthScore,
		b.internalValueBorrowedUSD+b.externalValueBorrowedUSD, b.externallyLiquidated, now)

	if !(b.timeOfNextUpdate.Before(candidate) && b.timeOfNextUpdate.After(now)) {
		b.timeOfNextUpdate = candidate
	}
}

// CheckLiquidationStatus implements check_liquidation: five independent
// reads of the vault's own liquidation-eligibility views. Any single
// failed call (RPC hiccup, a view reverting on a vault mid-state-change)
// collapses the whole result to the safe "nothing to do here" defaults
// rather than propagating a half-populated result, matching the
// reference implementation's blanket try/except around all five calls.
func (b *BaseCollateralVault) CheckLiquidationStatus(ctx context.Context) (canLiquidate, externallyLiquidated bool, maxRelease, maxRepay, totalAssets *big.Int) {
	zero := big.NewInt(0)

	canOut, err := b.vaultInstance.Call(nil, "canLiquidate")
	if err != nil {
		return false, false, zero, zero, zero
	}
	extOut, err := b.vaultInstance.Call(nil, "isExternallyLiquidated")
	if err != nil {
		return false, false, zero, zero, zero
	}
	releaseOut, err := b.vaultInstance.Call(nil, "maxRelease")
	if err != nil {
		return false, false, zero, zero, zero
	}
	repayOut, err := b.vaultInstance.Call(nil, "maxRepay")
	if err != nil {
		return false, false, zero, zero, zero
	}
	totalOut, err := b.vaultInstance.Call(nil, "totalAssetsDepositedOrReserved")
	if err != nil {
		return false, false, zero, zero, zero
	}

	canLiquidate, _ = canOut[0].(bool)
	externallyLiquidated, _ = extOut[0].(bool)
	maxRelease, _ = releaseOut[0].(*big.Int)
	maxRepay, _ = repayOut[0].(*big.Int)
	totalAssets, _ = totalOut[0].(*big.Int)
	if maxRelease == nil {
		maxRelease = zero
	}
	if maxRepay == nil {
		maxRepay = zero
	}
	if totalAssets == nil {
		totalAssets = zero
	}
	return canLiquidate, externallyLiquidated, maxRelease, maxRepay, totalAssets
}

// ShouldNotifyUnhealthy reports whether enough time has passed since the
// last unhealthy-position notification for this vault to post another
// one, and if so marks the clock as reset. Larger positions (at or above
// SmallPositionThresholdUSD combined borrowed value) are always
// notified, never throttled; only positions below that threshold are
// cooldown-gated, since a missed notification window on a large position
// is far more costly than on a dust one.
func (b *BaseCollateralVault) ShouldNotifyUnhealthy(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	totalBorrowed := b.internalValueBorrowedUSD + b.externalValueBorrowedUSD
	if totalBorrowed >= b.cadence.SmallPositionThresholdUSD {
		return true
	}
	if now.Sub(b.lastUnhealthyNotify) < b.cadence.LowHealthReportInterval {
		return false
	}
	b.lastUnhealthyNotify = now
	return true
}

// ShouldNotifyError reports whether an error notification for this vault
// is due, and if so marks the clock as reset: positions at or above
// SmallPositionThresholdUSD combined borrowed value re-notify at most every
// ErrorCooldown, smaller ones at most every SmallPositionReportInterval.
func (b *BaseCollateralVault) ShouldNotifyError(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cooldown := b.cadence.ErrorCooldown
	if b.internalValueBorrowedUSD+b.externalValueBorrowedUSD < b.cadence.SmallPositionThresholdUSD {
		cooldown = b.cadence.SmallPositionReportInterval
	}
	if now.Sub(b.lastErrorNotify) < cooldown {
		return false
	}
	b.lastErrorNotify = now
	return true
}

func (b *BaseCollateralVault) toCheckpoint(protocol Protocol) VaultCheckpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return VaultCheckpoint{
		Address:             b.address.Hex(),
		Protocol:            protocol.String(),
		ChainID:             b.chainID,
		InternalHealthScore: b.internalHealthScore,
		ExternalHealthScore: b.externalHealthScore,
		TimeOfNextUpdate:    b.timeOfNextUpdate,
	}
}
