// Package vault implements the protocol-polymorphic collateral vault
// adapter: a uniform view over Euler-backed and Aave-backed borrower
// positions that the scheduler can poll, price, and liquidate without
// knowing which lending protocol actually backs a given vault.
package vault

import (
	"context"
	"crypto/ecdsa"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xTwyne/twyne-liquidation-bot/pkg/util"
)

// Protocol identifies which lending market a vault's collateral sits in.
type Protocol int

const (
	// ProtocolUnknown marks a vault whose protocol has not yet been
	// detected.
	ProtocolUnknown Protocol = iota
	ProtocolEuler
	ProtocolAave
)

func (p Protocol) String() string {
	switch p {
	case ProtocolEuler:
		return "euler"
	case ProtocolAave:
		return "aave"
	default:
		return "unknown"
	}
}

// SizeBucket buckets a position by its total outstanding debt, used to
// pick the base LIQ/HIGH/SAFE re-check interval triple before the health
// score tier interpolates within it.
type SizeBucket int

const (
	SizeTeeny SizeBucket = iota
	SizeMini
	SizeSmall
	SizeMedium
	SizeLarge
)

func (b SizeBucket) String() string {
	switch b {
	case SizeTeeny:
		return "teeny"
	case SizeMini:
		return "mini"
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	default:
		return "large"
	}
}

// SizeCadence holds the re-check interval used at each health tier for one
// size bucket: LIQ is used once a position is liquidatable or nearly so,
// HIGH once it is merely at elevated risk, SAFE otherwise.
type SizeCadence struct {
	LIQ  time.Duration
	HIGH time.Duration
	SAFE time.Duration
}

// RuntimeConfig carries every cadence interval and health threshold the
// scheduler's re-check cadence and the notification throttling depend on.
// It is built once per chain from config.yaml's global section and handed
// to every vault adapter at construction time, replacing the hardcoded
// tables this package used to carry internally.
type RuntimeConfig struct {
	// TeenyUpperUSD..MediumUpperUSD are the exclusive upper bounds (in
	// whole USD of combined internal+external outstanding debt) of the
	// four smallest buckets; anything at or above MediumUpperUSD falls
	// into SizeLarge.
	TeenyUpperUSD  float64
	MiniUpperUSD   float64
	SmallUpperUSD  float64
	MediumUpperUSD float64

	Cadence map[SizeBucket]SizeCadence

	// HSLiquidation, HSHighRisk and HSSafe are the health-score tier
	// boundaries: at or below HSLiquidation a position is liquidatable or
	// effectively so, below HSHighRisk it is at elevated risk, below
	// HSSafe it is still being checked more often than the floor SAFE
	// interval.
	HSLiquidation float64
	HSHighRisk    float64
	HSSafe        float64

	// MaxUpdateInterval caps every computed re-check gap, including the
	// no-debt idle interval.
	MaxUpdateInterval time.Duration

	// SmallPositionThresholdUSD, LowHealthReportInterval and
	// ErrorCooldown tune the notification throttling in base.go.
	// SmallPositionReportInterval replaces ErrorCooldown as the
	// error-notification cooldown for positions below
	// SmallPositionThresholdUSD.
	SmallPositionThresholdUSD    float64
	LowHealthReportInterval      time.Duration
	ErrorCooldown                time.Duration
	SmallPositionReportInterval  time.Duration
}

// BucketForDebtUSD classifies a position by its combined internal+external
// outstanding debt using cfg's configured bucket boundaries.
func (cfg RuntimeConfig) BucketForDebtUSD(totalBorrowedUSD float64) SizeBucket {
	switch {
	case totalBorrowedUSD < cfg.TeenyUpperUSD:
		return SizeTeeny
	case totalBorrowedUSD < cfg.MiniUpperUSD:
		return SizeMini
	case totalBorrowedUSD < cfg.SmallUpperUSD:
		return SizeSmall
	case totalBorrowedUSD < cfg.MediumUpperUSD:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// GetTimeOfNextUpdate is the scheduler's re-check cadence, the heart of
// the scheduler: a position with no debt on either side (both health
// scores infinite) is checked at the configured max interval. Otherwise
// the combined debt size picks a base LIQ/HIGH/SAFE interval triple, and
// the tighter of the two health scores' position within that triple -
// linearly interpolated between LIQ and HIGH, or between HIGH and SAFE -
// decides the gap until the next check. An externally-liquidated position
// always uses the LIQ interval regardless of health score. The gap is
// capped at MaxUpdateInterval and then jittered by +/-10% so vaults
// sharing a bucket/tier don't all wake up in lockstep; the jittered gap
// can therefore exceed MaxUpdateInterval by up to 10%.
func GetTimeOfNextUpdate(cfg RuntimeConfig, internalHS, externalHS, totalBorrowedUSD float64, externallyLiquidated bool, now time.Time) time.Time {
	if math.IsInf(internalHS, 1) && math.IsInf(externalHS, 1) {
		return now.Add(util.Jitter(cfg.MaxUpdateInterval))
	}

	triple := cfg.Cadence[cfg.BucketForDebtUSD(totalBorrowedUSD)]

	var gap time.Duration
	switch {
	case internalHS <= cfg.HSLiquidation || externalHS <= cfg.HSLiquidation || externallyLiquidated:
		gap = triple.LIQ
	case internalHS < cfg.HSHighRisk || externalHS < cfg.HSHighRisk:
		gap = minDuration(
			interpolate(triple.LIQ, triple.HIGH, internalHS, cfg.HSLiquidation, cfg.HSHighRisk),
			interpolate(triple.LIQ, triple.HIGH, externalHS, cfg.HSLiquidation, cfg.HSHighRisk),
		)
	case internalHS < cfg.HSSafe || externalHS < cfg.HSSafe:
		gap = minDuration(
			interpolate(triple.HIGH, triple.SAFE, internalHS, cfg.HSHighRisk, cfg.HSSafe),
			interpolate(triple.HIGH, triple.SAFE, externalHS, cfg.HSHighRisk, cfg.HSSafe),
		)
	default:
		gap = triple.SAFE
	}

	if gap > cfg.MaxUpdateInterval {
		gap = cfg.MaxUpdateInterval
	}

	return now.Add(util.Jitter(gap))
}

// interpolate linearly interpolates between lo and hi durations based on
// where hs falls between loThreshold and hiThreshold. A health score
// exactly at loThreshold yields lo, exactly at hiThreshold yields hi.
func interpolate(lo, hi time.Duration, hs, loThreshold, hiThreshold float64) time.Duration {
	ratio := (hs - loThreshold) / (hiThreshold - loThreshold)
	return lo + time.Duration(float64(hi-lo)*ratio)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// CollateralVault is the uniform adapter surface the scheduler drives.
// Euler and Aave implementations differ entirely in how they read health
// and build liquidation calldata, but present this one interface. Health
// is tracked as two independent scores, mirroring the Euler collateral
// vault's own internal-vs-external liquidation distinction: a position
// can be healthy against one measure of its liability and liquidatable
// against the other.
type CollateralVault interface {
	Address() common.Address
	Protocol() Protocol

	// UpdateLiquidity refreshes the vault's health scores, outstanding
	// liability, balance, and re-check schedule from the RPC endpoint.
	UpdateLiquidity(ctx context.Context) error

	// InternalHealthScore and ExternalHealthScore are the vault's two
	// independent collateral/liability ratios. math.Inf(1) means no
	// outstanding liability on that side.
	InternalHealthScore() float64
	ExternalHealthScore() float64

	// InternalValueBorrowedUSD and ExternalValueBorrowedUSD are the most
	// recently fetched outstanding liability on each side, priced in USD.
	InternalValueBorrowedUSD() float64
	ExternalValueBorrowedUSD() float64

	// BalanceOf is the vault's own share balance in its underlying asset
	// vault, used by the external-liquidation profit calculation.
	BalanceOf() *big.Int

	// TargetAsset is the asset the vault borrows against; used to detect
	// and skip USDS-denominated positions, which this bot never attempts
	// to liquidate.
	TargetAsset() common.Address

	// UnderlyingAssetSymbol is the human-readable symbol of the vault's
	// underlying collateral asset, used only in notification text.
	UnderlyingAssetSymbol() string

	// TimeOfNextUpdate is the vault's own next-due time, computed during
	// the most recent UpdateLiquidity call.
	TimeOfNextUpdate() time.Time

	// ExternallyLiquidated reports whether another liquidator has already
	// begun liquidating this vault through the external path.
	ExternallyLiquidated() bool

	// CheckLiquidationStatus reads the protocol's own liquidation views
	// directly: whether the vault is currently liquidatable, whether it
	// has already been picked up by another liquidator's external path,
	// and the maximum collateral release, maximum repay, and total
	// deposited-or-reserved assets those views report. This is the
	// trigger source for the scheduler's liquidation check, independent
	// of the health-score-based trigger.
	CheckLiquidationStatus(ctx context.Context) (canLiquidate, externallyLiquidated bool, maxRelease, maxRepay, totalAssets *big.Int)

	// CheckLiquidation simulates whether liquidating this vault right
	// now would be profitable, returning the simulation result without
	// submitting anything.
	CheckLiquidation(ctx context.Context) (*LiquidationPlan, error)

	// Liquidate submits the liquidation transaction described by plan,
	// signed with privateKey, and returns the resulting tx hash.
	Liquidate(ctx context.Context, plan *LiquidationPlan, privateKey *ecdsa.PrivateKey) (common.Hash, error)

	// ToCheckpoint serializes enough state to resume scheduling this
	// vault across a restart without a fresh on-chain read.
	ToCheckpoint() VaultCheckpoint
}

// LiquidationPlan is the result of simulating a liquidation: whether it
// is currently profitable, and if so, the parameters needed to submit it.
type LiquidationPlan struct {
	Profitable      bool
	ProfitUSD       float64
	CollateralAsset common.Address
	DebtAsset       common.Address
	RepayAmount     *big.Int
	MinCollateral   *big.Int
	SwapCalldata    []byte
	// Internal is true when the plan settles through the vault's own
	// internal liquidation path (liquidateCollateralVault, driven by
	// canLiquidate), and false when it settles through the
	// externally-liquidated path (liquidateExtLiquidatedCollateralVault).
	// It has nothing to do with which of the two health scores is at
	// risk; both paths can be taken regardless of which health score
	// triggered the check.
	Internal bool
	Reason   string
}

// MinHealthScore returns the tighter of a vault's two health scores, used
// for sorting positions by risk and anywhere the original single-score
// liquidation trigger is still a convenient shorthand.
func MinHealthScore(v CollateralVault) float64 {
	return math.Min(v.InternalHealthScore(), v.ExternalHealthScore())
}

// TotalValueBorrowedUSD returns the sum of a vault's internal and
// external outstanding liability, in USD.
func TotalValueBorrowedUSD(v CollateralVault) float64 {
	return v.InternalValueBorrowedUSD() + v.ExternalValueBorrowedUSD()
}

// VaultCheckpoint is the on-disk representation of a tracked vault,
// written and read by internal/checkpoint.
type VaultCheckpoint struct {
	Address             string    `json:"address"`
	Protocol            string    `json:"protocol"`
	ChainID             int64     `json:"chain_id"`
	InternalHealthScore float64   `json:"internal_health_score"`
	ExternalHealthScore float64   `json:"external_health_score"`
	TimeOfNextUpdate    time.Time `json:"time_of_next_update"`
	FailedInitCount     int       `json:"failed_init_count,omitempty"`
	LastInitAttempt     time.Time `json:"last_init_attempt,omitempty"`
}
