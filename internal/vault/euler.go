package vault

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	bottypes "github.com/0xTwyne/twyne-liquidation-bot/pkg/types"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/swapquote"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/contractclient"
)

// maxTwyneFactor is the fixed-point denominator Twyne's vault manager
// expresses max LTVs in (e.g. 9000 == 90.00%).
const maxTwyneFactor = 10000

// internalSwapSlippageBps is the slippage tolerance requested on the
// unwind swap for an internal liquidation; external liquidations request
// zero slippage since the external liquidator already bore the
// unfavorable price move.
const internalSwapSlippageBps = 100

// EulerVault adapts an Euler-backed Twyne collateral vault. Liquidation
// eligibility and sizing come from the vault's own views
// (canLiquidate/isExternallyLiquidated/maxRelease/maxRepay/
// totalAssetsDepositedOrReserved); pricing comes from the Twyne vault
// manager's oracle router and the target Euler vault's own
// accountLiquidity view, not from any price assumption this adapter
// makes itself.
type EulerVault struct {
	BaseCollateralVault

	vaultClient        contractclient.ContractClient // the Twyne collateral vault itself
	assetClient        contractclient.ContractClient // intermediate ERC4626 vault wrapping the collateral
	targetVaultClient  contractclient.ContractClient // the Euler EVault this position borrows from
	vaultManagerClient contractclient.ContractClient
	oracleRouterClient contractclient.ContractClient
	liquidatorClient   contractclient.ContractClient
	swapper            swapquote.Client

	underlyingAssetAddress common.Address
	targetAssetAddress     common.Address
	unitOfAccount          common.Address
	usdsAddress            common.Address
}

// NewEulerVault constructs an Euler protocol adapter. The asset/target
// vault/vault manager/oracle router clients are resolved once by the
// registry at discovery time, mirroring _init_protocol_contracts'
// eager resolution of every dependent contract address up front.
func NewEulerVault(
	address common.Address, chainID int64,
	evc, vaultClient, healthViewer contractclient.ContractClient,
	cadence RuntimeConfig,
	assetClient, targetVaultClient, vaultManagerClient, oracleRouterClient contractclient.ContractClient,
	liquidatorClient contractclient.ContractClient,
	swapper swapquote.Client,
	targetAssetAddress, underlyingAssetAddress, unitOfAccount, usdsAddress common.Address,
	underlyingAssetSymbol string,
) *EulerVault {
	v := &EulerVault{
		vaultClient:            vaultClient,
		assetClient:            assetClient,
		targetVaultClient:      targetVaultClient,
		vaultManagerClient:     vaultManagerClient,
		oracleRouterClient:     oracleRouterClient,
		liquidatorClient:       liquidatorClient,
		swapper:                swapper,
		underlyingAssetAddress: underlyingAssetAddress,
		targetAssetAddress:     targetAssetAddress,
		unitOfAccount:          unitOfAccount,
		usdsAddress:            usdsAddress,
	}
	v.BaseCollateralVault = NewBaseCollateralVault(address, chainID, evc, vaultClient, healthViewer, cadence,
		func(context.Context) (common.Address, string, error) {
			return targetAssetAddress, underlyingAssetSymbol, nil
		})
	return v
}

func (v *EulerVault) Protocol() Protocol { return ProtocolEuler }

func (v *EulerVault) isUSDSDebt() bool {
	return strings.EqualFold(v.targetAssetAddress.Hex(), v.usdsAddress.Hex())
}

// collateralForBorrower implements get_collateral_for_borrower: the
// vault's own share balance priced through the oracle router against the
// target vault's fresh liability, handed to the vault contract's own
// collateralForBorrower view to learn how much collateral belongs to the
// borrower rather than the liquidator.
func (v *EulerVault) collateralForBorrower(ctx context.Context) (*big.Int, error) {
	cNativeOut, err := v.vaultClient.Call(nil, "balanceOf", v.Address())
	if err != nil {
		return nil, err
	}
	cNative, _ := cNativeOut[0].(*big.Int)

	cUSDOut, err := v.oracleRouterClient.Call(nil, "getQuote", cNative, v.assetClient.Address(), v.unitOfAccount)
	if err != nil {
		return nil, err
	}
	cUSD, _ := cUSDOut[0].(*big.Int)

	liqOut, err := v.targetVaultClient.Call(nil, "accountLiquidity", v.Address(), true)
	if err != nil {
		return nil, err
	}
	bUSD, _ := liqOut[1].(*big.Int)

	cForBOut, err := v.vaultClient.Call(nil, "collateralForBorrower", bUSD, cUSD)
	if err != nil {
		return nil, err
	}
	cForB, _ := cForBOut[0].(*big.Int)
	return cForB, nil
}

// CheckLiquidation implements calculate_liquidation_profit: USDS debt
// positions are always skipped, the five liquidation-eligibility views
// are read, the seized collateral amount is priced through the oracle
// router against the target vault's own fresh debt valuation, and an
// externally-liquidated position's profit is computed via the
// reward-share math in calculateExternalProfit rather than a plain
// collateral-minus-debt subtraction.
func (v *EulerVault) CheckLiquidation(ctx context.Context) (*LiquidationPlan, error) {
	if v.isUSDSDebt() {
		return nil, ErrNotLiquidatable
	}

	canLiquidate, externallyLiquidated, maxRelease, maxRepay, totalAssets := v.CheckLiquidationStatus(ctx)

	seized := new(big.Int).Sub(totalAssets, maxRelease)

	if !canLiquidate && !externallyLiquidated {
		return nil, ErrNotLiquidatable
	}
	if externallyLiquidated && maxRelease.Sign() == 0 {
		return nil, ErrNotLiquidatable
	}
	if seized.Sign() <= 0 {
		return nil, ErrNotLiquidatable
	}

	collateralValueOut, err := v.oracleRouterClient.Call(nil, "getQuote", seized, v.assetClient.Address(), v.unitOfAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: quote seized collateral for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	collateralValue, _ := collateralValueOut[0].(*big.Int)

	liqOut, err := v.targetVaultClient.Call(nil, "accountLiquidity", v.Address(), true)
	if err != nil {
		return nil, fmt.Errorf("%w: target vault account liquidity for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	debtValue, _ := liqOut[1].(*big.Int)

	var profit *big.Int
	if externallyLiquidated {
		profit, err = v.calculateExternalProfit(ctx, maxRepay, maxRelease, debtValue)
		if err != nil {
			return nil, fmt.Errorf("%w: external profit for %s: %v", ErrLiquidation, v.Address().Hex(), err)
		}
	} else {
		profit = new(big.Int).Sub(collateralValue, debtValue)
	}

	if profit.Sign() <= 0 && !externallyLiquidated {
		return nil, ErrNotLiquidatable
	}

	return v.buildLiquidationTx(ctx, canLiquidate, externallyLiquidated, maxRepay, maxRelease, totalAssets, profit)
}

// calculateExternalProfit implements _calculate_external_profit: the
// liquidator's reward is whatever collateral remains after carving out
// the borrower's own claim (computed via collateralForBorrower at the
// post-release collateral balance), priced against the target vault's
// debt.
func (v *EulerVault) calculateExternalProfit(ctx context.Context, maxRepay, maxRelease, debtValue *big.Int) (*big.Int, error) {
	maxLTVOut, err := v.vaultManagerClient.Call(nil, "maxTwyneLTVs", v.assetClient.Address())
	if err != nil {
		return nil, err
	}
	maxLTV, _ := maxLTVOut[0].(*big.Int)

	scaledRepay := new(big.Int).Mul(maxRepay, big.NewInt(maxTwyneFactor))
	scaledRepay.Div(scaledRepay, maxLTV)

	userCollateralUnderlyingOut, err := v.oracleRouterClient.Call(nil, "getQuote", scaledRepay, v.targetAssetAddress, v.underlyingAssetAddress)
	if err != nil {
		return nil, err
	}
	userCollateralUnderlying, _ := userCollateralUnderlyingOut[0].(*big.Int)

	collateralBalanceOut, err := v.assetClient.Call(nil, "balanceOf", v.Address())
	if err != nil {
		return nil, err
	}
	collateralBalance, _ := collateralBalanceOut[0].(*big.Int)

	userCollateralSharesOut, err := v.assetClient.Call(nil, "convertToShares", userCollateralUnderlying)
	if err != nil {
		return nil, err
	}
	userCollateralShares, _ := userCollateralSharesOut[0].(*big.Int)
	userCollateral := minBig(collateralBalance, userCollateralShares)

	releaseAmount := minBig(new(big.Int).Sub(collateralBalance, userCollateral), maxRelease)
	cNew := new(big.Int).Sub(collateralBalance, releaseAmount)

	cNewUSDOut, err := v.oracleRouterClient.Call(nil, "getQuote", cNew, v.assetClient.Address(), v.unitOfAccount)
	if err != nil {
		return nil, err
	}
	cNewUSD, _ := cNewUSDOut[0].(*big.Int)

	borrowerClaimOut, err := v.vaultClient.Call(nil, "collateralForBorrower", debtValue, cNewUSD)
	if err != nil {
		return nil, err
	}
	borrowerClaim, _ := borrowerClaimOut[0].(*big.Int)

	liquidatorRewardShares := new(big.Int).Sub(cNew, borrowerClaim)

	liquidatorRewardUSDOut, err := v.oracleRouterClient.Call(nil, "getQuote", liquidatorRewardShares, v.assetClient.Address(), v.unitOfAccount)
	if err != nil {
		return nil, err
	}
	liquidatorRewardUSD, _ := liquidatorRewardUSDOut[0].(*big.Int)

	return new(big.Int).Sub(liquidatorRewardUSD, debtValue), nil
}

// calculateSwapAmount implements _calculate_swap_amount: for an internal
// liquidation the swap covers whatever the vault holds beyond the
// borrower's own claim, minus a 0.1% safety margin; for an external
// liquidation it mirrors calculateExternalProfit's reward-share
// derivation but converts the final share amount back to underlying.
func (v *EulerVault) calculateSwapAmount(ctx context.Context, canLiquidate, externallyLiquidated bool, maxRepay, maxRelease, totalAssets *big.Int) (*big.Int, error) {
	if canLiquidate {
		cForB, err := v.collateralForBorrower(ctx)
		if err != nil {
			return nil, err
		}
		userOwnedOut, err := v.assetClient.Call(nil, "convertToAssets", new(big.Int).Sub(totalAssets, maxRelease))
		if err != nil {
			return nil, err
		}
		userOwnedUnderlying, _ := userOwnedOut[0].(*big.Int)

		cForBUnderlyingOut, err := v.assetClient.Call(nil, "previewMint", cForB)
		if err != nil {
			return nil, err
		}
		cForBUnderlying, _ := cForBUnderlyingOut[0].(*big.Int)

		safetyMargin := new(big.Int).Div(cForBUnderlying, big.NewInt(1000))
		result := new(big.Int).Sub(userOwnedUnderlying, cForBUnderlying)
		result.Sub(result, safetyMargin)
		return result, nil
	}

	if externallyLiquidated {
		if maxRepay.Sign() == 0 {
			return big.NewInt(0), nil
		}

		maxLTVOut, err := v.vaultManagerClient.Call(nil, "maxTwyneLTVs", v.assetClient.Address())
		if err != nil {
			return nil, err
		}
		maxLTV, _ := maxLTVOut[0].(*big.Int)

		scaledRepay := new(big.Int).Mul(maxRepay, big.NewInt(maxTwyneFactor))
		scaledRepay.Div(scaledRepay, maxLTV)

		userCollateralUnderlyingOut, err := v.oracleRouterClient.Call(nil, "getQuote", scaledRepay, v.targetAssetAddress, v.underlyingAssetAddress)
		if err != nil {
			return nil, err
		}
		userCollateralUnderlying, _ := userCollateralUnderlyingOut[0].(*big.Int)

		collateralBalanceOut, err := v.assetClient.Call(nil, "balanceOf", v.Address())
		if err != nil {
			return nil, err
		}
		collateralBalance, _ := collateralBalanceOut[0].(*big.Int)

		userCollateralSharesOut, err := v.assetClient.Call(nil, "convertToShares", userCollateralUnderlying)
		if err != nil {
			return nil, err
		}
		userCollateralShares, _ := userCollateralSharesOut[0].(*big.Int)
		userCollateral := minBig(collateralBalance, userCollateralShares)

		releaseAmount := minBig(new(big.Int).Sub(collateralBalance, userCollateral), maxRelease)
		cNew := new(big.Int).Sub(collateralBalance, releaseAmount)

		cNewUSDOut, err := v.oracleRouterClient.Call(nil, "getQuote", cNew, v.assetClient.Address(), v.unitOfAccount)
		if err != nil {
			return nil, err
		}
		cNewUSD, _ := cNewUSDOut[0].(*big.Int)

		liqOut, err := v.targetVaultClient.Call(nil, "accountLiquidity", v.Address(), true)
		if err != nil {
			return nil, err
		}
		debtValueFresh, _ := liqOut[1].(*big.Int)

		borrowerClaimOut, err := v.vaultClient.Call(nil, "collateralForBorrower", debtValueFresh, cNewUSD)
		if err != nil {
			return nil, err
		}
		borrowerClaim, _ := borrowerClaimOut[0].(*big.Int)

		liquidatorRewardShares := new(big.Int).Sub(cNew, borrowerClaim)

		amountOut, err := v.assetClient.Call(nil, "convertToAssets", liquidatorRewardShares)
		if err != nil {
			return nil, err
		}
		amount, _ := amountOut[0].(*big.Int)
		return amount, nil
	}

	return big.NewInt(0), nil
}

// buildLiquidationTx implements _build_liquidation_tx/_get_swap_data: it
// sizes the unwind swap, fetches 1inch calldata for it (skipping the
// quote entirely when nothing needs to be swapped), aborts via
// checkMinReturnCoversRepay if an externally-liquidated vault's quoted
// minReturn would settle at a loss, sizes the flash-borrowed collateral
// at 3x the borrower's own claim for the internal path, and nets gas
// cost out of the gross profit - clamping an externally-liquidated
// position's negative net profit to zero rather than aborting it, since
// unlike an internal liquidation, walking away from an
// already-externally-liquidated vault leaves nothing for this bot to
// gain by waiting.
func (v *EulerVault) buildLiquidationTx(ctx context.Context, canLiquidate, externallyLiquidated bool, maxRepay, maxRelease, totalAssets, profit *big.Int) (*LiquidationPlan, error) {
	amountInUnderlying, err := v.calculateSwapAmount(ctx, canLiquidate, externallyLiquidated, maxRepay, maxRelease, totalAssets)
	if err != nil {
		return nil, fmt.Errorf("%w: calculate swap amount for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}

	var calldata []byte
	if amountInUnderlying.Sign() <= 0 {
		calldata = []byte{}
	} else {
		slippageBps := internalSwapSlippageBps
		if externallyLiquidated {
			slippageBps = 0
		}
		calldata, err = v.swapper.GetSwapCalldata(ctx, swapquote.Request{
			ChainID:     v.chainID,
			FromToken:   v.underlyingAssetAddress,
			ToToken:     v.targetAssetAddress,
			AmountWei:   amountInUnderlying,
			FromAddr:    v.liquidatorClient.Address(),
			SlippageBps: slippageBps,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwap, err)
		}
	}

	if err := checkMinReturnCoversRepay(calldata, externallyLiquidated, maxRepay); err != nil {
		return nil, err
	}

	var flashAmount *big.Int
	if canLiquidate {
		cForB, err := v.collateralForBorrower(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: collateral for borrower for %s: %v", ErrLiquidation, v.Address().Hex(), err)
		}
		cForBUnderlyingOut, err := v.assetClient.Call(nil, "previewMint", cForB)
		if err != nil {
			return nil, fmt.Errorf("%w: preview mint for %s: %v", ErrLiquidation, v.Address().Hex(), err)
		}
		cForBUnderlying, _ := cForBUnderlyingOut[0].(*big.Int)
		flashAmount = new(big.Int).Mul(cForBUnderlying, big.NewInt(flashLoanMultiplier))
	}

	netProfitUSD := weiToUSD(profit) - estimateGasCostUSD(doubledGasPrice(), externalLiquidationGasEstimate)
	if netProfitUSD <= 0 && canLiquidate {
		return nil, ErrNotLiquidatable
	}
	if netProfitUSD < 0 && externallyLiquidated {
		netProfitUSD = 0
	}

	reason := "internal liquidation via liquidateCollateralVault"
	if !canLiquidate {
		reason = "externally-liquidated, settling via liquidateExtLiquidatedCollateralVault"
	}

	return &LiquidationPlan{
		Profitable:      true,
		ProfitUSD:       netProfitUSD,
		CollateralAsset: v.underlyingAssetAddress,
		DebtAsset:       v.targetAssetAddress,
		RepayAmount:     maxRepay,
		MinCollateral:   flashAmount,
		SwapCalldata:    calldata,
		Internal:        canLiquidate,
		Reason:          reason,
	}, nil
}

// Liquidate submits the liquidation transaction described by plan.
// Internal-path plans call liquidateCollateralVault with the flash
// amount computed in buildLiquidationTx (carried in plan.MinCollateral);
// external-path plans call liquidateExtLiquidatedCollateralVault with no
// flash amount at all, matching the two distinct liqbot entry points
// _build_liquidation_tx chooses between.
func (v *EulerVault) Liquidate(ctx context.Context, plan *LiquidationPlan, privateKey *ecdsa.PrivateKey) (common.Hash, error) {
	if plan.Internal {
		hash, err := v.liquidatorClient.Send(bottypes.StandardTx, nil, nil, privateKey, "liquidateCollateralVault",
			v.Address(), plan.MinCollateral, plan.SwapCalldata, big.NewInt(1))
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: submit internal liquidation: %v", ErrTransactionBuild, err)
		}
		return hash, nil
	}

	hash, err := v.liquidatorClient.Send(bottypes.StandardTx, nil, nil, privateKey, "liquidateExtLiquidatedCollateralVault",
		v.Address(), plan.SwapCalldata, big.NewInt(0))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: submit external liquidation: %v", ErrTransactionBuild, err)
	}
	return hash, nil
}

func (v *EulerVault) ToCheckpoint() VaultCheckpoint {
	return v.toCheckpoint(ProtocolEuler)
}
