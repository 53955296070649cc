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

// AaveVault adapts an Aave-backed Twyne collateral vault. Like Euler's
// adapter it has an internal (canLiquidate) and an external path, and both
// settle through a 1inch-quoted swap, priced off the asset wrapper's own
// latestAnswer/decimals feed rather than an oracle router.
type AaveVault struct {
	BaseCollateralVault

	vaultClient        contractclient.ContractClient // the Twyne collateral vault itself
	pool               contractclient.ContractClient // the Aave pool this position borrows from (vault's targetVault)
	assetClient        contractclient.ContractClient // the AaveV3ATokenWrapper the vault holds as collateral
	vaultManagerClient contractclient.ContractClient
	liquidatorClient   contractclient.ContractClient
	swapper            swapquote.Client

	underlyingAssetAddress common.Address
	targetAssetAddress     common.Address
	usdsAddress            common.Address
}

// NewAaveVault constructs an Aave protocol adapter.
func NewAaveVault(
	address common.Address, chainID int64,
	evc, vaultClient, healthViewer contractclient.ContractClient,
	cadence RuntimeConfig,
	pool, assetClient, vaultManagerClient, liquidatorClient contractclient.ContractClient,
	swapper swapquote.Client,
	targetAssetAddress, underlyingAssetAddress, usdsAddress common.Address,
	underlyingAssetSymbol string,
) *AaveVault {
	v := &AaveVault{
		vaultClient:            vaultClient,
		pool:                   pool,
		assetClient:            assetClient,
		vaultManagerClient:     vaultManagerClient,
		liquidatorClient:       liquidatorClient,
		swapper:                swapper,
		underlyingAssetAddress: underlyingAssetAddress,
		targetAssetAddress:     targetAssetAddress,
		usdsAddress:            usdsAddress,
	}
	v.BaseCollateralVault = NewBaseCollateralVault(address, chainID, evc, vaultClient, healthViewer, cadence,
		func(context.Context) (common.Address, string, error) {
			return targetAssetAddress, underlyingAssetSymbol, nil
		})
	return v
}

func (v *AaveVault) Protocol() Protocol { return ProtocolAave }

func (v *AaveVault) isUSDSDebt() bool {
	return strings.EqualFold(v.targetAssetAddress.Hex(), v.usdsAddress.Hex())
}

// collateralForBorrower implements get_collateral_for_borrower: the
// user-owned share of the vault's collateral (total assets minus what's
// reserved for release), priced through the wrapper's own
// latestAnswer/decimals feed, handed to the vault's own
// collateralForBorrower view against the pool's current total debt.
func (v *AaveVault) collateralForBorrower(ctx context.Context) (*big.Int, error) {
	accOut, err := v.pool.Call(nil, "getUserAccountData", v.Address())
	if err != nil {
		return nil, err
	}
	totalDebtBase, _ := accOut[1].(*big.Int)

	totalAssets, maxRelease, err := v.totalAssetsAndMaxRelease()
	if err != nil {
		return nil, err
	}
	userOwnedCollateral := new(big.Int).Sub(totalAssets, maxRelease)

	c, err := v.priceInBase(userOwnedCollateral)
	if err != nil {
		return nil, err
	}

	cForBOut, err := v.vaultClient.Call(nil, "collateralForBorrower", totalDebtBase, c)
	if err != nil {
		return nil, err
	}
	cForB, _ := cForBOut[0].(*big.Int)
	return cForB, nil
}

func (v *AaveVault) totalAssetsAndMaxRelease() (*big.Int, *big.Int, error) {
	totalAssetsOut, err := v.vaultClient.Call(nil, "totalAssetsDepositedOrReserved")
	if err != nil {
		return nil, nil, err
	}
	totalAssets, _ := totalAssetsOut[0].(*big.Int)

	maxReleaseOut, err := v.vaultClient.Call(nil, "maxRelease")
	if err != nil {
		return nil, nil, err
	}
	maxRelease, _ := maxReleaseOut[0].(*big.Int)
	return totalAssets, maxRelease, nil
}

// priceInBase converts an amount of wrapper shares into the Aave pool's
// base currency using the wrapper's own latestAnswer/decimals feed:
// amount * latestAnswer / 10**decimals.
func (v *AaveVault) priceInBase(amount *big.Int) (*big.Int, error) {
	latestAnswerOut, err := v.assetClient.Call(nil, "latestAnswer")
	if err != nil {
		return nil, err
	}
	latestAnswer, _ := latestAnswerOut[0].(*big.Int)

	decimalsOut, err := v.assetClient.Call(nil, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, _ := decimalsOut[0].(uint8)

	value := new(big.Int).Mul(amount, latestAnswer)
	return value.Div(value, pow10(decimals)), nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// CheckLiquidation implements calculate_liquidation_profit for Aave:
// USDS debt positions are always skipped, the five liquidation-
// eligibility views decide which of the internal or external path
// applies, and - unlike Euler - the internal path never computes a real
// USD profit figure, matching the original bot's Aave liquidator, which
// reports a fixed placeholder and relies entirely on the liquidator
// contract's own profitability enforcement.
func (v *AaveVault) CheckLiquidation(ctx context.Context) (*LiquidationPlan, error) {
	if v.isUSDSDebt() {
		return nil, ErrNotLiquidatable
	}

	canLiquidate, externallyLiquidated, maxRelease, maxRepay, totalAssets := v.CheckLiquidationStatus(ctx)
	if !canLiquidate && !externallyLiquidated {
		return nil, ErrNotLiquidatable
	}

	if canLiquidate {
		return v.buildInternalLiquidation(ctx, maxRepay)
	}
	return v.buildExternalLiquidation(ctx, maxRepay, maxRelease, totalAssets)
}

// buildInternalLiquidation implements _build_internal_liquidation: the
// swap covers whatever collateral remains after the borrower's own claim
// (computed via collateralForBorrower), minus a 0.1% safety margin, and
// the flash-borrowed amount is sized at 3x the underlying value of that
// borrower claim (previewMint of collateralForBorrower).
func (v *AaveVault) buildInternalLiquidation(ctx context.Context, maxRepay *big.Int) (*LiquidationPlan, error) {
	cForB, err := v.collateralForBorrower(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: collateral for borrower for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}

	underlyingForCForBOut, err := v.assetClient.Call(nil, "previewMint", cForB)
	if err != nil {
		return nil, fmt.Errorf("%w: preview mint for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	underlyingForCForB, _ := underlyingForCForBOut[0].(*big.Int)
	flashAmount := new(big.Int).Mul(underlyingForCForB, big.NewInt(flashLoanMultiplier))

	totalAssets, maxRelease, err := v.totalAssetsAndMaxRelease()
	if err != nil {
		return nil, fmt.Errorf("%w: total assets/max release for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	userOwnedCollateral := new(big.Int).Sub(totalAssets, maxRelease)
	remainingShares := new(big.Int).Sub(userOwnedCollateral, cForB)

	amountOut, err := v.assetClient.Call(nil, "convertToAssets", remainingShares)
	if err != nil {
		return nil, fmt.Errorf("%w: convert to assets for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	amountInUnderlying, _ := amountOut[0].(*big.Int)
	safetyMargin := new(big.Int).Div(amountInUnderlying, big.NewInt(1000))
	amountInUnderlying = new(big.Int).Sub(amountInUnderlying, safetyMargin)

	if amountInUnderlying.Sign() <= 0 {
		return nil, ErrNotLiquidatable
	}

	calldata, err := v.swapper.GetSwapCalldata(ctx, swapquote.Request{
		ChainID:     v.chainID,
		FromToken:   v.underlyingAssetAddress,
		ToToken:     v.targetAssetAddress,
		AmountWei:   amountInUnderlying,
		FromAddr:    v.liquidatorClient.Address(),
		SlippageBps: internalSwapSlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwap, err)
	}

	return &LiquidationPlan{
		Profitable:      true,
		ProfitUSD:       0,
		CollateralAsset: v.underlyingAssetAddress,
		DebtAsset:       v.targetAssetAddress,
		RepayAmount:     maxRepay,
		MinCollateral:   flashAmount,
		SwapCalldata:    calldata,
		Internal:        true,
		Reason:          "aave internal liquidation, profit not estimated by this adapter",
	}, nil
}

// buildExternalLiquidation implements _build_external_liquidation: a
// zero max_repay needs no swap at all; otherwise the liquidator's
// reward-share math mirrors Euler's external path exactly, substituting
// the wrapper's own price feed for an oracle router, and the
// unprofitable-swap guard still applies.
func (v *AaveVault) buildExternalLiquidation(ctx context.Context, maxRepay, maxRelease, totalAssets *big.Int) (*LiquidationPlan, error) {
	if maxRepay.Sign() == 0 {
		return &LiquidationPlan{
			Profitable:      true,
			ProfitUSD:       0,
			CollateralAsset: v.underlyingAssetAddress,
			DebtAsset:       v.targetAssetAddress,
			SwapCalldata:    []byte{},
			Internal:        false,
			Reason:          "external liquidation with zero debt, no swap needed",
		}, nil
	}

	collateralBalanceOut, err := v.assetClient.Call(nil, "balanceOf", v.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: collateral balance for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	collateralBalance, _ := collateralBalanceOut[0].(*big.Int)

	maxLTVOut, err := v.vaultManagerClient.Call(nil, "maxTwyneLTVs", v.assetClient.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: max twyne ltv for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	maxLTV, _ := maxLTVOut[0].(*big.Int)

	userCollateralValue := new(big.Int).Mul(maxRepay, big.NewInt(maxTwyneFactor))
	userCollateralValue.Div(userCollateralValue, maxLTV)

	latestAnswerOut, err := v.assetClient.Call(nil, "latestAnswer")
	if err != nil {
		return nil, fmt.Errorf("%w: latest answer for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	latestAnswer, _ := latestAnswerOut[0].(*big.Int)
	decimalsOut, err := v.assetClient.Call(nil, "decimals")
	if err != nil {
		return nil, fmt.Errorf("%w: decimals for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	decimals, _ := decimalsOut[0].(uint8)

	userCollateralShares := new(big.Int).Mul(userCollateralValue, pow10(decimals))
	userCollateralShares.Div(userCollateralShares, latestAnswer)
	userCollateralShares = minBig(collateralBalance, userCollateralShares)

	releaseAmount := minBig(new(big.Int).Sub(collateralBalance, userCollateralShares), maxRelease)
	cNew := new(big.Int).Sub(collateralBalance, releaseAmount)

	cNewUSD, err := v.priceInBase(cNew)
	if err != nil {
		return nil, fmt.Errorf("%w: price new collateral for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}

	accOut, err := v.pool.Call(nil, "getUserAccountData", v.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: account data for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	debtValue, _ := accOut[1].(*big.Int)

	borrowerClaimOut, err := v.vaultClient.Call(nil, "collateralForBorrower", debtValue, cNewUSD)
	if err != nil {
		return nil, fmt.Errorf("%w: collateral for borrower for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	borrowerClaim, _ := borrowerClaimOut[0].(*big.Int)
	liquidatorRewardShares := new(big.Int).Sub(cNew, borrowerClaim)

	amountOut, err := v.assetClient.Call(nil, "convertToAssets", liquidatorRewardShares)
	if err != nil {
		return nil, fmt.Errorf("%w: convert to assets for %s: %v", ErrLiquidation, v.Address().Hex(), err)
	}
	amountInUnderlying, _ := amountOut[0].(*big.Int)

	if amountInUnderlying.Sign() <= 0 {
		return nil, ErrNotLiquidatable
	}

	calldata, err := v.swapper.GetSwapCalldata(ctx, swapquote.Request{
		ChainID:     v.chainID,
		FromToken:   v.underlyingAssetAddress,
		ToToken:     v.targetAssetAddress,
		AmountWei:   amountInUnderlying,
		FromAddr:    v.liquidatorClient.Address(),
		SlippageBps: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwap, err)
	}

	if err := checkMinReturnCoversRepay(calldata, true, maxRepay); err != nil {
		return nil, err
	}

	return &LiquidationPlan{
		Profitable:      true,
		ProfitUSD:       0,
		CollateralAsset: v.underlyingAssetAddress,
		DebtAsset:       v.targetAssetAddress,
		RepayAmount:     maxRepay,
		SwapCalldata:    calldata,
		Internal:        false,
		Reason:          "aave external liquidation",
	}, nil
}

// Liquidate submits the liquidation transaction for plan: internal plans
// call liquidateCollateralVault with the flash amount computed in
// buildInternalLiquidation, external plans call
// liquidateExtLiquidatedCollateralVault.
func (v *AaveVault) Liquidate(ctx context.Context, plan *LiquidationPlan, privateKey *ecdsa.PrivateKey) (common.Hash, error) {
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

func (v *AaveVault) ToCheckpoint() VaultCheckpoint {
	return v.toCheckpoint(ProtocolAave)
}
