package vault

import (
	"math"
	"math/big"
)

// weiDecimals assumes 18-decimal pricing throughout; every asset amount
// handled here has already been normalized to an 18-decimal wei figure by
// the caller before being priced.
const weiDecimals = 18

// externalLiquidationGasEstimate is the gas units budgeted for an
// external-swap liquidation: repay, collateral seize, and the unwind
// swap itself.
const externalLiquidationGasEstimate = 450_000

// weiToUSD converts an 18-decimal fixed-point amount to a float by
// dividing by 1e18; it applies no price. Callers pass amounts that are
// already USD-denominated or 1e18-scaled health factors, except
// estimateGasCostUSD, which passes a wei gas cost and multiplies the
// result by ethUSDPrice.
func weiToUSD(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scaled := new(big.Float).Quo(f, new(big.Float).SetFloat64(math.Pow10(weiDecimals)))
	v, _ := scaled.Float64()
	return v
}

// doubledGasPrice doubles the current base fee heuristic before pricing a
// liquidation attempt: the simulated gas price needs headroom over the
// base fee snapshot used at simulation time so the profit estimate isn't
// invalidated by a gas spike between simulation and submission.
func doubledGasPrice() *big.Int {
	return new(big.Int).Mul(currentBaseFeeWei(), big.NewInt(2))
}

// currentBaseFeeWei is the base fee used to price liquidation gas: a
// fixed 20 gwei. Nothing in the bot replaces it with the chain's actual
// base fee.
var currentBaseFeeWei = func() *big.Int {
	return big.NewInt(20_000_000_000) // 20 gwei fallback
}

// estimateGasCostUSD prices gasUnits at gasPriceWei, converted to USD at
// the fixed ETH/USD price ethUSDPrice returns.
func estimateGasCostUSD(gasPriceWei *big.Int, gasUnits int64) float64 {
	costWei := new(big.Int).Mul(gasPriceWei, big.NewInt(gasUnits))
	return weiToUSD(costWei) * ethUSDPrice()
}

// ethUSDPrice is the ETH/USD price used to price gas: a fixed $3,000. No
// oracle read updates it.
var ethUSDPrice = func() float64 {
	return 3_000.0
}
