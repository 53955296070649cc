package vault

import (
	"fmt"
	"math/big"
)

// minReturnOffset is the byte offset of the minReturn field inside a
// 1inch-v6 swap calldata blob: after the 4-byte function selector it is
// the seventh 32-byte word (4 + 6*32 = 196), so 196..228 holds it.
const minReturnOffset = 196

// flashLoanMultiplier sizes the flash-borrowed collateral amount at 3x
// the underlying value of the borrower's own claim (previewMint of
// collateralForBorrower), matching the headroom the liquidator contract
// requires to cover slippage on the unwind swap.
const flashLoanMultiplier = 3

// safetyMarginBps is the 10 basis point haircut applied to a simulated
// swap output before it's accepted as a minReturn parameter.
const safetyMarginBps = 10

// applySafetyMargin shaves safetyMarginBps basis points (amount*10/10000,
// i.e. amount/1000) off amount, protecting against the simulated quote
// drifting slightly unfavorably before the swap actually executes.
func applySafetyMargin(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	margin := new(big.Int).Mul(amount, big.NewInt(safetyMarginBps))
	margin.Div(margin, big.NewInt(10_000))
	return new(big.Int).Sub(amount, margin)
}

// patchMinReturn overwrites the minReturn word of a 1inch-v6 swap
// calldata blob in place.
func patchMinReturn(calldata []byte, minReturn *big.Int) error {
	if len(calldata) < minReturnOffset+32 {
		return fmt.Errorf("calldata too short to contain minReturn field (%d bytes)", len(calldata))
	}
	word := make([]byte, 32)
	minReturn.FillBytes(word)
	copy(calldata[minReturnOffset:minReturnOffset+32], word)
	return nil
}

// readMinReturn decodes the minReturn word already present in a
// 1inch-v6 swap calldata blob, used by the unprofitable-swap guard to
// compare the aggregator's own quoted minimum return against max_repay
// before the liquidation is submitted.
func readMinReturn(calldata []byte) (*big.Int, error) {
	if len(calldata) < minReturnOffset+32 {
		return nil, fmt.Errorf("calldata too short to contain minReturn field (%d bytes)", len(calldata))
	}
	return new(big.Int).SetBytes(calldata[minReturnOffset : minReturnOffset+32]), nil
}

// checkMinReturnCoversRepay implements the unprofitable-swap guard: for
// an externally-liquidated vault with a nonzero max_repay, the quoted
// swap's minReturn must cover it, or an external liquidator who already
// intervened would be settled at a loss. A vault that is not
// externally-liquidated, or one with zero max_repay (nothing owed to the
// external liquidator), has nothing to guard against here.
func checkMinReturnCoversRepay(calldata []byte, externallyLiquidated bool, maxRepay *big.Int) error {
	if !externallyLiquidated || maxRepay == nil || maxRepay.Sign() == 0 {
		return nil
	}
	minReturn, err := readMinReturn(calldata)
	if err != nil {
		return err
	}
	if minReturn.Cmp(maxRepay) < 0 {
		return fmt.Errorf("%w: minReturn %s < max repay %s", ErrUnprofitableSwap, minReturn.String(), maxRepay.String())
	}
	return nil
}

// minBig returns the smaller of a and b.
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}
