package vault

import "errors"

// Sentinel errors this package wraps (with %w) into the errors it returns,
// so a caller can classify a failure with errors.Is. The scheduler does
// not match on them; it handles every adapter error the same way.
var (
	ErrConfigError       = errors.New("vault: configuration error")
	ErrProtocolDetection = errors.New("vault: could not detect protocol")
	ErrLiquidation       = errors.New("vault: liquidation simulation failed")
	ErrTransactionBuild  = errors.New("vault: failed to build liquidation transaction")
	ErrSwap              = errors.New("vault: swap quote failed")
	ErrNotLiquidatable   = errors.New("vault: position is not liquidatable")
	// ErrUnprofitableSwap is returned when a quoted swap's minReturn would
	// settle for less than the vault's max_repay, meaning an external
	// liquidator who already intervened would be executing at a loss; the
	// liquidation attempt is aborted rather than submitted.
	ErrUnprofitableSwap = errors.New("vault: quoted swap minReturn is below max repay")
)
