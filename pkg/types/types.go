// Package types holds the small transaction-facing value types shared
// across the contract client, tx listener and liquidation packages.
package types

// Standard is the transaction kind passed to ContractClient.Send. The
// teacher's contract client only ever sent standard EIP-1559 transactions,
// but the type is kept as an enum so a future access-list or blob variant
// has somewhere to go.
type Standard int

const (
	// StandardTx is a plain dynamic-fee transaction.
	StandardTx Standard = iota
)

// TxReceipt mirrors the subset of a go-ethereum receipt the bot cares
// about, with the numeric fields pre-rendered as hex strings the way the
// teacher's txlistener returns them to callers.
type TxReceipt struct {
	TxHash            string
	BlockNumber       string
	GasUsed           string
	EffectiveGasPrice string
	Status            string // "0x1" success, "0x0" failure
}

// Success reports whether the receipt indicates a mined, successful
// transaction.
func (r *TxReceipt) Success() bool {
	return r != nil && r.Status == "0x1"
}
