package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UnhealthyAccountMessage renders the notification posted the first time
// a vault crosses into the liquidatable health tier, carrying both health
// scores and both sides of the outstanding borrow rather than a single
// collapsed figure.
func UnhealthyAccountMessage(spyBaseURL string, addr common.Address, externallyLiquidated bool, internalHS, externalHS, internalBorrowedUSD, externalBorrowedUSD float64, mentionIDs []string) string {
	mentions := Mentions(mentionIDs)
	prefix := ""
	if mentions != "" {
		prefix = mentions + " "
	}
	return fmt.Sprintf("%s⚠️ Account %s is unhealthy (externally liquidated: %t, internal health %.4f, external health %.4f, internal borrowed $%.2f, external borrowed $%.2f) at %s. %s",
		prefix, addr.Hex(), externallyLiquidated, internalHS, externalHS, internalBorrowedUSD, externalBorrowedUSD,
		time.Now().Format("2006-01-02 15:04:05"), SpyLink(spyBaseURL, addr))
}

// LowHealthAccountEntry is one row of the periodic health digest: a
// tracked vault's address, both health scores, and both sides of its
// outstanding borrow, already sorted by the caller via the tighter of the
// two health scores.
type LowHealthAccountEntry struct {
	Address              common.Address
	InternalHealthScore   float64
	ExternalHealthScore   float64
	InternalBorrowedUSD   float64
	ExternalBorrowedUSD   float64
	UnderlyingAssetSymbol string
}

// LowHealthReportMessage renders a single digest covering every tracked
// vault below reportThreshold on either health score, instead of
// one notification per vault.
func LowHealthReportMessage(spyBaseURL string, entries []LowHealthAccountEntry, reportThreshold float64) string {
	var low []LowHealthAccountEntry
	for _, e := range entries {
		if e.InternalHealthScore < reportThreshold || e.ExternalHealthScore < reportThreshold {
			low = append(low, e)
		}
	}

	var b strings.Builder
	b.WriteString("*Account Health Report*\n\n")
	if len(low) == 0 {
		fmt.Fprintf(&b, "No accounts with health score below `%.4f` detected.\n", reportThreshold)
		return b.String()
	}

	for i, e := range low {
		totalBorrowed := e.InternalBorrowedUSD + e.ExternalBorrowedUSD
		fmt.Fprintf(&b, "%d. `%s` internal health: `%.4f`, external health: `%.4f`, total borrow: `$%.2f`, collateral asset: `%s`. %s\n",
			i+1, e.Address.Hex(), e.InternalHealthScore, e.ExternalHealthScore, totalBorrowed, e.UnderlyingAssetSymbol, SpyLink(spyBaseURL, e.Address))
	}
	return b.String()
}

// LiquidationOpportunityMessage renders the notification posted when the
// scheduler finds a profitable liquidation before submitting it.
func LiquidationOpportunityMessage(spyBaseURL string, addr common.Address, profitUSD float64, internal bool) string {
	path := "external swap"
	if internal {
		path = "internal swap"
	}
	return fmt.Sprintf("💰 Liquidation opportunity on %s: est. profit $%.2f (%s). %s",
		addr.Hex(), profitUSD, path, SpyLink(spyBaseURL, addr))
}

// LiquidationResultMessage renders the outcome of a submitted liquidation
// transaction.
func LiquidationResultMessage(addr common.Address, txHash string, success bool) string {
	status := "failed"
	if success {
		status = "succeeded"
	}
	return fmt.Sprintf("Liquidation of %s %s. tx=%s", addr.Hex(), status, txHash)
}

// ErrorMessage renders a recurring-error notification, cooled down per
// vault by the caller before this is posted.
func ErrorMessage(addr common.Address, err error) string {
	return fmt.Sprintf("🔥 Error processing %s: %v", addr.Hex(), err)
}
