package types

import "testing"

func TestTxReceipt_Success(t *testing.T) {
	cases := []struct {
		name    string
		receipt *TxReceipt
		want    bool
	}{
		{"nil receipt", nil, false},
		{"status 0x1", &TxReceipt{Status: "0x1"}, true},
		{"status 0x0", &TxReceipt{Status: "0x0"}, false},
		{"unexpected status", &TxReceipt{Status: "pending"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.receipt.Success(); got != tc.want {
				t.Fatalf("Success() = %v, want %v", got, tc.want)
			}
		})
	}
}
