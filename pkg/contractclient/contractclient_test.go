package contractclient

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const sampleABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

func mustParseABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(sampleABIJSON))
	if err != nil {
		t.Fatalf("failed to parse sample ABI: %v", err)
	}
	return parsed
}

func TestAddressAndAbi(t *testing.T) {
	parsedABI := mustParseABI(t)
	addr := common.HexToAddress("0x000000000000000000000000000000000000ab")

	c := NewContractClient(nil, addr, parsedABI)
	if c.Address() != addr {
		t.Fatalf("got address %s, want %s", c.Address().Hex(), addr.Hex())
	}
	if _, ok := c.Abi().Methods["transfer"]; !ok {
		t.Fatal("expected transfer method in bound ABI")
	}
}

func TestDecodeTransaction_RoundTrip(t *testing.T) {
	parsedABI := mustParseABI(t)
	c := NewContractClient(nil, common.Address{}, parsedABI)

	to := common.HexToAddress("0x000000000000000000000000000000000000cd")
	amount, ok := new(big.Int).SetString("1000000000000000000", 10)
	if !ok {
		t.Fatal("failed to parse amount")
	}

	input, err := parsedABI.Pack("transfer", to, amount)
	if err != nil {
		t.Fatalf("failed to pack calldata: %v", err)
	}

	args, err := c.DecodeTransaction(input)
	if err != nil {
		t.Fatalf("DecodeTransaction returned error: %v", err)
	}
	if args["method"] != "transfer" {
		t.Fatalf("got method %v, want transfer", args["method"])
	}
	decodedTo, ok := args["to"].(common.Address)
	if !ok || decodedTo != to {
		t.Fatalf("got to %v, want %s", args["to"], to.Hex())
	}
}

func TestDecodeTransaction_TooShort(t *testing.T) {
	parsedABI := mustParseABI(t)
	c := NewContractClient(nil, common.Address{}, parsedABI)

	if _, err := c.DecodeTransaction([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for calldata shorter than a method selector")
	}
}

func TestDecodeTransaction_UnknownSelector(t *testing.T) {
	parsedABI := mustParseABI(t)
	c := NewContractClient(nil, common.Address{}, parsedABI)

	if _, err := c.DecodeTransaction([]byte{0xde, 0xad, 0xbe, 0xef, 0x00}); err == nil {
		t.Fatal("expected error for an unrecognized method selector")
	}
}
