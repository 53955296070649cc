// Package contractclient wraps a go-ethereum abi.ABI and ethclient.Client
// pair into a small read/write facade, generalized from the teacher's
// router/ERC20 client to cover arbitrary view calls and signed sends
// against any contract: collateral vault factories, the EVC, ERC20
// tokens, price oracles and the liquidator contracts themselves.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	bottypes "github.com/0xTwyne/twyne-liquidation-bot/pkg/types"
)

// ContractClient is the minimal surface every bot component needs against
// a deployed contract: read state, decode raw calldata, and submit a
// signed call.
type ContractClient interface {
	Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Send(kind bottypes.Standard, value *big.Int, to *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	TransactionData(txHash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (map[string]interface{}, error)
	Address() common.Address
	Abi() abi.ABI
}

type client struct {
	eth     *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient binds an ABI to a deployed address over an existing
// ethclient connection.
func NewContractClient(eth *ethclient.Client, address common.Address, contractABI abi.ABI) ContractClient {
	return &client{eth: eth, address: address, abi: contractABI}
}

func (c *client) Address() common.Address {
	return c.address
}

func (c *client) Abi() abi.ABI {
	return c.abi
}

// Call performs an eth_call against method with args, ABI-encoding the
// input and decoding the output according to the method's declared
// return types.
func (c *client) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack call %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if caller != nil {
		msg.From = *caller
	}

	output, err := c.eth.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", method, err)
	}

	results, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack call %s: %w", method, err)
	}
	return results, nil
}

// Send signs and broadcasts a transaction invoking method with args.
// value is the amount of native currency attached (nil for a zero-value
// call). kind is currently ignored beyond the standard dynamic-fee path,
// kept for parity with the teacher's client and future access-list
// support.
func (c *client) Send(kind bottypes.Standard, value *big.Int, to *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	if privateKey == nil {
		return common.Hash{}, fmt.Errorf("send %s: nil private key", method)
	}

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack send %s: %w", method, err)
	}

	target := c.address
	if to != nil {
		target = *to
	}
	if value == nil {
		value = big.NewInt(0)
	}

	ctx := context.Background()
	fromAddr := crypto.PubkeyToAddress(privateKey.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	chainID, err := c.eth.NetworkID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch chain id: %w", err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest tip cap: %w", err)
	}

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  fromAddr,
		To:    &target,
		Value: value,
		Data:  input,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", method, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit + gasLimit/5,
		To:        &target,
		Value:     value,
		Data:      input,
	})

	signer := types.LatestSignerForChainID(chainID)
	signedTx, err := types.SignTx(tx, signer, privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx for %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast tx for %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

// TransactionData fetches the calldata of a previously mined transaction.
func (c *client) TransactionData(txHash common.Hash) ([]byte, error) {
	tx, _, err := c.eth.TransactionByHash(context.Background(), txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes raw calldata against this client's ABI,
// returning the method name under "method" and each argument keyed by
// its ABI name.
func (c *client) DecodeTransaction(data []byte) (map[string]interface{}, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode transaction: calldata too short")
	}

	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	args := map[string]interface{}{}
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack transaction args for %s: %w", method.Name, err)
	}
	args["method"] = method.Name
	return args, nil
}
