package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/swapquote"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/contractclient"
)

// ProtocolClients bundles the raw material a vault adapter needs: the
// shared RPC connection and ABIs used to bind a fresh contract client to
// each newly-discovered vault address, plus the chain-wide clients
// (EVC, the shared health-state viewer, Aave's pool, both liquidator
// contracts) that are shared across every vault on a chain rather than
// bound per-vault.
type ProtocolClients struct {
	Eth     *ethclient.Client
	ChainID int64

	VaultABI        abi.ABI
	ERC20ABI        abi.ABI
	EVaultABI       abi.ABI // Euler EVault: asset/target/intermediate vaults all share this shape
	VaultManagerABI abi.ABI // Twyne vault manager: maxTwyneLTVs, oracleRouter
	OracleRouterABI abi.ABI // Euler's price oracle router: getQuote
	AaveWrapperABI  abi.ABI // AaveV3ATokenWrapper: ERC4626 surface plus latestAnswer/decimals

	EVC                   contractclient.ContractClient
	HealthStateViewer     contractclient.ContractClient
	AavePool              contractclient.ContractClient
	AaveOracle            contractclient.ContractClient
	EulerLiquidatorClient contractclient.ContractClient
	AaveLiquidatorClient  contractclient.ContractClient
	Swapper               swapquote.Client

	Cadence     RuntimeConfig
	USDSAddress common.Address
}

// DetectProtocol probes a vault contract to discover which lending
// protocol backs it: an Aave-backed vault exposes an aToken() accessor
// that an Euler-backed vault does not. The probe itself is a plain
// eth_call with no side effects, so a failure is treated as "not Aave"
// rather than propagated.
func DetectProtocol(ctx context.Context, vaultClient contractclient.ContractClient) Protocol {
	if _, err := vaultClient.Call(nil, "aToken"); err == nil {
		return ProtocolAave
	}
	return ProtocolEuler
}

// NewVaultForAddress binds a fresh contract client to address, detects
// the protocol backing it, resolves every dependent contract address the
// chosen adapter needs, and constructs the matching adapter.
func NewVaultForAddress(ctx context.Context, address common.Address, clients ProtocolClients) (CollateralVault, error) {
	vaultClient := contractclient.NewContractClient(clients.Eth, address, clients.VaultABI)
	protocol := DetectProtocol(ctx, vaultClient)

	switch protocol {
	case ProtocolEuler:
		return newEulerVaultForAddress(address, vaultClient, clients)
	case ProtocolAave:
		return newAaveVaultForAddress(address, vaultClient, clients)
	default:
		return nil, fmt.Errorf("%w: address %s", ErrProtocolDetection, address.Hex())
	}
}

// newEulerVaultForAddress mirrors EulerCollateralVault._init_protocol_contracts:
// every dependent contract address (the intermediate asset vault, the
// target Euler vault it borrows from, the vault manager, and the oracle
// router reached through it) is resolved up front rather than lazily, so
// the adapter itself never needs to perform discovery calls.
func newEulerVaultForAddress(address common.Address, vaultClient contractclient.ContractClient, clients ProtocolClients) (CollateralVault, error) {
	assetAddr, err := addressOf(vaultClient, "asset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler asset for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	assetClient := contractclient.NewContractClient(clients.Eth, assetAddr, clients.EVaultABI)

	underlyingAddr, err := addressOf(assetClient, "asset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler underlying asset for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	underlyingSymbol, err := stringOf(assetClient, "symbol")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler underlying symbol for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}

	targetAssetAddr, err := addressOf(vaultClient, "targetAsset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler target asset for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	targetVaultAddr, err := addressOf(vaultClient, "targetVault")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler target vault for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	targetVaultClient := contractclient.NewContractClient(clients.Eth, targetVaultAddr, clients.EVaultABI)

	intermediateVaultAddr, err := addressOf(vaultClient, "intermediateVault")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler intermediate vault for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	intermediateVaultClient := contractclient.NewContractClient(clients.Eth, intermediateVaultAddr, clients.EVaultABI)
	unitOfAccount, err := addressOf(intermediateVaultClient, "unitOfAccount")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler unit of account for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}

	vaultManagerAddr, err := addressOf(vaultClient, "twyneVaultManager")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler vault manager for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	vaultManagerClient := contractclient.NewContractClient(clients.Eth, vaultManagerAddr, clients.VaultManagerABI)

	oracleRouterAddr, err := addressOf(vaultManagerClient, "oracleRouter")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve euler oracle router for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	oracleRouterClient := contractclient.NewContractClient(clients.Eth, oracleRouterAddr, clients.OracleRouterABI)

	return NewEulerVault(address, clients.ChainID, clients.EVC, vaultClient, clients.HealthStateViewer, clients.Cadence,
		assetClient, targetVaultClient, vaultManagerClient, oracleRouterClient, clients.EulerLiquidatorClient, clients.Swapper,
		targetAssetAddr, underlyingAddr, unitOfAccount, clients.USDSAddress, underlyingSymbol), nil
}

// newAaveVaultForAddress mirrors AaveCollateralVault._init_protocol_contracts.
func newAaveVaultForAddress(address common.Address, vaultClient contractclient.ContractClient, clients ProtocolClients) (CollateralVault, error) {
	assetAddr, err := addressOf(vaultClient, "asset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve aave asset wrapper for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	assetClient := contractclient.NewContractClient(clients.Eth, assetAddr, clients.AaveWrapperABI)

	underlyingAddr, err := addressOf(vaultClient, "underlyingAsset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve aave underlying asset for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	underlyingClient := contractclient.NewContractClient(clients.Eth, underlyingAddr, clients.ERC20ABI)
	underlyingSymbol, err := stringOf(underlyingClient, "symbol")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve aave underlying symbol for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}

	targetAssetAddr, err := addressOf(vaultClient, "targetAsset")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve aave target asset for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}

	vaultManagerAddr, err := addressOf(vaultClient, "twyneVaultManager")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve aave vault manager for %s: %v", ErrProtocolDetection, address.Hex(), err)
	}
	vaultManagerClient := contractclient.NewContractClient(clients.Eth, vaultManagerAddr, clients.VaultManagerABI)

	return NewAaveVault(address, clients.ChainID, clients.EVC, vaultClient, clients.HealthStateViewer, clients.Cadence,
		clients.AavePool, assetClient, vaultManagerClient, clients.AaveLiquidatorClient, clients.Swapper,
		targetAssetAddr, underlyingAddr, clients.USDSAddress, underlyingSymbol), nil
}

func addressOf(client contractclient.ContractClient, method string) (common.Address, error) {
	out, err := client.Call(nil, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

// underlyingAssetOf reads the asset() address of an ERC4626-style vault.
func underlyingAssetOf(client contractclient.ContractClient) (common.Address, error) {
	return addressOf(client, "asset")
}

func stringOf(client contractclient.ContractClient, method string) (string, error) {
	out, err := client.Call(nil, method)
	if err != nil {
		return "", err
	}
	s, _ := out[0].(string)
	return s, nil
}
