package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"

	"github.com/0xTwyne/twyne-liquidation-bot/configs"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/chainmanager"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/checkpoint"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/db"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/httpapi"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/listener"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/notify"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/scheduler"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/swapquote"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/contractclient"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/txlistener"
	"github.com/0xTwyne/twyne-liquidation-bot/pkg/util"
)

func main() {
	// Best-effort: local/dev setups keep secrets in .env, production
	// deployments set them directly in the environment.
	_ = godotenv.Load()

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	vaultABI, err := util.LoadABI(cfg.Global.CVaultFactoryABIPath)
	if err != nil {
		panic(err)
	}
	erc20ABI, err := util.LoadABI(cfg.Global.ERC20ABIPath)
	if err != nil {
		panic(err)
	}
	evcABI, err := util.LoadABI(cfg.Global.EVCABIPath)
	if err != nil {
		panic(err)
	}
	eulerLiquidatorABI, err := util.LoadABI(cfg.Global.EulerLiquidatorABIPath)
	if err != nil {
		panic(err)
	}
	aaveLiquidatorABI, err := util.LoadABI(cfg.Global.AaveLiquidatorABIPath)
	if err != nil {
		panic(err)
	}
	aavePoolABI, err := util.LoadABI(cfg.Global.AavePoolABIPath)
	if err != nil {
		panic(err)
	}
	aaveOracleABI, err := util.LoadABI(cfg.Global.AaveOracleABIPath)
	if err != nil {
		panic(err)
	}
	evaultABI, err := util.LoadABI(cfg.Global.EVaultABIPath)
	if err != nil {
		panic(err)
	}
	vaultManagerABI, err := util.LoadABI(cfg.Global.VaultManagerABIPath)
	if err != nil {
		panic(err)
	}
	oracleRouterABI, err := util.LoadABI(cfg.Global.OracleRouterABIPath)
	if err != nil {
		panic(err)
	}
	aaveWrapperABI, err := util.LoadABI(cfg.Global.AaveWrapperABIPath)
	if err != nil {
		panic(err)
	}
	healthStateViewerABI, err := util.LoadABI(cfg.Global.HealthStateViewerABIPath)
	if err != nil {
		panic(err)
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")

	var notifier notify.Sink = notify.NoopSink{}
	if url := os.Getenv("NOTIFICATION_URL"); url != "" {
		notifier = notify.NewWebhookSink(url)
	}

	chains := make([]*chainmanager.Chain, 0, len(cfg.Chains))
	schedulersByChainID := make(map[int64]*scheduler.Scheduler, len(cfg.Chains))

	for chainID := range cfg.Chains {
		resolved, err := cfg.ResolveChain(chainID, util.Decrypt)
		if err != nil {
			panic(err)
		}

		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(resolved.LiquidatorPrivateKey, "0x"))
		if err != nil {
			panic(fmt.Errorf("chain %d: parse liquidator private key: %w", chainID, err))
		}

		eth, err := ethclient.Dial(resolved.RPCURL)
		if err != nil {
			panic(fmt.Errorf("chain %d: dial RPC: %w", chainID, err))
		}

		evcClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.EVC), evcABI)
		aavePoolClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.AavePoolAddress), aavePoolABI)
		aaveOracleClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.AaveOracleAddress), aaveOracleABI)
		eulerLiquidatorClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.EulerLiquidatorAddress), eulerLiquidatorABI)
		aaveLiquidatorClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.AaveLiquidatorAddress), aaveLiquidatorABI)
		healthStateViewerClient := contractclient.NewContractClient(eth, common.HexToAddress(resolved.Chain.HealthStateViewerAddress), healthStateViewerABI)

		swapper := swapquote.NewHTTPClient(resolved.Global.OneInchBaseURL, resolved.OneInchAPIKey, 1.0)

		runtimeCfg := resolved.Global.RuntimeConfig()
		usdsAddress := common.HexToAddress(resolved.Chain.USDSAddress)

		confirmer := txlistener.NewTxListener(eth,
			txlistener.WithPollInterval(3*time.Second),
			txlistener.WithTimeout(5*time.Minute),
		)

		var recorder scheduler.AuditRecorder
		if mysqlDSN != "" {
			mysqlRecorder, err := db.NewMySQLRecorder(mysqlDSN, chainID)
			if err != nil {
				panic(fmt.Errorf("chain %d: connect audit recorder: %w", chainID, err))
			}
			defer mysqlRecorder.Close()
			recorder = mysqlRecorder
		}

		checkpointPath := resolved.Global.SaveStatePath
		if checkpointPath != "" {
			checkpointPath = checkpointPath + fmt.Sprintf("/chain-%d.json", chainID)
		}

		sched := scheduler.New(privateKey, notifier, recorder, confirmer, resolved.Global.SpyDashboardURL, resolved.SlackMentionIDs, checkpointPath, runtimeCfg, usdsAddress)
		schedulersByChainID[chainID] = sched

		clients := vault.ProtocolClients{
			Eth:                   eth,
			ChainID:               chainID,
			VaultABI:              vaultABI,
			ERC20ABI:              erc20ABI,
			EVaultABI:             evaultABI,
			VaultManagerABI:       vaultManagerABI,
			OracleRouterABI:       oracleRouterABI,
			AaveWrapperABI:        aaveWrapperABI,
			EVC:                   evcClient,
			HealthStateViewer:     healthStateViewerClient,
			AavePool:              aavePoolClient,
			AaveOracle:            aaveOracleClient,
			EulerLiquidatorClient: eulerLiquidatorClient,
			AaveLiquidatorClient:  aaveLiquidatorClient,
			Swapper:               swapper,
			Cadence:               runtimeCfg,
			USDSAddress:           usdsAddress,
		}

		startBlock := resolved.Chain.StartBlock
		if checkpointPath != "" {
			restored, err := checkpoint.Load(checkpointPath)
			if err != nil {
				log.Warn("failed to load checkpoint, starting fresh", "chain_id", chainID, "err", err)
			}
			if restored != nil {
				rebuildFromCheckpoint(sched, restored, clients)
				if restored.LastSavedBlock > 0 {
					startBlock = restored.LastSavedBlock
				}
			}
		}

		factoryListener := listener.NewFactoryListener(
			eth,
			common.HexToAddress(resolved.Chain.CVaultFactory),
			common.HexToHash(resolved.Chain.VaultCreatedTopic),
			startBlock,
			15*time.Second,
		)

		chains = append(chains, &chainmanager.Chain{
			ID:        chainID,
			Name:      resolved.Name,
			Client:    eth,
			Scheduler: sched,
			Listener:  factoryListener,
			Clients:   clients,
		})
	}

	manager := chainmanager.NewManager(chains)

	var apiServer *http.Server
	if cfg.Global.HTTPListenAddr != "" {
		apiServer = &http.Server{
			Addr:    cfg.Global.HTTPListenAddr,
			Handler: httpapi.NewServer(schedulersByChainID).Handler(),
		}
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http api server failed", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("chain manager exited with error", "err", err)
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}
}

// rebuildFromCheckpoint re-constructs a live vault adapter for every
// checkpointed address (protocol detection requires live RPC access the
// checkpoint file itself doesn't carry) and hands them to the scheduler
// at their previously-known schedule.
func rebuildFromCheckpoint(sched *scheduler.Scheduler, restored *checkpoint.State, clients vault.ProtocolClients) {
	vaults := make(map[common.Address]vault.CollateralVault, len(restored.Vaults))
	for _, cp := range restored.Vaults {
		addr := common.HexToAddress(cp.Address)
		v, err := vault.NewVaultForAddress(context.Background(), addr, clients)
		if err != nil {
			log.Warn("failed to rebuild vault from checkpoint, vault is not tracked", "address", cp.Address, "err", err)
			continue
		}
		vaults[addr] = v
	}
	sched.RebuildFromCheckpoint(vaults, restored)
}
