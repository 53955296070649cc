// Package configs loads the bot's YAML configuration file and resolves
// it, together with required environment variables, into a fully
// populated per-chain configuration the rest of the bot can use without
// touching os.Getenv again.
package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

// requiredEnvVars are validated once per resolved chain, mirroring the
// original bot's fail-fast startup check.
var requiredEnvVars = []string{
	"LIQUIDATOR_EOA",
	"LIQUIDATOR_PRIVATE_KEY_ENC",
	"LIQUIDATOR_PRIVATE_KEY_KEY",
	"ONEINCH_API_KEY",
}

// Config is the top-level shape of config.yaml: global paths/URLs shared
// by every chain, and a per-chain-id map of chain-specific contract
// addresses and RPC selection.
type Config struct {
	Global GlobalYAML           `yaml:"global"`
	Chains map[int64]ChainYAML `yaml:"chains"`
}

// CadenceTierYAML is one size bucket's LIQ/HIGH/SAFE re-check interval
// triple, in whole seconds.
type CadenceTierYAML struct {
	LiqSeconds  int64 `yaml:"liq_seconds"`
	HighSeconds int64 `yaml:"high_seconds"`
	SafeSeconds int64 `yaml:"safe_seconds"`
}

// CadenceTableYAML is the full size-bucket re-check cadence table.
type CadenceTableYAML struct {
	Teeny  CadenceTierYAML `yaml:"teeny"`
	Mini   CadenceTierYAML `yaml:"mini"`
	Small  CadenceTierYAML `yaml:"small"`
	Medium CadenceTierYAML `yaml:"medium"`
	Large  CadenceTierYAML `yaml:"large"`
}

// GlobalYAML holds settings shared across every configured chain.
type GlobalYAML struct {
	LogsPath                 string `yaml:"logs_path"`
	SaveStatePath            string `yaml:"save_state_path"`
	EVCABIPath               string `yaml:"evc_abi_path"`
	CVaultFactoryABIPath     string `yaml:"cvault_factory_abi_path"`
	ERC20ABIPath             string `yaml:"erc20_abi_path"`
	EulerLiquidatorABIPath   string `yaml:"euler_liquidator_abi_path"`
	AaveLiquidatorABIPath    string `yaml:"aave_liquidator_abi_path"`
	AavePoolABIPath          string `yaml:"aave_pool_abi_path"`
	AaveOracleABIPath        string `yaml:"aave_oracle_abi_path"`
	EVaultABIPath            string `yaml:"evault_abi_path"`
	VaultManagerABIPath      string `yaml:"vault_manager_abi_path"`
	OracleRouterABIPath      string `yaml:"oracle_router_abi_path"`
	AaveWrapperABIPath       string `yaml:"aave_wrapper_abi_path"`
	HealthStateViewerABIPath string `yaml:"health_state_viewer_abi_path"`
	RiskDashboardURL         string `yaml:"risk_dashboard_url"`
	SpyDashboardURL          string `yaml:"spy_dashboard_url"`
	OneInchBaseURL           string `yaml:"oneinch_base_url"`
	HTTPListenAddr           string `yaml:"http_listen_addr"`

	// CadenceTable and the bucket boundaries below it drive
	// vault.GetTimeOfNextUpdate's re-check cadence; see
	// vault.RuntimeConfig for field semantics.
	CadenceTable   CadenceTableYAML `yaml:"cadence_table"`
	TeenyUpperUSD  float64          `yaml:"teeny_upper_usd"`
	MiniUpperUSD   float64          `yaml:"mini_upper_usd"`
	SmallUpperUSD  float64          `yaml:"small_upper_usd"`
	MediumUpperUSD float64          `yaml:"medium_upper_usd"`

	HSLiquidation float64 `yaml:"hs_liquidation"`
	HSHighRisk    float64 `yaml:"hs_high_risk"`
	HSSafe        float64 `yaml:"hs_safe"`

	MaxUpdateIntervalSeconds int64 `yaml:"max_update_interval_seconds"`
	SaveIntervalSeconds      int64 `yaml:"save_interval_seconds"`
	ScanIntervalSeconds      int64 `yaml:"scan_interval_seconds"`
	RetryDelaySeconds        int64 `yaml:"retry_delay_seconds"`
	BatchSize                int   `yaml:"batch_size"`
	BatchIntervalSeconds     int64 `yaml:"batch_interval_seconds"`

	SmallPositionThresholdUSD          float64 `yaml:"small_position_threshold_usd"`
	LowHealthReportIntervalSeconds     int64   `yaml:"low_health_report_interval_seconds"`
	ErrorCooldownSeconds               int64   `yaml:"error_cooldown_seconds"`
	SmallPositionReportIntervalSeconds int64   `yaml:"small_position_report_interval_seconds"`
}

// RuntimeConfig builds the vault package's cadence/threshold lookup from
// this config's YAML fields.
func (g GlobalYAML) RuntimeConfig() vault.RuntimeConfig {
	tier := func(t CadenceTierYAML) vault.SizeCadence {
		return vault.SizeCadence{
			LIQ:  time.Duration(t.LiqSeconds) * time.Second,
			HIGH: time.Duration(t.HighSeconds) * time.Second,
			SAFE: time.Duration(t.SafeSeconds) * time.Second,
		}
	}
	return vault.RuntimeConfig{
		TeenyUpperUSD:  g.TeenyUpperUSD,
		MiniUpperUSD:   g.MiniUpperUSD,
		SmallUpperUSD:  g.SmallUpperUSD,
		MediumUpperUSD: g.MediumUpperUSD,
		Cadence: map[vault.SizeBucket]vault.SizeCadence{
			vault.SizeTeeny:  tier(g.CadenceTable.Teeny),
			vault.SizeMini:   tier(g.CadenceTable.Mini),
			vault.SizeSmall:  tier(g.CadenceTable.Small),
			vault.SizeMedium: tier(g.CadenceTable.Medium),
			vault.SizeLarge:  tier(g.CadenceTable.Large),
		},
		HSLiquidation:                      g.HSLiquidation,
		HSHighRisk:                         g.HSHighRisk,
		HSSafe:                             g.HSSafe,
		MaxUpdateInterval:                  time.Duration(g.MaxUpdateIntervalSeconds) * time.Second,
		SmallPositionThresholdUSD:          g.SmallPositionThresholdUSD,
		LowHealthReportInterval:            time.Duration(g.LowHealthReportIntervalSeconds) * time.Second,
		ErrorCooldown:                      time.Duration(g.ErrorCooldownSeconds) * time.Second,
		SmallPositionReportInterval:        time.Duration(g.SmallPositionReportIntervalSeconds) * time.Second,
	}
}

// ChainYAML holds one chain's contract addresses and RPC selection.
type ChainYAML struct {
	Name                     string `yaml:"name"`
	RPCEnvVar                string `yaml:"rpc_env_var"`
	EVC                      string `yaml:"evc"`
	CVaultFactory            string `yaml:"cvault_factory"`
	USDC                     string `yaml:"usdc"`
	WETH                     string `yaml:"weth"`
	EulerLiquidatorAddress   string `yaml:"euler_liquidator_address"`
	AaveLiquidatorAddress    string `yaml:"aave_liquidator_address"`
	AavePoolAddress          string `yaml:"aave_pool_address"`
	AaveOracleAddress        string `yaml:"aave_oracle_address"`
	HealthStateViewerAddress string `yaml:"health_state_viewer_address"`
	USDSAddress              string `yaml:"usds_address"`
	VaultCreatedTopic        string `yaml:"vault_created_topic"`
	StartBlock               uint64 `yaml:"start_block"`
}

// LoadConfig reads and parses config.yaml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// ResolvedChain is a single chain's configuration with every environment
// variable already resolved: RPC URL, decrypted signer key material, and
// notification settings.
type ResolvedChain struct {
	ChainID              int64
	Name                 string
	RPCURL               string
	LiquidatorEOA        string
	LiquidatorPrivateKey string // decrypted hex private key, no 0x prefix required
	OneInchAPIKey        string
	NotificationURL      string
	SlackMentionIDs      []string
	Chain                ChainYAML
	Global               GlobalYAML
}

// ResolveChain validates required env vars and assembles a ResolvedChain
// for chainID, decrypting the liquidator private key with the
// LIQUIDATOR_PRIVATE_KEY_ENC / LIQUIDATOR_PRIVATE_KEY_KEY pair via
// decrypt.
func (c *Config) ResolveChain(chainID int64, decrypt func(key []byte, encrypted string) (string, error)) (*ResolvedChain, error) {
	chain, ok := c.Chains[chainID]
	if !ok {
		return nil, fmt.Errorf("configs: no configuration found for chain id %d", chainID)
	}

	if missing := missingEnvVars(); len(missing) > 0 {
		return nil, fmt.Errorf("configs: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	rpcURL := os.Getenv(chain.RPCEnvVar)
	if rpcURL == "" {
		return nil, fmt.Errorf("configs: missing RPC URL for chain %s, env var %s not set", chain.Name, chain.RPCEnvVar)
	}

	privateKey, err := decrypt([]byte(os.Getenv("LIQUIDATOR_PRIVATE_KEY_KEY")), os.Getenv("LIQUIDATOR_PRIVATE_KEY_ENC"))
	if err != nil {
		return nil, fmt.Errorf("configs: failed to decrypt liquidator private key: %w", err)
	}

	var mentionIDs []string
	for _, id := range strings.Split(os.Getenv("SLACK_MENTION_IDS"), ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			mentionIDs = append(mentionIDs, id)
		}
	}

	return &ResolvedChain{
		ChainID:              chainID,
		Name:                 chain.Name,
		RPCURL:               rpcURL,
		LiquidatorEOA:        os.Getenv("LIQUIDATOR_EOA"),
		LiquidatorPrivateKey: privateKey,
		OneInchAPIKey:        os.Getenv("ONEINCH_API_KEY"),
		NotificationURL:      os.Getenv("NOTIFICATION_URL"),
		SlackMentionIDs:      mentionIDs,
		Chain:                chain,
		Global:               c.Global,
	}, nil
}

func missingEnvVars() []string {
	var missing []string
	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
