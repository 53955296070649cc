package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

const testYAML = `
global:
  logs_path: /var/log/liqbot
  save_state_path: /var/lib/liqbot
  risk_dashboard_url: https://dashboard.example.com
  oneinch_base_url: https://api.1inch.dev/swap/v6.0
chains:
  1:
    name: mainnet
    rpc_env_var: MAINNET_RPC_URL
    evc: "0x0000000000000000000000000000000000000001"
    start_block: 100
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/liqbot", cfg.Global.LogsPath)
	require.Contains(t, cfg.Chains, int64(1))
	assert.Equal(t, "mainnet", cfg.Chains[1].Name)
	assert.Equal(t, uint64(100), cfg.Chains[1].StartBlock)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestResolveChain_MissingEnvVars(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = cfg.ResolveChain(1, func([]byte, string) (string, error) { return "", nil })
	assert.Error(t, err)
}

func TestResolveChain_UnknownChainID(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	setRequiredEnvVars(t)
	_, err = cfg.ResolveChain(999, func([]byte, string) (string, error) { return "deadbeef", nil })
	assert.Error(t, err)
}

func TestResolveChain_Success(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	setRequiredEnvVars(t)
	t.Setenv("MAINNET_RPC_URL", "https://rpc.example.com")
	t.Setenv("SLACK_MENTION_IDS", "U1, U2 ,")

	resolved, err := cfg.ResolveChain(1, func(key []byte, encrypted string) (string, error) {
		return "decrypted-key", nil
	})
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", resolved.RPCURL)
	assert.Equal(t, "decrypted-key", resolved.LiquidatorPrivateKey)
	assert.Equal(t, []string{"U1", "U2"}, resolved.SlackMentionIDs)
}

func TestGlobalYAML_RuntimeConfig_BuildsCadenceTable(t *testing.T) {
	g := GlobalYAML{
		TeenyUpperUSD:  1_000,
		MiniUpperUSD:   10_000,
		SmallUpperUSD:  100_000,
		MediumUpperUSD: 1_000_000,
		CadenceTable: CadenceTableYAML{
			Teeny: CadenceTierYAML{LiqSeconds: 30, HighSeconds: 60, SafeSeconds: 120},
			Large: CadenceTierYAML{LiqSeconds: 5, HighSeconds: 15, SafeSeconds: 30},
		},
		HSLiquidation:            1.0,
		HSHighRisk:               1.1,
		HSSafe:                   1.25,
		MaxUpdateIntervalSeconds: 3600,
	}

	rc := g.RuntimeConfig()

	assert.Equal(t, 1_000.0, rc.TeenyUpperUSD)
	assert.Equal(t, 1*time.Hour, rc.MaxUpdateInterval)
	assert.Equal(t, 30*time.Second, rc.Cadence[vault.SizeTeeny].LIQ)
	assert.Equal(t, 60*time.Second, rc.Cadence[vault.SizeTeeny].HIGH)
	assert.Equal(t, 5*time.Second, rc.Cadence[vault.SizeLarge].LIQ)
	assert.Equal(t, 1.0, rc.HSLiquidation)
}

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("LIQUIDATOR_EOA", "0xabc")
	t.Setenv("LIQUIDATOR_PRIVATE_KEY_ENC", "enc")
	t.Setenv("LIQUIDATOR_PRIVATE_KEY_KEY", "key")
	t.Setenv("ONEINCH_API_KEY", "apikey")
}
