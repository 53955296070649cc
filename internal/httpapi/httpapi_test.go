package httpapi

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/notify"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/scheduler"
	"github.com/0xTwyne/twyne-liquidation-bot/internal/vault"
)

// fakeVault is a minimal in-memory vault.CollateralVault used to populate
// a scheduler without any RPC access.
type fakeVault struct {
	addr                common.Address
	protocol            vault.Protocol
	internalHealthScore float64
	externalHealthScore float64
	internalDebtUSD     float64
	externalDebtUSD     float64
}

func (f *fakeVault) Address() common.Address                  { return f.addr }
func (f *fakeVault) Protocol() vault.Protocol                  { return f.protocol }
func (f *fakeVault) UpdateLiquidity(ctx context.Context) error { return nil }
func (f *fakeVault) InternalHealthScore() float64              { return f.internalHealthScore }
func (f *fakeVault) ExternalHealthScore() float64              { return f.externalHealthScore }
func (f *fakeVault) InternalValueBorrowedUSD() float64         { return f.internalDebtUSD }
func (f *fakeVault) ExternalValueBorrowedUSD() float64         { return f.externalDebtUSD }
func (f *fakeVault) BalanceOf() *big.Int                       { return big.NewInt(0) }
func (f *fakeVault) TargetAsset() common.Address               { return common.Address{} }
func (f *fakeVault) UnderlyingAssetSymbol() string             { return "WETH" }
func (f *fakeVault) TimeOfNextUpdate() time.Time               { return time.Now().Add(time.Hour) }
func (f *fakeVault) ExternallyLiquidated() bool                { return false }
func (f *fakeVault) CheckLiquidationStatus(ctx context.Context) (bool, bool, *big.Int, *big.Int, *big.Int) {
	return false, false, big.NewInt(0), big.NewInt(0), big.NewInt(0)
}
func (f *fakeVault) CheckLiquidation(ctx context.Context) (*vault.LiquidationPlan, error) {
	return nil, nil
}
func (f *fakeVault) Liquidate(ctx context.Context, plan *vault.LiquidationPlan, privateKey *ecdsa.PrivateKey) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeVault) ToCheckpoint() vault.VaultCheckpoint {
	return vault.VaultCheckpoint{Address: f.addr.Hex(), Protocol: f.protocol.String()}
}

func newTestServer() *Server {
	sched := scheduler.New(nil, notify.NoopSink{}, nil, nil, "", nil, "", vault.RuntimeConfig{}, common.Address{})
	sched.AddVault(&fakeVault{
		addr:                common.HexToAddress("0x01"),
		protocol:            vault.ProtocolEuler,
		internalHealthScore: 1.02,
		externalHealthScore: 1.5,
		internalDebtUSD:     50_000,
	})
	sched.AddVault(&fakeVault{
		addr:                common.HexToAddress("0x02"),
		protocol:            vault.ProtocolAave,
		internalHealthScore: 2.5,
		externalHealthScore: 2.5,
		internalDebtUSD:     10_000,
	})
	return NewServer(map[int64]*scheduler.Scheduler{1: sched})
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("got status %q, want ok", body["status"])
	}
}

func TestHandleAllPositions_Success(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/liquidation/allPositions?chainId=1", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var views []positionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(views))
	}
	if views[0].Address != common.HexToAddress("0x01").Hex() {
		t.Fatalf("expected riskiest position first, got %s", views[0].Address)
	}
}

func TestHandleAllPositions_MissingChainID(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/liquidation/allPositions", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestHandleAllPositions_UnknownChainID(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/liquidation/allPositions?chainId=999", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}
