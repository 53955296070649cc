package vault

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testCadenceConfig() RuntimeConfig {
	return RuntimeConfig{
		TeenyUpperUSD:  1_000,
		MiniUpperUSD:   10_000,
		SmallUpperUSD:  100_000,
		MediumUpperUSD: 1_000_000,
		Cadence: map[SizeBucket]SizeCadence{
			SizeTeeny:  {LIQ: 5 * time.Minute, HIGH: 30 * time.Minute, SAFE: 2 * time.Hour},
			SizeMini:   {LIQ: 2 * time.Minute, HIGH: 15 * time.Minute, SAFE: time.Hour},
			SizeSmall:  {LIQ: time.Minute, HIGH: 10 * time.Minute, SAFE: 30 * time.Minute},
			SizeMedium: {LIQ: 30 * time.Second, HIGH: 5 * time.Minute, SAFE: 15 * time.Minute},
			SizeLarge:  {LIQ: 15 * time.Second, HIGH: 2 * time.Minute, SAFE: 5 * time.Minute},
		},
		HSLiquidation:     1.0,
		HSHighRisk:        1.1,
		HSSafe:            1.5,
		MaxUpdateInterval: 4 * time.Hour,
	}
}

func assertWithinJitter(t *testing.T, got, want time.Duration) {
	t.Helper()
	lower := time.Duration(float64(want) * 0.85)
	upper := time.Duration(float64(want) * 1.15)
	assert.GreaterOrEqual(t, got, lower)
	assert.LessOrEqual(t, got, upper)
}

func TestGetTimeOfNextUpdate_LiquidatableUsesLIQInterval(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, 0.98, math.Inf(1), 50_000, false, now)
	assertWithinJitter(t, got.Sub(now), cfg.Cadence[SizeSmall].LIQ)
}

func TestGetTimeOfNextUpdate_ExternallyLiquidatedForcesLIQRegardlessOfHealth(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, 5.0, 5.0, 500_000, true, now)
	assertWithinJitter(t, got.Sub(now), cfg.Cadence[SizeMedium].LIQ)
}

func TestGetTimeOfNextUpdate_AtHighRiskBoundaryInterpolatesToHIGH(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, cfg.HSHighRisk, math.Inf(1), 500_000, false, now)
	assertWithinJitter(t, got.Sub(now), cfg.Cadence[SizeMedium].HIGH)
}

func TestGetTimeOfNextUpdate_AtOrAboveSafeUsesSAFEInterval(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, cfg.HSSafe, math.Inf(1), 2_000_000, false, now)
	assertWithinJitter(t, got.Sub(now), cfg.Cadence[SizeLarge].SAFE)
}

func TestGetTimeOfNextUpdate_MinOfTwoHealthScoresDrivesTheTighterInterval(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, cfg.HSSafe, 0.99, 500_000, false, now)
	assertWithinJitter(t, got.Sub(now), cfg.Cadence[SizeMedium].LIQ)
}

func TestGetTimeOfNextUpdate_NoDebtUsesMaxInterval(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, math.Inf(1), math.Inf(1), 0, false, now)
	assertWithinJitter(t, got.Sub(now), cfg.MaxUpdateInterval)
}

func TestGetTimeOfNextUpdate_CapsAtMaxUpdateInterval(t *testing.T) {
	cfg := testCadenceConfig()
	cfg.Cadence[SizeLarge] = SizeCadence{LIQ: time.Minute, HIGH: time.Minute, SAFE: 10 * time.Hour}
	now := time.Now()
	got := GetTimeOfNextUpdate(cfg, cfg.HSSafe, math.Inf(1), 2_000_000, false, now)
	// The cap applies before jitter, so the result can exceed it by up to 10%.
	assert.LessOrEqual(t, got.Sub(now), time.Duration(float64(cfg.MaxUpdateInterval)*1.1))
}

func TestGetTimeOfNextUpdate_LargerBucketChecksMoreOften(t *testing.T) {
	cfg := testCadenceConfig()
	now := time.Now()
	small := GetTimeOfNextUpdate(cfg, 0.5, 0.5, 50_000, false, now)
	large := GetTimeOfNextUpdate(cfg, 0.5, 0.5, 5_000_000, false, now)
	assert.Less(t, large, small)
}

func TestBucketForDebtUSD(t *testing.T) {
	cfg := testCadenceConfig()
	assert.Equal(t, SizeTeeny, cfg.BucketForDebtUSD(500))
	assert.Equal(t, SizeMini, cfg.BucketForDebtUSD(5_000))
	assert.Equal(t, SizeSmall, cfg.BucketForDebtUSD(50_000))
	assert.Equal(t, SizeMedium, cfg.BucketForDebtUSD(500_000))
	assert.Equal(t, SizeLarge, cfg.BucketForDebtUSD(5_000_000))
}
