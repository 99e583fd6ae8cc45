// Package data_test provides tests for the candle providers.
package data_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/data"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourlyBars(n int, from time.Time, price int64) []*types.OHLCV {
	bars := make([]*types.OHLCV, n)
	for i := range bars {
		p := decimal.NewFromInt(price + int64(i))
		bars[i] = &types.OHLCV{
			Timestamp: from.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p.Add(decimal.NewFromInt(1)),
			Low:       p.Sub(decimal.NewFromInt(1)),
			Close:     p,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.SaveOHLCV("BTC/USDT", types.Timeframe1h, hourlyBars(10, base, 100)); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	bars, err := store.LoadOHLCV(ctx, "BTCUSDT", types.Timeframe1h, base.Add(2*time.Hour), base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if len(bars) != 4 {
		t.Fatalf("Expected 4 bars in range, got %d", len(bars))
	}
	if !bars[0].Close.Equal(decimal.NewFromInt(102)) {
		t.Errorf("Expected first close 102, got %s", bars[0].Close)
	}

	// A fresh store reads files and metadata from disk.
	reopened, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	bars, err = reopened.LoadOHLCV(ctx, "btcusdt", types.Timeframe1h, base, base.Add(24*time.Hour))
	if err != nil || len(bars) != 10 {
		t.Fatalf("Expected 10 bars after reopen, got %d (%v)", len(bars), err)
	}
	startDate, endDate, err := reopened.GetDataRange("BTCUSDT", types.Timeframe1h)
	if err != nil || !startDate.Equal(base) || !endDate.Equal(base.Add(9*time.Hour)) {
		t.Errorf("Unexpected range %s - %s (%v)", startDate, endDate, err)
	}
	if syms := reopened.GetAvailableSymbols(); len(syms) != 1 || syms[0] != "BTCUSDT_1h" {
		t.Errorf("Unexpected symbols %v", syms)
	}
}

func TestStoreMergesOverlappingSaves(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.SaveOHLCV("ETHUSDT", types.Timeframe1h, hourlyBars(5, base, 100)); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveOHLCV("ETHUSDT", types.Timeframe1h, hourlyBars(5, base.Add(3*time.Hour), 500)); err != nil {
		t.Fatal(err)
	}

	bars, _ := store.LoadOHLCV(context.Background(), "ETHUSDT", types.Timeframe1h, base, base.Add(24*time.Hour))
	if len(bars) != 8 {
		t.Fatalf("Expected 8 merged bars, got %d", len(bars))
	}
	if !bars[3].Close.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Newer bar should replace older one, got close %s", bars[3].Close)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("Bars out of order at %d", i)
		}
	}

	if !store.Covers("ETHUSDT", types.Timeframe1h, base, base.Add(7*time.Hour)) {
		t.Error("Expected stored range to be covered")
	}
	if store.Covers("ETHUSDT", types.Timeframe1h, base, base.Add(48*time.Hour)) {
		t.Error("Range beyond stored data must not be covered")
	}
}

func TestStoreMissingSeriesIsEmpty(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	bars, err := store.LoadOHLCV(context.Background(), "SOLUSDT", types.Timeframe1h, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("Expected no bars, got %d", len(bars))
	}
}

func TestSampleFallbackIsDeterministic(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir(), data.WithSampleFallback())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	end := base.Add(99 * time.Hour)
	a, _ := store.LoadOHLCV(context.Background(), "BTCUSDT", types.Timeframe1h, base, end)
	b, _ := store.LoadOHLCV(context.Background(), "BTCUSDT", types.Timeframe1h, base, end)

	if len(a) != 100 || len(b) != 100 {
		t.Fatalf("Expected 100 bars, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Close.Equal(b[i].Close) {
			t.Fatalf("Sample series differs at %d", i)
		}
		if a[i].High.LessThan(a[i].Close) || a[i].Low.GreaterThan(a[i].Close) {
			t.Fatalf("Inconsistent sample bar at %d", i)
		}
	}

	report := data.NewQualityValidator(zap.NewNop()).Validate(a, "BTCUSDT", types.Timeframe1h)
	if !report.IsUsable {
		t.Errorf("Sample data should pass quality checks: %+v", report.Issues)
	}
}

type countingProvider struct {
	bars  []*types.OHLCV
	calls int
}

func (c *countingProvider) LoadOHLCV(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]*types.OHLCV, error) {
	c.calls++
	return c.bars, nil
}

func TestCachingProviderWritesThrough(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	upstream := &countingProvider{bars: hourlyBars(24, base, 100)}
	provider := data.NewCachingProvider(zap.NewNop(), upstream, store)

	end := base.Add(23 * time.Hour)
	first, err := provider.LoadOHLCV(context.Background(), "BNBUSDT", types.Timeframe1h, base, end)
	if err != nil || len(first) != 24 {
		t.Fatalf("First load returned %d bars (%v)", len(first), err)
	}
	second, err := provider.LoadOHLCV(context.Background(), "BNBUSDT", types.Timeframe1h, base, end)
	if err != nil || len(second) != 24 {
		t.Fatalf("Second load returned %d bars (%v)", len(second), err)
	}
	if upstream.calls != 1 {
		t.Errorf("Expected one upstream call, got %d", upstream.calls)
	}
}

func TestNewProviderRejectsUnknownKind(t *testing.T) {
	_, closeFn, err := data.NewProvider(context.Background(), zap.NewNop(), data.ProviderConfig{Kind: "carrier-pigeon"})
	if err == nil {
		t.Fatal("Expected error for unknown provider")
	}
	if closeFn == nil {
		t.Fatal("close func must never be nil")
	}
}
