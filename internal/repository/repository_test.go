package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/schema"
)

func sampleResult(id string, completed time.Time) *types.SimulationResult {
	d := decimal.RequireFromString
	return &types.SimulationResult{
		ID: id,
		Strategy: types.StrategyDefinition{
			Name:         "rsi",
			Pair:         "BTCUSDT",
			StrategyType: types.StrategyRSIOversold,
			Timeframe:    types.Timeframe1h,
			Parameters:   map[string]float64{"buyThreshold": 30},
			RiskPerTrade: d("10"),
		},
		InitialBalance: d("10000"),
		Trades: []types.SimulatedTrade{
			{ID: "t1", Type: types.OrderSideBuy, Pair: "BTCUSDT", Price: d("50000"), Amount: d("0.02"), Fee: d("1"), Total: d("1001"), BalanceAfter: d("8999"), Reason: "RSI oversold", BarIndex: 55, ExecutedAt: completed.Add(-time.Hour)},
			{ID: "t2", Type: types.OrderSideSell, Pair: "BTCUSDT", Price: d("55000"), Amount: d("0.02"), Fee: d("1.1"), Total: d("1098.9"), BalanceAfter: d("10097.9"), ProfitLoss: d("98.9"), Reason: "RSI overbought", BarIndex: 80, ExecutedAt: completed},
		},
		FinalBalance:     d("10097.9"),
		TotalProfitLoss:  d("97.9"),
		WinningTrades:    1,
		MaxDrawdown:      d("1.5"),
		ReturnPercentage: d("0.979"),
		BalanceHistory:   []types.BalancePoint{{Timestamp: completed, Balance: d("10097.9")}},
		Portfolio:        types.Portfolio{"USDT": {Amount: d("10097.9"), AveragePrice: d("1")}},
		BarsProcessed:    100,
		StartedAt:        completed.Add(-time.Second),
		CompletedAt:      completed,
		Duration:         1500 * time.Millisecond,
	}
}

func TestRecordMappingPreservesResult(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := sampleResult("sim-1", now)

	rec := FromResult(in)
	if len(rec.Trades) != 2 || rec.Trades[1].Seq != 1 || rec.Trades[1].SimulationID != "sim-1" {
		t.Fatalf("Unexpected trade records: %+v", rec.Trades)
	}

	out := rec.ToResult()
	if out.Strategy.StrategyType != types.StrategyRSIOversold || out.Strategy.Parameters["buyThreshold"] != 30 {
		t.Errorf("Strategy not preserved: %+v", out.Strategy)
	}
	if !out.FinalBalance.Equal(in.FinalBalance) || out.WinningTrades != 1 {
		t.Errorf("Totals not preserved: %+v", out)
	}
	if out.Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s duration, got %s", out.Duration)
	}
	if len(out.Trades) != 2 || out.Trades[1].Type != types.OrderSideSell || !out.Trades[1].ProfitLoss.Equal(decimal.RequireFromString("98.9")) {
		t.Errorf("Trades not preserved: %+v", out.Trades)
	}
}

func TestRecordSchema(t *testing.T) {
	cache := &sync.Map{}

	sim, err := schema.Parse(&SimulationRecord{}, cache, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse SimulationRecord: %v", err)
	}
	if sim.Table != "simulations" {
		t.Errorf("Expected table simulations, got %s", sim.Table)
	}
	if sim.PrioritizedPrimaryField == nil || sim.PrioritizedPrimaryField.DBName != "id" {
		t.Errorf("Expected id primary key")
	}
	if len(sim.Relationships.HasMany) != 1 {
		t.Errorf("Expected one has-many relationship, got %d", len(sim.Relationships.HasMany))
	}

	trade, err := schema.Parse(&TradeRecord{}, cache, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse TradeRecord: %v", err)
	}
	if trade.Table != "simulation_trades" {
		t.Errorf("Expected table simulation_trades, got %s", trade.Table)
	}
	for _, col := range []string{"simulation_id", "seq", "balance_after", "profit_loss", "bar_index"} {
		if trade.LookUpField(col) == nil {
			t.Errorf("Missing column %s", col)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSimulationNotFound) {
		t.Errorf("Expected ErrSimulationNotFound, got %v", err)
	}
	if err := store.Save(ctx, &types.SimulationResult{}); err == nil {
		t.Error("Expected error saving result without id")
	}

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, sampleResult(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	got, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Trades) != 2 {
		t.Errorf("Expected 2 trades, got %d", len(got.Trades))
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("Expected newest first [c b], got %v", []string{list[0].ID, list[1].ID})
	}
	if len(list[0].Trades) != 0 {
		t.Error("List should omit trades")
	}

	// Stored trades survive the summary listing
	again, _ := store.Get(ctx, "c")
	if len(again.Trades) != 2 {
		t.Errorf("Expected stored trades intact, got %d", len(again.Trades))
	}
}
