package backtester_test

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func resultWithPnL(initial int64, pnls ...int64) *types.SimulationResult {
	r := &types.SimulationResult{ID: "mc", InitialBalance: decimal.NewFromInt(initial)}
	for _, p := range pnls {
		r.Trades = append(r.Trades,
			types.SimulatedTrade{Type: types.OrderSideBuy},
			types.SimulatedTrade{Type: types.OrderSideSell, ProfitLoss: decimal.NewFromInt(p)},
		)
	}
	return r
}

func TestMonteCarloOrderIndependentTotal(t *testing.T) {
	mc := backtester.NewMonteCarloSimulator(zap.NewNop(), backtester.MonteCarloConfig{Iterations: 200, Seed: 7})

	report, err := mc.Run(resultWithPnL(1000, 100, 50))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ClosedTrades != 2 || report.Iterations != 200 {
		t.Errorf("unexpected counts: %d trades, %d iterations", report.ClosedTrades, report.Iterations)
	}
	// Winners only: every ordering ends at +15% with no drawdown
	want := decimal.NewFromInt(15)
	for name, got := range map[string]decimal.Decimal{
		"median": report.MedianReturn,
		"p5":     report.P5Return,
		"p95":    report.P95Return,
	} {
		if !got.Equal(want) {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
	if !report.MaxDrawdownP95.IsZero() || !report.ProbabilityRuin.IsZero() {
		t.Errorf("expected no drawdown or ruin, got %s / %s", report.MaxDrawdownP95, report.ProbabilityRuin)
	}
}

func TestMonteCarloRuin(t *testing.T) {
	mc := backtester.NewMonteCarloSimulator(zap.NewNop(), backtester.MonteCarloConfig{Iterations: 50, Seed: 1})

	report, err := mc.Run(resultWithPnL(1000, 20, -600, 10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.ProbabilityRuin.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected certain ruin, got %s", report.ProbabilityRuin)
	}
	if !report.MaxDrawdownP50.GreaterThan(decimal.NewFromInt(50)) {
		t.Errorf("expected drawdown above 50%%, got %s", report.MaxDrawdownP50)
	}
}

func TestMonteCarloSeedIsReproducible(t *testing.T) {
	result := resultWithPnL(10000, 300, -200, 150, -400, 250, -50)
	cfg := backtester.MonteCarloConfig{Iterations: 100, Seed: 42}

	a, err := backtester.NewMonteCarloSimulator(zap.NewNop(), cfg).Run(result)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := backtester.NewMonteCarloSimulator(zap.NewNop(), cfg).Run(result)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !a.MaxDrawdownP50.Equal(b.MaxDrawdownP50) || !a.MaxDrawdownP95.Equal(b.MaxDrawdownP95) {
		t.Errorf("same seed gave different drawdowns: %s/%s vs %s/%s",
			a.MaxDrawdownP50, a.MaxDrawdownP95, b.MaxDrawdownP50, b.MaxDrawdownP95)
	}
	if a.MaxDrawdownP95.LessThan(a.MaxDrawdownP50) {
		t.Errorf("p95 drawdown %s below median %s", a.MaxDrawdownP95, a.MaxDrawdownP50)
	}
}

func TestMonteCarloNeedsClosedTrades(t *testing.T) {
	mc := backtester.NewMonteCarloSimulator(zap.NewNop(), backtester.DefaultMonteCarloConfig())

	r := &types.SimulationResult{
		InitialBalance: decimal.NewFromInt(1000),
		Trades:         []types.SimulatedTrade{{Type: types.OrderSideBuy}},
	}
	if _, err := mc.Run(r); !errors.Is(err, backtester.ErrNoClosedTrades) {
		t.Errorf("expected ErrNoClosedTrades, got %v", err)
	}
}
