package backtester

import (
	"math"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
)

// MetricsCalculator derives performance statistics from a finished run
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Calculate computes trade and balance-history statistics. Only SELL trades
// realize profit, so win/loss figures are over closed trades.
func (mc *MetricsCalculator) Calculate(
	trades []types.SimulatedTrade,
	history []types.BalancePoint,
	timeframe types.Timeframe,
) *types.PerformanceMetrics {
	metrics := &types.PerformanceMetrics{TotalTrades: len(trades)}

	var wins, losses int
	var totalWins, totalLosses decimal.Decimal
	for _, trade := range trades {
		metrics.TotalFees = metrics.TotalFees.Add(trade.Fee)
		if trade.Type != types.OrderSideSell {
			continue
		}
		metrics.ClosedTrades++

		pnl := trade.ProfitLoss
		if pnl.IsPositive() {
			wins++
			totalWins = totalWins.Add(pnl)
			if pnl.GreaterThan(metrics.LargestWin) {
				metrics.LargestWin = pnl
			}
		} else if pnl.IsNegative() {
			losses++
			totalLosses = totalLosses.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(metrics.LargestLoss) {
				metrics.LargestLoss = pnl.Abs()
			}
		}
	}

	if metrics.ClosedTrades > 0 {
		closed := decimal.NewFromInt(int64(metrics.ClosedTrades))
		metrics.WinRate = decimal.NewFromInt(int64(wins)).Div(closed)

		// Expectancy: (Win% * AvgWin) - (Loss% * AvgLoss)
		lossRate := decimal.NewFromInt(int64(losses)).Div(closed)
		if wins > 0 {
			metrics.AvgWin = totalWins.Div(decimal.NewFromInt(int64(wins)))
		}
		if losses > 0 {
			metrics.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(losses)))
		}
		metrics.Expectancy = metrics.WinRate.Mul(metrics.AvgWin).Sub(lossRate.Mul(metrics.AvgLoss))
	}

	if !totalLosses.IsZero() {
		metrics.ProfitFactor = totalWins.Div(totalLosses)
	}

	returns := mc.periodReturns(history)
	annualize := math.Sqrt(periodsPerYear(timeframe))

	// Sharpe and Sortino assume a 0% risk-free rate
	if len(returns) > 1 {
		avg := mc.mean(returns)
		if sd := mc.stdDev(returns); sd > 0 {
			metrics.SharpeRatio = decimal.NewFromFloat(avg / sd * annualize)
		}
		if dd := mc.downsideDeviation(returns); dd > 0 {
			metrics.SortinoRatio = decimal.NewFromFloat(avg / dd * annualize)
		}
	}

	metrics.MaxDrawdownDate = mc.maxDrawdownDate(history)
	return metrics
}

func periodsPerYear(tf types.Timeframe) float64 {
	return float64(365*24*time.Hour) / float64(tf.Duration())
}

// periodReturns calculates bar-to-bar returns of the balance history
func (mc *MetricsCalculator) periodReturns(history []types.BalancePoint) []float64 {
	if len(history) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Balance
		if prev.IsZero() {
			continue
		}
		ret, _ := history[i].Balance.Sub(prev).Div(prev).Float64()
		returns = append(returns, ret)
	}
	return returns
}

// maxDrawdownDate finds when the deepest drawdown occurred
func (mc *MetricsCalculator) maxDrawdownDate(history []types.BalancePoint) time.Time {
	if len(history) == 0 {
		return time.Time{}
	}

	var maxDD decimal.Decimal
	var maxDDDate time.Time
	peak := history[0].Balance

	for _, point := range history {
		if point.Balance.GreaterThan(peak) {
			peak = point.Balance
		}
		if peak.IsZero() {
			continue
		}
		if dd := peak.Sub(point.Balance).Div(peak); dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDDate = point.Timestamp
		}
	}
	return maxDDDate
}

// mean calculates arithmetic mean
func (mc *MetricsCalculator) mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev calculates sample standard deviation
func (mc *MetricsCalculator) stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := mc.mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// downsideDeviation calculates the deviation of negative returns only
func (mc *MetricsCalculator) downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	return mc.stdDev(negative)
}
