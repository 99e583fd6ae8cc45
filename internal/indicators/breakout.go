package indicators

import (
	"math"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
)

// BreakoutResult holds breakout flags and the levels they were measured against.
type BreakoutResult struct {
	Breakout   []bool
	Resistance []float64
	Support    []float64
}

// DetectBreakout compares each price with the highest and lowest of the
// period prices before it. The flag is set for a move beyond either level
// by more than threshold (a fraction); callers check the direction
// themselves against Resistance and Support.
func DetectBreakout(prices []float64, period int, threshold float64) BreakoutResult {
	n := len(prices)
	res := BreakoutResult{
		Breakout:   make([]bool, n),
		Resistance: nanSeries(n),
		Support:    nanSeries(n),
	}
	if period <= 0 {
		return res
	}

	for i := period; i < n; i++ {
		resistance := math.Inf(-1)
		support := math.Inf(1)
		for _, p := range prices[i-period : i] {
			resistance = math.Max(resistance, p)
			support = math.Min(support, p)
		}
		res.Resistance[i] = resistance
		res.Support[i] = support

		price := prices[i]
		res.Breakout[i] = price > resistance*(1+threshold) || price < support*(1-threshold)
	}
	return res
}

// LevelsResult holds trailing support and resistance levels.
type LevelsResult struct {
	Support    []float64
	Resistance []float64
}

// SupportResistance returns the lowest low and highest high of the
// trailing period bars, current bar included.
func SupportResistance(candles []*types.OHLCV, period int) LevelsResult {
	n := len(candles)
	res := LevelsResult{Support: nanSeries(n), Resistance: nanSeries(n)}
	if period <= 0 {
		return res
	}

	for i := period - 1; i < n; i++ {
		support := math.Inf(1)
		resistance := math.Inf(-1)
		for _, c := range candles[i-period+1 : i+1] {
			support = math.Min(support, c.Low.InexactFloat64())
			resistance = math.Max(resistance, c.High.InexactFloat64())
		}
		res.Support[i] = support
		res.Resistance[i] = resistance
	}
	return res
}
