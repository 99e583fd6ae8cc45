package indicators

import (
	"math"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
)

// StochasticResult holds %K and %D.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic returns %K over the trailing kPeriod bars and %D as the SMA
// of %K. A flat window (highest high equals lowest low) gives %K = 50.
func Stochastic(candles []*types.OHLCV, kPeriod, dPeriod int) StochasticResult {
	n := len(candles)
	res := StochasticResult{K: nanSeries(n), D: nanSeries(n)}
	if kPeriod <= 0 || n < kPeriod {
		return res
	}

	for i := kPeriod - 1; i < n; i++ {
		lowest := math.Inf(1)
		highest := math.Inf(-1)
		for _, c := range candles[i-kPeriod+1 : i+1] {
			lowest = math.Min(lowest, c.Low.InexactFloat64())
			highest = math.Max(highest, c.High.InexactFloat64())
		}

		if highest == lowest {
			res.K[i] = 50
			continue
		}
		closePrice := candles[i].Close.InexactFloat64()
		res.K[i] = (closePrice - lowest) / (highest - lowest) * 100
	}

	d := SMA(res.K[kPeriod-1:], dPeriod)
	copy(res.D[kPeriod-1:], d)
	return res
}
