package indicators

import (
	"math"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per
// bar. Bar 0 has no previous close and is NaN.
func TrueRange(candles []*types.OHLCV) []float64 {
	out := nanSeries(len(candles))
	for i := 1; i < len(candles); i++ {
		high := candles[i].High.InexactFloat64()
		low := candles[i].Low.InexactFloat64()
		prevClose := candles[i-1].Close.InexactFloat64()

		out[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}
	return out
}

// ATR returns the simple average of the trailing period true ranges.
func ATR(candles []*types.OHLCV, period int) []float64 {
	if len(candles) < 2 {
		return nanSeries(len(candles))
	}
	tr := TrueRange(candles)
	return padFront(SMA(tr[1:], period), 1)
}
