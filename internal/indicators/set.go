package indicators

import "github.com/atlas-desktop/strategy-simulator/pkg/types"

// Options configures the periods used by Compute.
type Options struct {
	RSIPeriod         int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	BollingerPeriod   int
	BollingerStdDev   float64
	StochasticK       int
	StochasticD       int
	ATRPeriod         int
	BreakoutPeriod    int
	BreakoutThreshold float64
	LevelsPeriod      int
}

// DefaultOptions returns the standard indicator periods.
func DefaultOptions() Options {
	return Options{
		RSIPeriod:         DefaultRSIPeriod,
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		BollingerPeriod:   20,
		BollingerStdDev:   2,
		StochasticK:       14,
		StochasticD:       3,
		ATRPeriod:         14,
		BreakoutPeriod:    20,
		BreakoutThreshold: 0.02,
		LevelsPeriod:      20,
	}
}

// IndicatorSet bundles every series a simulation reads. All slices are
// index-aligned with the candles they were computed from.
type IndicatorSet struct {
	Close      []float64
	RSI        []float64
	MACD       MACDResult
	SMA20      []float64
	SMA50      []float64
	EMA20      []float64
	Bollinger  BollingerResult
	Stochastic StochasticResult
	ATR        []float64
	Breakout   BreakoutResult
	Levels     LevelsResult
}

// Len returns the number of bars covered by the set.
func (s *IndicatorSet) Len() int {
	return len(s.Close)
}

// Closes extracts closing prices as float64.
func Closes(candles []*types.OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

// Compute calculates the full indicator set once for a candle series.
func Compute(candles []*types.OHLCV, opts Options) *IndicatorSet {
	closes := Closes(candles)

	return &IndicatorSet{
		Close:      closes,
		RSI:        RSI(closes, opts.RSIPeriod),
		MACD:       MACD(closes, opts.MACDFast, opts.MACDSlow, opts.MACDSignal),
		SMA20:      SMA(closes, 20),
		SMA50:      SMA(closes, 50),
		EMA20:      EMA(closes, 20),
		Bollinger:  BollingerBands(closes, opts.BollingerPeriod, opts.BollingerStdDev),
		Stochastic: Stochastic(candles, opts.StochasticK, opts.StochasticD),
		ATR:        ATR(candles, opts.ATRPeriod),
		Breakout:   DetectBreakout(closes, opts.BreakoutPeriod, opts.BreakoutThreshold),
		Levels:     SupportResistance(candles, opts.LevelsPeriod),
	}
}
