// Package indicators_test provides tests for the indicator library.
package indicators_test

import (
	"math"
	"testing"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/indicators"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

const tolerance = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// sameUpTo compares two series through index i, treating NaN as equal to NaN.
func sameUpTo(a, b []float64, i int) bool {
	for k := 0; k <= i; k++ {
		if math.IsNaN(a[k]) != math.IsNaN(b[k]) {
			return false
		}
		if !math.IsNaN(a[k]) && a[k] != b[k] {
			return false
		}
	}
	return true
}

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/4) + float64(i%7)
	}
	return out
}

func makeCandles(closes []float64) []*types.OHLCV {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*types.OHLCV, len(closes))
	for i, c := range closes {
		candles[i] = &types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(c),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 1),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return candles
}

func TestSMAWarmup(t *testing.T) {
	data := wave(40)

	for p := 1; p <= len(data); p++ {
		sma := indicators.SMA(data, p)
		if len(sma) != len(data) {
			t.Fatalf("period %d: length %d, expected %d", p, len(sma), len(data))
		}
		for k, v := range sma {
			if k < p-1 && !math.IsNaN(v) {
				t.Errorf("period %d: index %d should be NaN, got %f", p, k, v)
			}
			if k >= p-1 && (math.IsNaN(v) || math.IsInf(v, 0)) {
				t.Errorf("period %d: index %d should be finite, got %f", p, k, v)
			}
		}
	}
}

func TestSMAMatchesTalib(t *testing.T) {
	data := wave(120)

	for _, p := range []int{5, 20, 50} {
		ours := indicators.SMA(data, p)
		ref := talib.Sma(data, p)
		for i := p - 1; i < len(data); i++ {
			if math.Abs(ours[i]-ref[i]) > 1e-6 {
				t.Fatalf("period %d index %d: got %f, talib %f", p, i, ours[i], ref[i])
			}
		}
	}
}

func TestEMAMatchesTalib(t *testing.T) {
	data := wave(120)

	for _, p := range []int{3, 12, 26} {
		ours := indicators.EMA(data, p)
		ref := talib.Ema(data, p)
		for i := p - 1; i < len(data); i++ {
			if math.Abs(ours[i]-ref[i]) > 1e-6 {
				t.Fatalf("period %d index %d: got %f, talib %f", p, i, ours[i], ref[i])
			}
		}
	}
}

func TestBollingerMatchesTalib(t *testing.T) {
	data := wave(120)

	bb := indicators.BollingerBands(data, 20, 2)
	upper, middle, lower := talib.BBands(data, 20, 2, 2, talib.SMA)
	for i := 19; i < len(data); i++ {
		if math.Abs(bb.Upper[i]-upper[i]) > 1e-6 ||
			math.Abs(bb.Middle[i]-middle[i]) > 1e-6 ||
			math.Abs(bb.Lower[i]-lower[i]) > 1e-6 {
			t.Fatalf("index %d: got %f/%f/%f, talib %f/%f/%f",
				i, bb.Upper[i], bb.Middle[i], bb.Lower[i], upper[i], middle[i], lower[i])
		}
	}
}

func TestEMASeedAndSmoothing(t *testing.T) {
	ema := indicators.EMA([]float64{1, 2, 3, 4, 5}, 3)

	if !math.IsNaN(ema[0]) || !math.IsNaN(ema[1]) {
		t.Fatalf("warm-up entries should be NaN: %v", ema)
	}

	expected := []float64{2, 3, 4}
	for k, want := range expected {
		if !approxEqual(ema[k+2], want) {
			t.Errorf("index %d: expected %f, got %f", k+2, want, ema[k+2])
		}
	}
}

func TestEMASeedsFromSliceStart(t *testing.T) {
	data := wave(60)

	full := indicators.EMA(data, 10)
	sub := indicators.EMA(data[5:], 10)

	differs := false
	for k := 9; k < len(sub); k++ {
		if !approxEqual(sub[k], full[k+5]) {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("EMA of a sub-slice should be seeded from the sub-slice start")
	}
}

func TestEMAShortInput(t *testing.T) {
	ema := indicators.EMA([]float64{1, 2}, 5)
	for _, v := range ema {
		if !math.IsNaN(v) {
			t.Fatalf("expected all NaN, got %v", ema)
		}
	}
}

func TestRSIBounds(t *testing.T) {
	data := wave(200)
	rsi := indicators.RSI(data, 14)

	for i, v := range rsi {
		if i < 14 {
			if !math.IsNaN(v) {
				t.Errorf("index %d should be NaN, got %f", i, v)
			}
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("RSI out of bounds at %d: %f", i, v)
		}
	}
}

func TestRSIZeroLossIs100(t *testing.T) {
	data := make([]float64, 30)
	for i := range data {
		data[i] = float64(i + 1)
	}

	rsi := indicators.RSI(data, 14)
	for i := 14; i < len(rsi); i++ {
		if rsi[i] != 100 {
			t.Errorf("index %d: expected 100, got %f", i, rsi[i])
		}
	}
}

func TestRSIBalancedMoves(t *testing.T) {
	data := []float64{1, 2, 1, 2, 1, 2, 1}
	rsi := indicators.RSI(data, 2)

	for i := 2; i < len(rsi); i++ {
		if !approxEqual(rsi[i], 50) {
			t.Errorf("index %d: expected 50, got %f", i, rsi[i])
		}
	}
}

func TestMACDAlignment(t *testing.T) {
	data := wave(80)
	res := indicators.MACD(data, 12, 26, 9)

	if len(res.MACD) != len(data) || len(res.Signal) != len(data) || len(res.Histogram) != len(data) {
		t.Fatal("MACD outputs must match the input length")
	}

	for i := range data {
		switch {
		case i < 25:
			if indicators.IsValid(res.MACD[i]) {
				t.Errorf("MACD index %d should be NaN", i)
			}
		case i < 33:
			if !indicators.IsValid(res.MACD[i]) || indicators.IsValid(res.Signal[i]) {
				t.Errorf("index %d: MACD valid, signal NaN expected", i)
			}
		default:
			if !indicators.IsValid(res.MACD[i], res.Signal[i], res.Histogram[i]) {
				t.Fatalf("index %d should be fully valid", i)
			}
			if !approxEqual(res.Histogram[i], res.MACD[i]-res.Signal[i]) {
				t.Errorf("histogram mismatch at %d", i)
			}
		}
	}

	fast := indicators.EMA(data, 12)
	slow := indicators.EMA(data, 26)
	if !approxEqual(res.MACD[40], fast[40]-slow[40]) {
		t.Errorf("MACD should be fast EMA minus slow EMA")
	}
}

func TestBollingerBands(t *testing.T) {
	bands := indicators.BollingerBands([]float64{1, 2, 3}, 3, 2)

	std := math.Sqrt(2.0 / 3.0)
	if !approxEqual(bands.Middle[2], 2) {
		t.Errorf("middle: expected 2, got %f", bands.Middle[2])
	}
	if !approxEqual(bands.Upper[2], 2+2*std) {
		t.Errorf("upper: expected %f, got %f", 2+2*std, bands.Upper[2])
	}
	if !approxEqual(bands.Lower[2], 2-2*std) {
		t.Errorf("lower: expected %f, got %f", 2-2*std, bands.Lower[2])
	}

	flat := indicators.BollingerBands([]float64{5, 5, 5, 5}, 2, 2)
	if flat.Upper[3] != 5 || flat.Lower[3] != 5 {
		t.Errorf("flat series should collapse the bands: %f %f", flat.Upper[3], flat.Lower[3])
	}
}

func TestATR(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	atr := indicators.ATR(makeCandles(closes), 14)

	for i := 0; i < 14; i++ {
		if indicators.IsValid(atr[i]) {
			t.Errorf("index %d should be NaN", i)
		}
	}
	for i := 14; i < len(atr); i++ {
		if !approxEqual(atr[i], 2) {
			t.Errorf("index %d: expected 2, got %f", i, atr[i])
		}
	}
}

func TestStochastic(t *testing.T) {
	flat := make([]*types.OHLCV, 5)
	for i := range flat {
		flat[i] = &types.OHLCV{
			High:  decimal.NewFromInt(10),
			Low:   decimal.NewFromInt(10),
			Close: decimal.NewFromInt(10),
		}
	}
	res := indicators.Stochastic(flat, 3, 2)
	if res.K[2] != 50 || res.K[4] != 50 {
		t.Errorf("flat range should give %%K = 50, got %v", res.K)
	}
	if indicators.IsValid(res.D[2]) || !approxEqual(res.D[3], 50) {
		t.Errorf("unexpected %%D: %v", res.D)
	}

	candles := makeCandles([]float64{10, 11, 12, 13})
	res = indicators.Stochastic(candles, 3, 1)
	// window 11..13: low 10, high 14, close 13
	if !approxEqual(res.K[3], 75) {
		t.Errorf("expected %%K 75, got %f", res.K[3])
	}
}

func TestDetectBreakout(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}
	prices = append(prices, 103, 101, 95)

	res := indicators.DetectBreakout(prices, 20, 0.02)

	for i := 0; i < 20; i++ {
		if res.Breakout[i] || indicators.IsValid(res.Resistance[i]) {
			t.Errorf("index %d should have no levels", i)
		}
	}
	if !res.Breakout[20] || prices[20] <= res.Resistance[20] {
		t.Error("expected an upside breakout at index 20")
	}
	if res.Breakout[21] {
		t.Error("101 is within threshold of the prior range")
	}
	if !res.Breakout[22] || prices[22] >= res.Support[22] {
		t.Error("expected a downside breakout at index 22")
	}
	if res.Resistance[22] != 103 {
		t.Errorf("resistance should include prior bars only, got %f", res.Resistance[22])
	}
}

func TestSupportResistance(t *testing.T) {
	candles := makeCandles([]float64{10, 12, 8, 11})
	levels := indicators.SupportResistance(candles, 3)

	if indicators.IsValid(levels.Support[1]) {
		t.Error("index 1 should be NaN")
	}
	if levels.Support[2] != 7 || levels.Resistance[2] != 13 {
		t.Errorf("unexpected levels at 2: %f %f", levels.Support[2], levels.Resistance[2])
	}
	if levels.Support[3] != 7 || levels.Resistance[3] != 13 {
		t.Errorf("unexpected levels at 3: %f %f", levels.Support[3], levels.Resistance[3])
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	candles := makeCandles(wave(120))

	a := indicators.Compute(candles, indicators.DefaultOptions())
	b := indicators.Compute(candles, indicators.DefaultOptions())

	last := len(candles) - 1
	if !sameUpTo(a.RSI, b.RSI, last) || !sameUpTo(a.MACD.Signal, b.MACD.Signal, last) ||
		!sameUpTo(a.Bollinger.Upper, b.Bollinger.Upper, last) || !sameUpTo(a.Stochastic.D, b.Stochastic.D, last) {
		t.Error("repeated computation should be identical")
	}
}

func TestComputeHasNoLookAhead(t *testing.T) {
	closes := wave(120)
	base := indicators.Compute(makeCandles(closes), indicators.DefaultOptions())

	const cut = 70
	mutated := append([]float64(nil), closes...)
	for i := cut + 1; i < len(mutated); i++ {
		mutated[i] = mutated[i]*3 + 50
	}
	changed := indicators.Compute(makeCandles(mutated), indicators.DefaultOptions())

	series := map[string][2][]float64{
		"rsi":        {base.RSI, changed.RSI},
		"macd":       {base.MACD.MACD, changed.MACD.MACD},
		"signal":     {base.MACD.Signal, changed.MACD.Signal},
		"histogram":  {base.MACD.Histogram, changed.MACD.Histogram},
		"sma20":      {base.SMA20, changed.SMA20},
		"sma50":      {base.SMA50, changed.SMA50},
		"ema20":      {base.EMA20, changed.EMA20},
		"upper":      {base.Bollinger.Upper, changed.Bollinger.Upper},
		"lower":      {base.Bollinger.Lower, changed.Bollinger.Lower},
		"k":          {base.Stochastic.K, changed.Stochastic.K},
		"d":          {base.Stochastic.D, changed.Stochastic.D},
		"atr":        {base.ATR, changed.ATR},
		"resistance": {base.Breakout.Resistance, changed.Breakout.Resistance},
		"support":    {base.Breakout.Support, changed.Breakout.Support},
	}
	for name, pair := range series {
		if !sameUpTo(pair[0], pair[1], cut) {
			t.Errorf("%s changed at or before index %d after mutating later bars", name, cut)
		}
	}
	for i := 0; i <= cut; i++ {
		if base.Breakout.Breakout[i] != changed.Breakout.Breakout[i] {
			t.Errorf("breakout flag changed at %d", i)
		}
	}
}
