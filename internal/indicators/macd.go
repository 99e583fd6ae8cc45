package indicators

// MACDResult holds the three MACD series, each aligned with the input.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns EMA(fast)-EMA(slow), its signal EMA and the histogram.
// The signal line is an EMA over the valid MACD values only, so it is
// seeded from the first bar where the slow EMA exists.
func MACD(data []float64, fast, slow, signal int) MACDResult {
	n := len(data)
	res := MACDResult{
		MACD:      nanSeries(n),
		Signal:    nanSeries(n),
		Histogram: nanSeries(n),
	}
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return res
	}

	fastEMA := EMA(data, fast)
	slowEMA := EMA(data, slow)

	start := slow - 1
	if fast > slow {
		start = fast - 1
	}
	if start >= n {
		return res
	}

	for i := start; i < n; i++ {
		res.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMA(res.MACD[start:], signal)
	for k, v := range signalLine {
		i := start + k
		res.Signal[i] = v
		if IsValid(v) {
			res.Histogram[i] = res.MACD[i] - v
		}
	}
	return res
}
