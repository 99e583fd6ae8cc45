package indicators

// DefaultRSIPeriod is the lookback used when none is configured.
const DefaultRSIPeriod = 14

// RSI returns the relative strength index using simple averages of the
// trailing period deltas. A window without losses yields exactly 100.
// The first period entries are NaN.
func RSI(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 || len(data) <= period {
		return out
	}

	deltas := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		deltas[i-1] = data[i] - data[i-1]
	}

	for j := period - 1; j < len(deltas); j++ {
		var gains, losses float64
		for _, d := range deltas[j-period+1 : j+1] {
			if d > 0 {
				gains += d
			} else {
				losses -= d
			}
		}
		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		// deltas[j] ends at data[j+1]
		if avgLoss == 0 {
			out[j+1] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[j+1] = 100 - 100/(1+rs)
	}
	return out
}
