package indicators

import "math"

// BollingerResult holds the three band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands returns SMA(period) ± stdDev × population standard
// deviation of the trailing window.
func BollingerBands(data []float64, period int, stdDev float64) BollingerResult {
	middle := SMA(data, period)
	res := BollingerResult{
		Upper:  nanSeries(len(data)),
		Middle: middle,
		Lower:  nanSeries(len(data)),
	}

	for i := period - 1; i >= 0 && i < len(data); i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			diff := data[j] - mean
			variance += diff * diff
		}
		width := stdDev * math.Sqrt(variance/float64(period))
		res.Upper[i] = mean + width
		res.Lower[i] = mean - width
	}
	return res
}
