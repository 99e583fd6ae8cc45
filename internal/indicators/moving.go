// Package indicators computes technical indicators over candle series.
//
// Every function returns a slice as long as its input. Entries that lack
// enough history are math.NaN(). Output i never depends on input beyond i.
package indicators

import "math"

// nanSeries returns a slice of n NaN values.
func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// padFront left-pads values with n NaN entries.
func padFront(values []float64, n int) []float64 {
	out := nanSeries(n + len(values))
	copy(out[n:], values)
	return out
}

// IsValid reports whether none of the values is NaN.
func IsValid(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// SMA returns the trailing simple moving average.
func SMA(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 {
		return out
	}

	for i := period - 1; i < len(data); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += data[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA returns the exponential moving average seeded with the SMA of
// data[0:period]. The seed is anchored at index 0 of whatever slice is
// passed in, so an EMA of a sub-slice differs from the matching part of
// an EMA over the full series. MACD alignment relies on this.
func EMA(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += data[i]
	}
	prev := seed / float64(period)
	out[period-1] = prev

	k := 2.0 / float64(period+1)
	for i := period; i < len(data); i++ {
		prev = prev + (data[i]-prev)*k
		out[i] = prev
	}
	return out
}
