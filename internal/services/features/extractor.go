package features

import "math"

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean.
func StdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	acc := 0.0
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// MeanAbsDiff returns the mean absolute first difference of values.
func MeanAbsDiff(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	acc := 0.0
	for i := 1; i < len(values); i++ {
		acc += math.Abs(values[i] - values[i-1])
	}
	return acc / float64(len(values)-1)
}

// PercentChange returns 100*(last-first)/first, or 0 when first is not positive.
func PercentChange(first, last float64) float64 {
	if first <= 0 || math.IsNaN(first) || math.IsNaN(last) {
		return 0
	}
	return (last - first) / first * 100
}

// ComputeLogReturns computes r_t = ln(v_t / v_{t-1}).
// It returns len(values)-1 returns, or nil if insufficient data.
func ComputeLogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample stddev of the latest window log returns.
func RealizedVolatility(logReturns []float64, window int) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
