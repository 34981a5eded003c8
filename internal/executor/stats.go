package executor

import "math"

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

// StdDev returns the sample deviation, or the population deviation when
// population is set. A single sample has zero sample deviation.
func StdDev(values []float64, population bool) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	denom := float64(len(values))
	if !population {
		if len(values) < 2 {
			return 0
		}
		denom = float64(len(values) - 1)
	}
	return math.Sqrt(sum / denom)
}

func ZScore(value, mean, stdev float64) float64 {
	if stdev == 0 {
		return 0
	}
	return (value - mean) / stdev
}

func PctDiff(value, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return (value - mean) / mean * 100
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
