package metrics

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

// Stats summarises one series of durations, in milliseconds.
type Stats struct {
	Average float64
	Median  float64
	Min     float64
	Max     float64
	StdDev  float64
}

// EmptyStats is what Statistics returns for a series with no samples:
// Min and Max are left at the opposite extremes so that any real sample
// replaces them.
var EmptyStats = Stats{
	Min: math.MaxFloat64,
	Max: -math.MaxFloat64,
}

// Statistics computes the summary of series. StdDev is the sample standard
// deviation (divides by N-1) and is 0 for fewer than two samples.
func Statistics(series []float64) Stats {
	stats := EmptyStats
	if len(series) == 0 {
		return stats
	}

	for _, v := range series {
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Average = lo.Sum(series) / float64(len(series))
	stats.Median = median(series)
	stats.StdDev = stdDev(series, stats.Average)
	return stats
}

func median(series []float64) float64 {
	sorted := slices.Clone(series)
	slices.Sort(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func stdDev(series []float64, average float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var variance float64
	for _, v := range series {
		d := v - average
		variance += d * d
	}
	variance /= float64(len(series) - 1)
	return math.Sqrt(variance)
}
