// Package stats provides the statistical helpers shared by the hdphmm
// pipeline.
package stats

import "sort"

// RemoveOutliers drops the most extreme fraction of values from column,
// split evenly between the low and high tails, and returns the interior
// values in ascending order. The input is not modified. A fraction <= 0
// returns all values; at least one value is always retained.
func RemoveOutliers(column []float64, fraction float64) []float64 {
	sorted := append([]float64(nil), column...)
	sort.Float64s(sorted)
	if fraction <= 0 || len(sorted) == 0 {
		return sorted
	}

	k := int(float64(len(sorted)) * fraction / 2)
	if 2*k >= len(sorted) {
		k = (len(sorted) - 1) / 2
	}
	return sorted[k : len(sorted)-k]
}
