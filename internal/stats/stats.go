// Package stats provides the numeric routines behind correlation detection.
//
// Pearson computes the product-moment correlation of two aligned series:
//
//	r = Σ(x−x̄)(y−ȳ) / sqrt(Σ(x−x̄)² × Σ(y−ȳ)²)
//
// Degenerate input (empty, mismatched, or zero-variance series) yields 0.
// Sums are accumulated in index order so results are reproducible bit for bit.
//
// Strength is a pure function of |r|; confidence reflects how much data backs
// a correlation and how consistently the lag falls into one time bucket.
package stats

import (
	"math"
	"sort"

	"github.com/rewired-gh/flareline/internal/models"
)

const (
	strongThreshold   = 0.7
	moderateThreshold = 0.3
)

// Pearson returns the correlation coefficient of x and y, clamped to [-1, 1].
// Returns 0 when the series differ in length, are empty, or either is flat.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	// A constant series has no variance; the mean pass below can leave
	// rounding residue that would otherwise read as correlation.
	if isFlat(x) || isFlat(y) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	denom := math.Sqrt(varX * varY)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}

	r := cov / denom
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

func isFlat(v []float64) bool {
	for _, f := range v[1:] {
		if f != v[0] {
			return false
		}
	}
	return true
}

// ClassifyStrength buckets |coefficient| into weak, moderate, or strong.
// Lower bounds are closed: 0.7 is strong and 0.3 is moderate.
func ClassifyStrength(coefficient float64) models.Strength {
	abs := math.Abs(coefficient)
	switch {
	case abs >= strongThreshold:
		return models.StrengthStrong
	case abs >= moderateThreshold:
		return models.StrengthModerate
	default:
		return models.StrengthWeak
	}
}

// ConfidenceFromSampleSize is the fallback used when a record carries no
// confidence of its own: ≥10 high, ≥5 medium, else low.
func ConfidenceFromSampleSize(sampleSize int) models.Confidence {
	switch {
	case sampleSize >= 10:
		return models.ConfidenceHigh
	case sampleSize >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// ConfidenceFromBuckets grades a freshly computed correlation from its sample
// size and the share of pairs that landed in the most populated lag bucket.
func ConfidenceFromBuckets(sampleSize int, dominantRatio float64) models.Confidence {
	switch {
	case sampleSize >= 10 && dominantRatio > 0.7:
		return models.ConfidenceHigh
	case sampleSize >= 5 && dominantRatio > 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Median returns the median of values without modifying them. Returns 0 for
// an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
