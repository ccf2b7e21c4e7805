package telegram

import (
	"math"
	"sort"

	"github.com/rewired-gh/flareline/internal/models"
)

// RankPatterns returns the top k patterns by |coefficient|, then frequency.
// Ties are broken by pattern ID ascending for determinism. The input is not
// modified.
func RankPatterns(patterns []models.DetectedPattern, k int) []models.DetectedPattern {
	if k <= 0 || len(patterns) == 0 {
		return []models.DetectedPattern{}
	}

	ranked := make([]models.DetectedPattern, len(patterns))
	copy(ranked, patterns)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := math.Abs(ranked[i].Coefficient), math.Abs(ranked[j].Coefficient)
		if ci != cj {
			return ci > cj
		}
		if ranked[i].Frequency != ranked[j].Frequency {
			return ranked[i].Frequency > ranked[j].Frequency
		}
		return ranked[i].ID < ranked[j].ID
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
