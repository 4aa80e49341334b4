package plagiarism

import (
	"github.com/RishiKendai/winnow/internal/models"
	"github.com/RishiKendai/winnow/internal/winnow"
)

const (
	RiskClean            = "clean"
	RiskSuspicious       = "suspicious"
	RiskHighlySuspicious = "highly suspicious"
	RiskNearCopy         = "near copy"
)

// GetRiskLevel returns the risk level of a pair from its similarity
func GetRiskLevel(similarity float64) string {
	switch {
	case similarity < 0.3:
		return RiskClean
	case similarity < 0.6:
		return RiskSuspicious
	case similarity < 0.85:
		return RiskHighlySuspicious
	}
	return RiskNearCopy
}

// ToPairResult converts a compared pair into its stored form.
func ToPairResult(p *winnow.Pair, rank int, flagAt float64) *models.PairResult {
	res := &models.PairResult{
		Rank:         rank,
		LeftID:       p.LeftID(),
		RightID:      p.RightID(),
		Similarity:   p.Similarity,
		Overlap:      p.Overlap,
		Longest:      p.Longest,
		LeftCovered:  p.LeftCovered,
		RightCovered: p.RightCovered,
		LeftTotal:    p.LeftTotal,
		RightTotal:   p.RightTotal,
		Risk:         GetRiskLevel(p.Similarity),
		Flagged:      p.Similarity >= flagAt,
		Fragments:    make([]models.FragmentResult, 0, len(p.Fragments)),
	}
	for _, f := range p.Fragments {
		res.Fragments = append(res.Fragments, models.FragmentResult{
			Left:   f.LeftSelection,
			Right:  f.RightSelection,
			Length: f.Length,
		})
	}
	return res
}
