package winnow

import (
	"cmp"
	"slices"
)

// SortKey orders pairs in a report. All orders are descending.
type SortKey string

const (
	SortByTotalOverlap    SortKey = "total-overlap"
	SortByLongestFragment SortKey = "longest-fragment"
	SortBySimilarity      SortKey = "similarity"
)

// ParseSortKey maps s to a sort key. Unknown keys fall back to similarity.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(s); k {
	case SortByTotalOverlap, SortByLongestFragment, SortBySimilarity:
		return k
	}
	return SortBySimilarity
}

// AllPairs compares every unordered pair of non-template files.
func (idx *Index) AllPairs(key SortKey) []*Pair {
	files := idx.Files()
	pairs := make([]*Pair, 0, len(files)*(len(files)-1)/2)
	for i := range files {
		for j := i + 1; j < len(files); j++ {
			pairs = append(pairs, newPair(idx, files[i], files[j]))
		}
	}
	SortPairs(pairs, key)
	return pairs
}

// SortPairs sorts pairs in place by key, breaking ties by file ids.
func SortPairs(pairs []*Pair, key SortKey) {
	metric := func(p *Pair) float64 { return p.Similarity }
	switch ParseSortKey(string(key)) {
	case SortByTotalOverlap:
		metric = func(p *Pair) float64 { return float64(p.Overlap) }
	case SortByLongestFragment:
		metric = func(p *Pair) float64 { return float64(p.Longest) }
	}
	slices.SortStableFunc(pairs, func(a, b *Pair) int {
		return cmp.Or(
			cmp.Compare(metric(b), metric(a)),
			cmp.Compare(a.LeftID(), b.LeftID()),
			cmp.Compare(a.RightID(), b.RightID()),
		)
	})
}

// Summary aggregates the pairs of one report.
type Summary struct {
	TotalFiles        int
	TotalComparisons  int
	FlaggedPairs      int
	AverageSimilarity float64
	HighestSimilarity float64
}

// Summarize computes the summary of pairs over totalFiles files. A pair is
// flagged when its similarity is at least flagAt.
func Summarize(pairs []*Pair, totalFiles int, flagAt float64) Summary {
	s := Summary{TotalFiles: totalFiles, TotalComparisons: len(pairs)}
	if len(pairs) == 0 {
		return s
	}
	sum := 0.0
	for _, p := range pairs {
		sum += p.Similarity
		s.HighestSimilarity = max(s.HighestSimilarity, p.Similarity)
		if p.Similarity >= flagAt {
			s.FlaggedPairs++
		}
	}
	s.AverageSimilarity = sum / float64(len(pairs))
	return s
}

// ReportOptions controls NewReport.
type ReportOptions struct {
	SortBy        SortKey
	MinSimilarity float64
	FlagThreshold float64
}

// Report is the set of pairs of an index after sorting and filtering.
type Report struct {
	Pairs   []*Pair
	Summary Summary
}

// NewReport compares all files of idx. The summary covers every comparison;
// Pairs keeps only those at or above MinSimilarity.
func NewReport(idx *Index, opts ReportOptions) *Report {
	return BuildReport(idx.AllPairs(opts.SortBy), len(idx.Files()), opts)
}

// BuildReport sorts already compared pairs by opts.SortBy and filters them
// by opts.MinSimilarity. The summary is taken over all of pairs.
func BuildReport(pairs []*Pair, totalFiles int, opts ReportOptions) *Report {
	SortPairs(pairs, opts.SortBy)
	return &Report{
		Pairs:   FilterPairs(pairs, opts.MinSimilarity),
		Summary: Summarize(pairs, totalFiles, opts.FlagThreshold),
	}
}

// FilterPairs returns the pairs with similarity at least minSimilarity.
func FilterPairs(pairs []*Pair, minSimilarity float64) []*Pair {
	if minSimilarity <= 0 {
		return pairs
	}
	out := make([]*Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Similarity >= minSimilarity {
			out = append(out, p)
		}
	}
	return out
}
