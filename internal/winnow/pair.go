package winnow

import (
	"cmp"
	"slices"
)

// Fragment is a maximal run of matching tokens between two files. Left and
// Right always have the same length.
type Fragment struct {
	Left           Range
	Right          Range
	LeftSelection  Region
	RightSelection Region
	Length         int

	// Hashes are the shared fingerprints that seeded the fragment.
	Hashes []Hash
}

// Pairing every left occurrence of a fingerprint with every right one is
// quadratic on repetitive code. Above fullPairingLimit pairings, the i-th
// left occurrence is only paired with right occurrences of rank i-rankBand+1
// through i+rankBand-1.
const (
	fullPairingLimit = 64
	rankBand         = 8
)

// Pair is the comparison of two indexed files. It is computed on demand and
// never mutates the index.
type Pair struct {
	Left      *FileEntry
	Right     *FileEntry
	Shared    []*SharedFingerprint
	Fragments []Fragment

	// Overlap is the number of matched k-gram positions common to both
	// files: the smaller of the left and right matched position counts.
	Overlap      int
	Longest      int
	LeftCovered  int
	RightCovered int
	LeftTotal    int
	RightTotal   int
	Similarity   float64

	index *Index
}

// seed is one pairing of a left and right occurrence of the same fingerprint.
type seed struct {
	left, right Range
	hash        Hash
}

func newPair(idx *Index, left, right *FileEntry) *Pair {
	p := &Pair{
		Left:       left,
		Right:      right,
		LeftTotal:  len(left.File.Tokens),
		RightTotal: len(right.File.Tokens),
		index:      idx,
	}

	small, large := left, right
	if len(large.shared) < len(small.shared) {
		small, large = large, small
	}
	for h := range small.shared {
		if _, ok := large.shared[h]; ok {
			p.Shared = append(p.Shared, idx.fingerprints[h])
		}
	}
	slices.SortFunc(p.Shared, func(a, b *SharedFingerprint) int {
		return compareHash(a.Hash, b.Hash)
	})

	frags := p.buildFragments()
	p.Fragments = frags
	p.Overlap = p.matchedPositions()
	p.LeftCovered = covered(frags, func(f Fragment) Range { return f.Left })
	p.RightCovered = covered(frags, func(f Fragment) Range { return f.Right })
	for _, f := range frags {
		p.Longest = max(p.Longest, f.Length)
	}
	if total := p.LeftTotal + p.RightTotal; total > 0 {
		p.Similarity = float64(p.LeftCovered+p.RightCovered) / float64(total)
	}
	return p
}

// LeftID returns the left file's id.
func (p *Pair) LeftID() string { return p.Left.File.ID }

// RightID returns the right file's id.
func (p *Pair) RightID() string { return p.Right.File.ID }

func (p *Pair) matchedPositions() int {
	left, right := 0, 0
	lid, rid := p.LeftID(), p.RightID()
	for _, sf := range p.Shared {
		left += len(sf.OccurrencesOf(lid))
		right += len(sf.OccurrencesOf(rid))
	}
	return min(left, right)
}

func (p *Pair) seeds() []seed {
	var out []seed
	lid, rid := p.LeftID(), p.RightID()
	for _, sf := range p.Shared {
		lo, ro := sf.OccurrencesOf(lid), sf.OccurrencesOf(rid)
		banded := len(lo)*len(ro) > fullPairingLimit
		for i, l := range lo {
			from, to := 0, len(ro)
			if banded {
				from, to = max(0, i-rankBand+1), min(len(ro), i+rankBand)
			}
			for _, r := range ro[from:to] {
				out = append(out, seed{left: l.Range, right: r.Range, hash: sf.Hash})
			}
		}
	}
	return out
}

// buildFragments pairs the occurrences of every shared fingerprint, merges
// pairings that continue each other, extends the result while both sides
// match token for token and drops fragments contained in another one.
func (p *Pair) buildFragments() []Fragment {
	seeds := p.seeds()
	if len(seeds) == 0 {
		return nil
	}

	frags := make([]Fragment, 0, len(seeds))
	for _, s := range seeds {
		frags = append(frags, Fragment{Left: s.left, Right: s.right, Hashes: []Hash{s.hash}})
	}
	frags = mergeDiagonals(frags)

	lblock := p.ignoredCoverage(p.Left)
	rblock := p.ignoredCoverage(p.Right)
	ltoks, rtoks := p.Left.File.Tokens, p.Right.File.Tokens
	for i := range frags {
		f := &frags[i]
		for f.Left.Start > 0 && f.Right.Start > 0 &&
			!lblock[f.Left.Start-1] && !rblock[f.Right.Start-1] &&
			ltoks[f.Left.Start-1] == rtoks[f.Right.Start-1] {
			f.Left.Start--
			f.Right.Start--
		}
		for f.Left.Stop < len(ltoks) && f.Right.Stop < len(rtoks) &&
			!lblock[f.Left.Stop] && !rblock[f.Right.Stop] &&
			ltoks[f.Left.Stop] == rtoks[f.Right.Stop] {
			f.Left.Stop++
			f.Right.Stop++
		}
	}
	frags = squash(mergeDiagonals(frags))

	for i := range frags {
		f := &frags[i]
		f.Length = f.Left.Len()
		f.LeftSelection = p.Left.selection(f.Left)
		f.RightSelection = p.Right.selection(f.Right)
		slices.SortFunc(f.Hashes, compareHash)
		f.Hashes = slices.Compact(f.Hashes)
	}
	slices.SortFunc(frags, func(a, b Fragment) int {
		return cmp.Or(cmp.Compare(a.Left.Start, b.Left.Start), cmp.Compare(a.Right.Start, b.Right.Start))
	})
	return frags
}

// ignoredCoverage marks the tokens of e covered by an ignored fingerprint.
// Extension never crosses them.
func (p *Pair) ignoredCoverage(e *FileEntry) []bool {
	out := make([]bool, len(e.File.Tokens))
	for h := range e.ignored {
		for _, occ := range p.index.fingerprints[h].OccurrencesOf(e.File.ID) {
			for i := occ.Range.Start; i < occ.Range.Stop && i < len(out); i++ {
				out[i] = true
			}
		}
	}
	return out
}

func diagonal(f Fragment) int { return f.Right.Start - f.Left.Start }

// mergeDiagonals joins fragments that lie on the same diagonal and overlap
// or touch.
func mergeDiagonals(frags []Fragment) []Fragment {
	slices.SortFunc(frags, func(a, b Fragment) int {
		return cmp.Or(cmp.Compare(diagonal(a), diagonal(b)), cmp.Compare(a.Left.Start, b.Left.Start))
	})
	out := frags[:0]
	for _, f := range frags {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if diagonal(*last) == diagonal(f) && f.Left.Start <= last.Left.Stop {
				if f.Left.Stop > last.Left.Stop {
					last.Left.Stop = f.Left.Stop
					last.Right.Stop = f.Right.Stop
				}
				last.Hashes = append(last.Hashes, f.Hashes...)
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// squash drops fragments contained on both sides by another fragment.
func squash(frags []Fragment) []Fragment {
	var out []Fragment
	for i, f := range frags {
		contained := false
		for j, g := range frags {
			if i != j && g.Left.Contains(f.Left) && g.Right.Contains(f.Right) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, f)
		}
	}
	return out
}

// covered counts the tokens in the union of the ranges picked from frags.
func covered(frags []Fragment, side func(Fragment) Range) int {
	if len(frags) == 0 {
		return 0
	}
	rs := make([]Range, len(frags))
	for i, f := range frags {
		rs[i] = side(f)
	}
	slices.SortFunc(rs, func(a, b Range) int { return cmp.Compare(a.Start, b.Start) })

	total := 0
	cur := rs[0]
	for _, r := range rs[1:] {
		if r.Start <= cur.Stop {
			cur.Stop = max(cur.Stop, r.Stop)
			continue
		}
		total += cur.Len()
		cur = r
	}
	return total + cur.Len()
}
