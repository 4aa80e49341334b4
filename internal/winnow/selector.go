package winnow

import "fmt"

// Fingerprint is a k-gram hash selected by winnowing.
type Fingerprint struct {
	Hash       Hash
	KgramIndex int
	Range      Range
	Data       []string
}

// Selector implements winnowing: within every window of w consecutive k-gram
// hashes the minimum is selected, ties going to the rightmost position, and a
// position is emitted once no matter how many windows select it. Any verbatim
// run of at least k+w-1 tokens shared by two inputs yields a common
// fingerprint.
type Selector struct {
	hasher   *RollingHasher
	window   int
	keepData bool
}

// NewSelector returns a selector for k-grams of length k and windows of w k-grams.
func NewSelector(k, w int, keepData bool) (*Selector, error) {
	if w <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, w)
	}
	hasher, err := NewRollingHasher(k)
	if err != nil {
		return nil, err
	}
	return &Selector{hasher: hasher, window: w, keepData: keepData}, nil
}

// K returns the k-gram length.
func (s *Selector) K() int { return s.hasher.K() }

// W returns the window size.
func (s *Selector) W() int { return s.window }

// Select returns the fingerprints of tokens in emission order.
func (s *Selector) Select(tokens []string) []Fingerprint {
	hashes := s.hasher.Hashes(tokens)
	if len(hashes) == 0 {
		return nil
	}
	k := s.hasher.K()

	out := make([]Fingerprint, 0, 2*len(hashes)/(s.window+1)+1)
	for _, pos := range winnowPositions(hashes, s.window) {
		fp := Fingerprint{
			Hash:       hashes[pos],
			KgramIndex: pos,
			Range:      Range{Start: pos, Stop: pos + k},
		}
		if s.keepData {
			fp.Data = append([]string(nil), tokens[pos:pos+k]...)
		}
		out = append(out, fp)
	}
	return out
}

// winnowPositions returns the k-gram positions selected from hashes with
// windows of w, in increasing order.
func winnowPositions(hashes []Hash, w int) []int {
	var out []int

	// deque holds positions with strictly increasing hashes; the front is the
	// rightmost minimum of the current window.
	deque := make([]int, 0, w)
	last := -1
	n := len(hashes)
	for j := 0; j < n; j++ {
		for len(deque) > 0 && hashes[deque[len(deque)-1]] >= hashes[j] {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, j)
		for deque[0] <= j-w {
			deque = deque[1:]
		}

		// Inputs with fewer k-grams than a window form a single window.
		if j < w-1 && j < n-1 {
			continue
		}
		if pos := deque[0]; pos != last {
			out = append(out, pos)
			last = pos
		}
	}
	return out
}
