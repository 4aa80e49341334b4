package winnow

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	hashModulus = 33554393
	hashBase    = 4194301
)

// RollingHasher hashes every k-gram of a token sequence with a polynomial
// rolling hash. Tokens are first reduced to symbols with xxhash.
type RollingHasher struct {
	k       int
	topBase uint64 // base^(k-1) mod modulus
}

// NewRollingHasher returns a hasher for k-grams of length k.
func NewRollingHasher(k int) (*RollingHasher, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k-gram length must be positive, got %d", ErrInvalidConfig, k)
	}
	top := uint64(1)
	for i := 0; i < k-1; i++ {
		top = top * hashBase % hashModulus
	}
	return &RollingHasher{k: k, topBase: top}, nil
}

// K returns the k-gram length.
func (h *RollingHasher) K() int { return h.k }

func symbol(token string) uint64 {
	return xxhash.Sum64String(token) % hashModulus
}

// Hashes returns one hash per k-gram: result[i] covers tokens [i, i+k).
// Sequences shorter than k yield nil.
func (h *RollingHasher) Hashes(tokens []string) []Hash {
	n := len(tokens)
	if n < h.k {
		return nil
	}
	syms := make([]uint64, n)
	for i, tok := range tokens {
		syms[i] = symbol(tok)
	}

	out := make([]Hash, 0, n-h.k+1)
	var cur uint64
	for i := 0; i < h.k; i++ {
		cur = (cur*hashBase + syms[i]) % hashModulus
	}
	out = append(out, Hash(cur))

	for i := h.k; i < n; i++ {
		leaving := syms[i-h.k] * h.topBase % hashModulus
		cur = (cur + hashModulus - leaving) % hashModulus
		cur = (cur*hashBase + syms[i]) % hashModulus
		out = append(out, Hash(cur))
	}
	return out
}
