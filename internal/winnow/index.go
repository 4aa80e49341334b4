package winnow

import (
	"fmt"
	"math"
	"runtime"
	"slices"

	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog/log"
)

// Options configures an Index.
type Options struct {
	KgramLength    int
	KgramsInWindow int
	KeepTokenData  bool

	// Fingerprints touching more files than this are ignored. Zero or less
	// disables the limit.
	MaxFingerprintFileCount int

	// Fingerprints touching more than this fraction of the indexed
	// non-template files are ignored. Zero or less disables the limit.
	MaxFingerprintPercentage float64

	// Workers bounds parallel hashing during ingestion; defaults to NumCPU.
	Workers int
}

// DefaultOptions returns the k-gram and window lengths used when none are configured.
func DefaultOptions() Options {
	return Options{
		KgramLength:    23,
		KgramsInWindow: 17,
	}
}

// Index is an inverted index from selected fingerprint hashes to the files
// they occur in. Ingestion must complete before pairs are requested; pairs
// only read the index and may be built concurrently.
type Index struct {
	selector *Selector
	workers  int

	fingerprints map[Hash]*SharedFingerprint
	files        map[string]*FileEntry
	order        []*FileEntry
	manual       map[Hash]struct{}

	maxFileCount  int
	maxPercentage float64
}

// NewIndex returns an empty index.
func NewIndex(opts Options) (*Index, error) {
	sel, err := NewSelector(opts.KgramLength, opts.KgramsInWindow, opts.KeepTokenData)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Index{
		selector:      sel,
		workers:       workers,
		fingerprints:  make(map[Hash]*SharedFingerprint),
		files:         make(map[string]*FileEntry),
		manual:        make(map[Hash]struct{}),
		maxFileCount:  opts.MaxFingerprintFileCount,
		maxPercentage: opts.MaxFingerprintPercentage,
	}, nil
}

// KgramLength returns k.
func (idx *Index) KgramLength() int { return idx.selector.K() }

// KgramsInWindow returns w.
func (idx *Index) KgramsInWindow() int { return idx.selector.W() }

// AddFiles ingests files. The call is all or nothing: on error no file of
// the batch is indexed.
func (idx *Index) AddFiles(files []*TokenizedFile) error {
	return idx.add(files, false)
}

// AddIgnoredFile ingests a template file. Every fingerprint it contributes
// is ignored for all files from then on.
func (idx *Index) AddIgnoredFile(file *TokenizedFile) error {
	return idx.add([]*TokenizedFile{file}, true)
}

func (idx *Index) add(files []*TokenizedFile, template bool) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, ok := idx.files[f.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateFile, f.ID)
		}
		if _, ok := seen[f.ID]; ok {
			return fmt.Errorf("%w: %q appears twice in batch", ErrDuplicateFile, f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	// Hashing and winnowing touch no shared state, so they run in parallel;
	// results are committed in input order by this goroutine alone.
	staged := make([][]Fingerprint, len(files))
	g, run := taskgroup.New(nil).Limit(idx.workers)
	for i, f := range files {
		run(func() error {
			fps, err := idx.fingerprintFile(f)
			if err != nil {
				return err
			}
			staged[i] = fps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, f := range files {
		idx.commit(f, staged[i], template)
	}
	if idx.maxPercentage > 0 {
		idx.rederive()
	}

	log.Debug().
		Int("files", len(files)).
		Bool("template", template).
		Int("fingerprints", len(idx.fingerprints)).
		Msg("Indexed files")
	return nil
}

// fingerprintFile winnows f and checks that every selected k-gram is in
// source order. A k-gram ending on a closing parenthesis is exempt.
func (idx *Index) fingerprintFile(f *TokenizedFile) ([]Fingerprint, error) {
	if len(f.Tokens) != len(f.Mapping) {
		return nil, fmt.Errorf("%w: file %q has %d tokens and %d regions",
			ErrMappingLength, f.ID, len(f.Tokens), len(f.Mapping))
	}
	fps := idx.selector.Select(f.Tokens)
	for _, fp := range fps {
		first, last := f.Mapping[fp.Range.Start], f.Mapping[fp.Range.Stop-1]
		if !InOrder(first, last) && f.Tokens[fp.Range.Stop-1] != ")" {
			return nil, fmt.Errorf("%w: file %q k-gram [%d,%d) spans %s to %s",
				ErrRegionOrder, f.ID, fp.Range.Start, fp.Range.Stop, first, last)
		}
	}
	return fps, nil
}

func (idx *Index) commit(f *TokenizedFile, fps []Fingerprint, template bool) {
	entry := newFileEntry(f, template)
	idx.files[f.ID] = entry
	idx.order = append(idx.order, entry)

	limit := idx.fileLimit()
	entry.Kgrams = make([]Range, 0, len(fps))
	for _, fp := range fps {
		entry.Kgrams = append(entry.Kgrams, fp.Range)

		sf, ok := idx.fingerprints[fp.Hash]
		if !ok {
			sf = &SharedFingerprint{
				Hash:  fp.Hash,
				Data:  fp.Data,
				files: make(map[string]struct{}),
			}
			idx.fingerprints[fp.Hash] = sf
		}
		sf.Occurrences = append(sf.Occurrences, Occurrence{
			FileID:     f.ID,
			KgramIndex: fp.KgramIndex,
			Range:      fp.Range,
			Data:       fp.Data,
			Region:     entry.selection(fp.Range),
		})
		sf.files[f.ID] = struct{}{}
		if template {
			sf.template = true
		}
		idx.classifyWithLimit(sf, limit)
		idx.refile(sf, entry)
	}
}

// fileLimit is the largest file count a fingerprint may reach and stay active.
func (idx *Index) fileLimit() int {
	limit := math.MaxInt
	if idx.maxFileCount > 0 {
		limit = idx.maxFileCount
	}
	if idx.maxPercentage > 0 {
		n := 0
		for _, e := range idx.order {
			if !e.IsIgnored {
				n++
			}
		}
		limit = min(limit, int(math.Floor(idx.maxPercentage*float64(n))))
	}
	return limit
}

func (idx *Index) shouldIgnore(sf *SharedFingerprint, limit int) bool {
	if sf.template || sf.FileCount() > limit {
		return true
	}
	_, manual := idx.manual[sf.Hash]
	return manual
}

// classify re-derives sf's ignore state and, when it changed, moves the
// hash between the shared and ignored sets of every file it touches.
func (idx *Index) classify(sf *SharedFingerprint) bool {
	return idx.classifyWithLimit(sf, idx.fileLimit())
}

func (idx *Index) classifyWithLimit(sf *SharedFingerprint, limit int) bool {
	ignored := idx.shouldIgnore(sf, limit)
	if ignored == sf.ignored {
		return false
	}
	sf.ignored = ignored
	for id := range sf.files {
		idx.refile(sf, idx.files[id])
	}
	return true
}

func (idx *Index) refile(sf *SharedFingerprint, entry *FileEntry) {
	if sf.ignored {
		delete(entry.shared, sf.Hash)
		entry.ignored[sf.Hash] = struct{}{}
		return
	}
	delete(entry.ignored, sf.Hash)
	entry.shared[sf.Hash] = struct{}{}
}

// rederive recomputes the ignore state of every fingerprint and returns how
// many changed.
func (idx *Index) rederive() int {
	limit := idx.fileLimit()
	changed := 0
	for _, sf := range idx.fingerprints {
		if idx.classifyWithLimit(sf, limit) {
			changed++
		}
	}
	return changed
}

// AddIgnoredHashes blacklists hashes regardless of how many files they touch.
func (idx *Index) AddIgnoredHashes(hashes ...Hash) {
	for _, h := range hashes {
		idx.manual[h] = struct{}{}
		if sf, ok := idx.fingerprints[h]; ok {
			idx.classify(sf)
		}
	}
}

// UpdateMaxFingerprintFileCount sets the boilerplate threshold and
// re-derives the ignore state of every fingerprint. Zero or less disables it.
func (idx *Index) UpdateMaxFingerprintFileCount(n int) {
	idx.maxFileCount = n
	changed := idx.rederive()
	log.Debug().Int("maxFileCount", n).Int("changed", changed).Msg("Updated fingerprint file limit")
}

// UpdateMaxFingerprintPercentage sets the threshold as a fraction of the
// indexed non-template files. Zero or less disables it.
func (idx *Index) UpdateMaxFingerprintPercentage(p float64) {
	idx.maxPercentage = p
	changed := idx.rederive()
	log.Debug().Float64("maxPercentage", p).Int("changed", changed).Msg("Updated fingerprint percentage limit")
}

// Entry returns the entry for a file id.
func (idx *Index) Entry(id string) (*FileEntry, bool) {
	e, ok := idx.files[id]
	return e, ok
}

// Files returns the non-template entries in ingestion order.
func (idx *Index) Files() []*FileEntry {
	out := make([]*FileEntry, 0, len(idx.order))
	for _, e := range idx.order {
		if !e.IsIgnored {
			out = append(out, e)
		}
	}
	return out
}

// Fingerprint returns the shared fingerprint for h.
func (idx *Index) Fingerprint(h Hash) (*SharedFingerprint, bool) {
	sf, ok := idx.fingerprints[h]
	return sf, ok
}

// SharedFingerprints returns every fingerprint ordered by hash.
func (idx *Index) SharedFingerprints() []*SharedFingerprint {
	out := make([]*SharedFingerprint, 0, len(idx.fingerprints))
	for _, sf := range idx.fingerprints {
		out = append(out, sf)
	}
	slices.SortFunc(out, func(a, b *SharedFingerprint) int {
		return compareHash(a.Hash, b.Hash)
	})
	return out
}

// GetPair compares two indexed files.
func (idx *Index) GetPair(left, right *TokenizedFile) (*Pair, error) {
	return idx.GetPairByID(left.ID, right.ID)
}

// GetPairByID compares two indexed files by id.
func (idx *Index) GetPairByID(leftID, rightID string) (*Pair, error) {
	l, ok := idx.files[leftID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotIndexed, leftID)
	}
	r, ok := idx.files[rightID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotIndexed, rightID)
	}
	return newPair(idx, l, r), nil
}

func compareHash(a, b Hash) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
