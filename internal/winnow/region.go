package winnow

import "fmt"

// Region is a span in source coordinates. Rows and columns are zero based,
// the end position is exclusive on the column.
type Region struct {
	StartRow int `json:"startRow" bson:"startRow"`
	StartCol int `json:"startCol" bson:"startCol"`
	EndRow   int `json:"endRow" bson:"endRow"`
	EndCol   int `json:"endCol" bson:"endCol"`
}

func (r Region) String() string {
	return fmt.Sprintf("[%d:%d-%d:%d]", r.StartRow, r.StartCol, r.EndRow, r.EndCol)
}

// InOrder reports whether a starts at or before b.
func InOrder(a, b Region) bool {
	return a.StartRow < b.StartRow || (a.StartRow == b.StartRow && a.StartCol <= b.StartCol)
}

// Merge returns the smallest region covering both a and b.
func Merge(a, b Region) Region {
	out := a
	if !InOrder(a, b) {
		out.StartRow, out.StartCol = b.StartRow, b.StartCol
	}
	if b.EndRow > a.EndRow || (b.EndRow == a.EndRow && b.EndCol > a.EndCol) {
		out.EndRow, out.EndCol = b.EndRow, b.EndCol
	}
	return out
}

// Range is a half-open interval [Start, Stop) over token indices.
type Range struct {
	Start int `json:"start" bson:"start"`
	Stop  int `json:"stop" bson:"stop"`
}

// Len returns the number of tokens in the range.
func (r Range) Len() int { return r.Stop - r.Start }

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.Stop <= r.Stop
}

// Hash is a k-gram fingerprint value. Collisions are tolerated, only
// equality is meaningful.
type Hash uint64

// TokenizedFile is the output of an external tokenizer. Mapping holds one
// source region per token.
type TokenizedFile struct {
	ID      string
	Path    string
	Tokens  []string
	Mapping []Region
}

// Occurrence is one place where a fingerprint was selected inside a file.
type Occurrence struct {
	FileID     string
	KgramIndex int
	Range      Range
	Data       []string
	Region     Region
}

// SharedFingerprint groups every occurrence of one selected hash across the
// indexed files.
type SharedFingerprint struct {
	Hash        Hash
	Data        []string
	Occurrences []Occurrence

	ignored  bool
	template bool
	files    map[string]struct{}
}

// Ignored reports whether the fingerprint is currently suppressed.
func (s *SharedFingerprint) Ignored() bool { return s.ignored }

// FileCount returns the number of distinct files this fingerprint touches.
func (s *SharedFingerprint) FileCount() int { return len(s.files) }

// OccurrencesOf returns the occurrences that belong to the given file.
func (s *SharedFingerprint) OccurrencesOf(fileID string) []Occurrence {
	var out []Occurrence
	for _, occ := range s.Occurrences {
		if occ.FileID == fileID {
			out = append(out, occ)
		}
	}
	return out
}

// FileEntry is the per-file bookkeeping kept by the index. The shared and
// ignored sets hold hashes that address the index's fingerprint arena.
type FileEntry struct {
	File      *TokenizedFile
	Kgrams    []Range
	IsIgnored bool

	shared  map[Hash]struct{}
	ignored map[Hash]struct{}
}

func newFileEntry(file *TokenizedFile, template bool) *FileEntry {
	return &FileEntry{
		File:      file,
		IsIgnored: template,
		shared:    make(map[Hash]struct{}),
		ignored:   make(map[Hash]struct{}),
	}
}

// SharedCount returns how many active fingerprints touch the file.
func (e *FileEntry) SharedCount() int { return len(e.shared) }

// IgnoredCount returns how many suppressed fingerprints touch the file.
func (e *FileEntry) IgnoredCount() int { return len(e.ignored) }

// selection spans the regions of tokens [r.Start, r.Stop).
func (e *FileEntry) selection(r Range) Region {
	m := e.File.Mapping
	if r.Len() <= 0 || r.Start >= len(m) {
		return Region{}
	}
	stop := min(r.Stop, len(m))
	out := m[r.Start]
	for _, reg := range m[r.Start+1 : stop] {
		out = Merge(out, reg)
	}
	return out
}
