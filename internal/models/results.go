package models

import (
	"time"

	"github.com/RishiKendai/winnow/internal/winnow"
)

type Step string

const (
	StepIdle      Step = "idle"
	StepInitiated Step = "initiated"
	StepStarted   Step = "started"
	StepIndexing  Step = "indexing"
	StepComparing Step = "comparing"
	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
)

const (
	ReportPending   = "pending"
	ReportCompleted = "completed"
	ReportFailed    = "failed"
)

// Artifact represents a tokenized submission stored in MongoDB
type Artifact struct {
	AttemptID    string          `bson:"attemptId" json:"attemptId"`
	Email        string          `bson:"email" json:"email"`
	AssignmentID string          `bson:"assignmentId" json:"assignmentId"`
	Path         string          `bson:"path" json:"path"`
	Language     string          `bson:"language" json:"language"`
	SourceCode   string          `bson:"sourceCode" json:"sourceCode"`
	Tokens       []string        `bson:"tokens" json:"tokens"`
	Mapping      []winnow.Region `bson:"mapping" json:"mapping"`
	IsTemplate   bool            `bson:"isTemplate" json:"isTemplate"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
}

// TokenizedFile exposes the artifact to the fingerprint index.
func (a *Artifact) TokenizedFile() *winnow.TokenizedFile {
	return &winnow.TokenizedFile{
		ID:      a.AttemptID,
		Path:    a.Path,
		Tokens:  a.Tokens,
		Mapping: a.Mapping,
	}
}

// SimilarityReport is the assignment-wide overview of one computation run
type SimilarityReport struct {
	RunID             string    `bson:"runId" json:"runId"`
	AssignmentID      string    `bson:"assignmentId" json:"assignmentId"`
	Status            string    `bson:"status" json:"status"` // pending, completed, failed
	Error             string    `bson:"error,omitempty" json:"error,omitempty"`
	KgramLength       int       `bson:"kgramLength" json:"kgramLength"`
	KgramsInWindow    int       `bson:"kgramsInWindow" json:"kgramsInWindow"`
	SortBy            string    `bson:"sortBy" json:"sortBy"`
	MinSimilarity     *float64  `bson:"minSimilarity,omitempty" json:"minSimilarity,omitempty"`
	TotalSubmissions  int       `bson:"total_submissions" json:"total_submissions"`
	TotalComparisons  int       `bson:"total_comparisons" json:"total_comparisons"`
	StoredPairs       int       `bson:"stored_pairs" json:"stored_pairs"`
	FlaggedPairs      int       `bson:"flagged_pairs" json:"flagged_pairs"`
	AverageSimilarity float64   `bson:"average_similarity" json:"average_similarity"`
	HighestSimilarity float64   `bson:"highest_similarity" json:"highest_similarity"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
	CompletedAt       time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// PairResult is the comparison of two submissions within a run. LeftID is
// always ordered before RightID.
type PairResult struct {
	RunID        string           `bson:"runId" json:"runId"`
	AssignmentID string           `bson:"assignmentId" json:"assignmentId"`
	Rank         int              `bson:"rank" json:"rank"`
	LeftID       string           `bson:"leftId" json:"leftId"`
	RightID      string           `bson:"rightId" json:"rightId"`
	Similarity   float64          `bson:"similarity" json:"similarity"`
	Overlap      int              `bson:"overlap" json:"overlap"`
	Longest      int              `bson:"longest" json:"longest"`
	LeftCovered  int              `bson:"leftCovered" json:"leftCovered"`
	RightCovered int              `bson:"rightCovered" json:"rightCovered"`
	LeftTotal    int              `bson:"leftTotal" json:"leftTotal"`
	RightTotal   int              `bson:"rightTotal" json:"rightTotal"`
	Risk         string           `bson:"risk" json:"risk"`
	Flagged      bool             `bson:"is_flagged" json:"is_flagged"`
	Fragments    []FragmentResult `bson:"matching_segments" json:"matching_segments"`
	CreatedAt    time.Time        `bson:"createdAt" json:"createdAt"`
}

// FragmentResult is one matching segment in source coordinates
type FragmentResult struct {
	Left   winnow.Region `bson:"left" json:"left"`
	Right  winnow.Region `bson:"right" json:"right"`
	Length int           `bson:"length" json:"length"`
}

// ComputeRequest represents a request to compute plagiarism
type ComputeRequest struct {
	AssignmentID string `json:"assignmentId" binding:"required"`
	SortBy       string `json:"sortBy"`

	// MinSimilarity drops stored pairs below it. Nil uses the configured default.
	MinSimilarity *float64 `json:"minSimilarity" binding:"omitempty,gte=0,lte=1"`
}

// ComputeResponse represents the response from compute endpoint
type ComputeResponse struct {
	Step         Step   `json:"step"`
	AssignmentID string `json:"assignmentId"`
	RunID        string `json:"runId"`
}

// StatusResponse represents the response from status endpoint
type StatusResponse struct {
	Step         Step   `json:"step"`
	AssignmentID string `json:"assignmentId"`
}

// ReportResponse bundles a report with its pair results
type ReportResponse struct {
	Report *SimilarityReport `json:"report"`
	Pairs  []*PairResult     `json:"pairs"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
