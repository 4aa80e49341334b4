package plagiarism

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RishiKendai/winnow/internal/metrics"
	"github.com/RishiKendai/winnow/internal/models"
	"github.com/RishiKendai/winnow/internal/winnow"
	"github.com/rs/zerolog/log"
)

// ArtifactSource loads the tokenized submissions of an assignment.
type ArtifactSource interface {
	GetArtifactsByAssignmentID(ctx context.Context, assignmentID string) ([]*models.Artifact, error)
}

// ReportStore persists reports and their pair results.
type ReportStore interface {
	UpdateReport(ctx context.Context, report *models.SimilarityReport) error
	InsertPairResults(ctx context.Context, results []*models.PairResult) error
}

// Options configures one report run.
type Options struct {
	Winnow        winnow.Options
	IgnoredHashes []winnow.Hash
	FlagThreshold float64

	// MinSimilarity is the default lower bound for stored pairs.
	MinSimilarity float64
}

type Service struct {
	artifacts ArtifactSource
	reports   ReportStore
	status    StatusClient
	pool      *WorkerPool
	opts      Options
}

func NewService(artifacts ArtifactSource, reports ReportStore, status StatusClient, pool *WorkerPool, opts Options) *Service {
	return &Service{
		artifacts: artifacts,
		reports:   reports,
		status:    status,
		pool:      pool,
		opts:      opts,
	}
}

// ComputationJob compares one pair of indexed files
type ComputationJob struct {
	Index      *winnow.Index
	Slot       int
	LeftID     string
	RightID    string
	ResultChan chan<- PairOutcome
}

// PairOutcome is the result of one ComputationJob.
type PairOutcome struct {
	Slot int
	Pair *winnow.Pair
	Err  error
}

// Execute executes the computation job
func (j *ComputationJob) Execute(ctx context.Context) error {
	out := PairOutcome{Slot: j.Slot}
	out.Pair, out.Err = j.Index.GetPairByID(j.LeftID, j.RightID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.ResultChan <- out:
		return out.Err
	}
}

// ComputePlagiarism runs the report described by report, which must already
// be stored as pending. On failure the report and the status are marked failed.
func (s *Service) ComputePlagiarism(ctx context.Context, report *models.SimilarityReport) error {
	start := time.Now()
	err := s.compute(ctx, report)
	metrics.ComputationDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.ComputationCount.WithLabelValues(models.ReportCompleted).Inc()
		return nil
	}

	metrics.ComputationCount.WithLabelValues(models.ReportFailed).Inc()
	log.Error().Err(err).Str("assignmentId", report.AssignmentID).Str("runId", report.RunID).Msg("Computation failed")

	// The run context may be the one that expired.
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	report.Status = models.ReportFailed
	report.Error = err.Error()
	report.CompletedAt = time.Now()
	if uerr := s.reports.UpdateReport(cleanup, report); uerr != nil {
		log.Error().Err(uerr).Str("runId", report.RunID).Msg("Failed to mark report failed")
	}
	if uerr := UpdateStatus(cleanup, s.status, report.AssignmentID, models.StepFailed); uerr != nil {
		log.Warn().Err(uerr).Msg("Failed to update failed status")
	}
	return err
}

func (s *Service) compute(ctx context.Context, report *models.SimilarityReport) error {
	assignmentID := report.AssignmentID
	s.step(ctx, assignmentID, models.StepStarted)

	artifacts, err := s.artifacts.GetArtifactsByAssignmentID(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to load artifacts: %w", err)
	}

	s.step(ctx, assignmentID, models.StepIndexing)
	idx, err := BuildIndex(artifacts, s.opts)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if len(idx.Files()) == 0 {
		return fmt.Errorf("no submissions found for assignmentId: %s", assignmentID)
	}
	metrics.IndexedFingerprints.Set(float64(len(idx.SharedFingerprints())))

	s.step(ctx, assignmentID, models.StepComparing)
	pairs, err := ComparePairs(ctx, idx, s.pool)
	if err != nil {
		return fmt.Errorf("failed to compare pairs: %w", err)
	}

	if report.MinSimilarity == nil {
		minSimilarity := s.opts.MinSimilarity
		report.MinSimilarity = &minSimilarity
	}
	sortBy := winnow.ParseSortKey(report.SortBy)
	rep := winnow.BuildReport(pairs, len(idx.Files()), winnow.ReportOptions{
		SortBy:        sortBy,
		MinSimilarity: *report.MinSimilarity,
		FlagThreshold: s.opts.FlagThreshold,
	})
	summary := rep.Summary
	results := BuildResults(rep, s.opts.FlagThreshold)
	for _, r := range results {
		r.RunID = report.RunID
		r.AssignmentID = assignmentID
	}
	if err := s.reports.InsertPairResults(ctx, results); err != nil {
		return fmt.Errorf("failed to store pair results: %w", err)
	}

	report.Status = models.ReportCompleted
	report.KgramLength = idx.KgramLength()
	report.KgramsInWindow = idx.KgramsInWindow()
	report.SortBy = string(sortBy)
	report.TotalSubmissions = summary.TotalFiles
	report.TotalComparisons = summary.TotalComparisons
	report.StoredPairs = len(results)
	report.FlaggedPairs = summary.FlaggedPairs
	report.AverageSimilarity = summary.AverageSimilarity
	report.HighestSimilarity = summary.HighestSimilarity
	report.CompletedAt = time.Now()
	if err := s.reports.UpdateReport(ctx, report); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	s.step(ctx, assignmentID, models.StepCompleted)
	log.Info().
		Str("assignmentId", assignmentID).
		Str("runId", report.RunID).
		Int("submissions", summary.TotalFiles).
		Int("comparisons", summary.TotalComparisons).
		Int("stored", len(results)).
		Int("flagged", summary.FlaggedPairs).
		Msg("Computation completed successfully")
	return nil
}

func (s *Service) step(ctx context.Context, assignmentID string, step models.Step) {
	if err := UpdateStatus(ctx, s.status, assignmentID, step); err != nil {
		log.Warn().Err(err).Str("assignmentId", assignmentID).Msg("Failed to update status")
	}
}

// BuildIndex indexes the artifacts of one assignment. Templates are ingested
// first so their fingerprints are ignored everywhere; submissions follow in
// attempt id order.
func BuildIndex(artifacts []*models.Artifact, opts Options) (*winnow.Index, error) {
	idx, err := winnow.NewIndex(opts.Winnow)
	if err != nil {
		return nil, err
	}

	sorted := slices.Clone(artifacts)
	slices.SortFunc(sorted, func(a, b *models.Artifact) int {
		return cmp.Compare(a.AttemptID, b.AttemptID)
	})

	var submissions []*winnow.TokenizedFile
	for _, a := range sorted {
		if !a.IsTemplate {
			submissions = append(submissions, a.TokenizedFile())
			continue
		}
		if err := idx.AddIgnoredFile(a.TokenizedFile()); err != nil {
			return nil, fmt.Errorf("template %s: %w", a.AttemptID, err)
		}
	}
	if err := idx.AddFiles(submissions); err != nil {
		return nil, err
	}
	idx.AddIgnoredHashes(opts.IgnoredHashes...)

	active, ignored := 0, 0
	for _, e := range idx.Files() {
		active += e.SharedCount()
		ignored += e.IgnoredCount()
	}
	log.Debug().
		Int("submissions", len(submissions)).
		Int("activeFileHashes", active).
		Int("ignoredFileHashes", ignored).
		Msg("Built fingerprint index")
	return idx, nil
}

// ComparePairs compares every pair of submissions on the worker pool. Pairs
// are returned in ingestion order, left before right.
func ComparePairs(ctx context.Context, idx *winnow.Index, pool *WorkerPool) ([]*winnow.Pair, error) {
	files := idx.Files()
	total := len(files) * (len(files) - 1) / 2
	resultChan := make(chan PairOutcome, total)

	slot := 0
	for i := range files {
		for j := i + 1; j < len(files); j++ {
			job := &ComputationJob{
				Index:      idx,
				Slot:       slot,
				LeftID:     files[i].File.ID,
				RightID:    files[j].File.ID,
				ResultChan: resultChan,
			}
			if err := pool.Submit(ctx, job); err != nil {
				return nil, fmt.Errorf("failed to submit job: %w", err)
			}
			slot++
		}
	}

	pairs := make([]*winnow.Pair, total)
	for range total {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-resultChan:
			if out.Err != nil {
				return nil, out.Err
			}
			pairs[out.Slot] = out.Pair
		}
	}
	metrics.PairsCompared.Add(float64(total))
	return pairs, nil
}

// BuildResults ranks the kept pairs of rep in their report order.
func BuildResults(rep *winnow.Report, flagAt float64) []*models.PairResult {
	results := make([]*models.PairResult, len(rep.Pairs))
	for i, p := range rep.Pairs {
		results[i] = ToPairResult(p, i+1, flagAt)
	}
	return results
}
