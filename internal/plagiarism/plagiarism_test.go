package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/RishiKendai/winnow/internal/winnow"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

type fakeStatus struct {
	mu    sync.Mutex
	steps []models.Step
	value map[string]string
}

func (f *fakeStatus) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == nil {
		f.value = make(map[string]string)
	}
	f.value[key] = value.(string)
	f.steps = append(f.steps, models.Step(value.(string)))
	return redis.NewStatusCmd(ctx)
}

func (f *fakeStatus) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.value[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeStatus) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == nil {
		f.value = make(map[string]string)
	}
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.value[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.value[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeStatus) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	for _, k := range keys {
		if _, ok := f.value[k]; ok {
			delete(f.value, k)
			cmd.SetVal(cmd.Val() + 1)
		}
	}
	return cmd
}

type fakeArtifacts struct {
	artifacts []*models.Artifact
	err       error
}

func (f *fakeArtifacts) GetArtifactsByAssignmentID(context.Context, string) ([]*models.Artifact, error) {
	return f.artifacts, f.err
}

type fakeReports struct {
	updates []models.SimilarityReport
	pairs   []*models.PairResult
}

func (f *fakeReports) UpdateReport(_ context.Context, r *models.SimilarityReport) error {
	f.updates = append(f.updates, *r)
	return nil
}

func (f *fakeReports) InsertPairResults(_ context.Context, results []*models.PairResult) error {
	f.pairs = append(f.pairs, results...)
	return nil
}

func tokens(tag string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", tag, i)
	}
	return out
}

func artifact(id string, template bool, toks ...string) *models.Artifact {
	mapping := make([]winnow.Region, len(toks))
	for i := range toks {
		mapping[i] = winnow.Region{StartRow: 0, StartCol: i, EndRow: 0, EndCol: i + 1}
	}
	return &models.Artifact{AttemptID: id, AssignmentID: "as1", Tokens: toks, Mapping: mapping, IsTemplate: template}
}

func testOptions() Options {
	return Options{
		Winnow:        winnow.Options{KgramLength: 4, KgramsInWindow: 3},
		FlagThreshold: 0.75,
	}
}

func newPool(t *testing.T) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(context.Background(), 3)
	t.Cleanup(pool.Close)
	return pool
}

func TestGetRiskLevel(t *testing.T) {
	tests := []struct {
		similarity float64
		want       string
	}{
		{0, RiskClean},
		{0.29, RiskClean},
		{0.3, RiskSuspicious},
		{0.59, RiskSuspicious},
		{0.6, RiskHighlySuspicious},
		{0.85, RiskNearCopy},
		{1, RiskNearCopy},
	}
	for _, tt := range tests {
		if got := GetRiskLevel(tt.similarity); got != tt.want {
			t.Errorf("GetRiskLevel(%v): got %q, want %q", tt.similarity, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	st := &fakeStatus{}

	step, err := GetStatus(ctx, st, "as1")
	if err != nil || step != models.StepIdle {
		t.Fatalf("GetStatus before update: got %q, %v", step, err)
	}
	if err := UpdateStatus(ctx, st, "as1", models.StepIndexing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if step, err := GetStatus(ctx, st, "as1"); err != nil || step != models.StepIndexing {
		t.Errorf("GetStatus: got %q, %v", step, err)
	}
	if err := UpdateStatus(ctx, st, "as1", "filtering"); err == nil {
		t.Error("UpdateStatus: expected error for unknown step")
	}
}

func TestRunLock(t *testing.T) {
	ctx := context.Background()
	st := &fakeStatus{}

	ok, err := AcquireRunLock(ctx, st, "as1", "run1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: got %v, %v", ok, err)
	}
	if ok, err := AcquireRunLock(ctx, st, "as1", "run2", time.Minute); err != nil || ok {
		t.Fatalf("second acquire: got %v, %v, want lock held", ok, err)
	}
	if ok, _ := AcquireRunLock(ctx, st, "as2", "run3", time.Minute); !ok {
		t.Error("lock on another assignment should be free")
	}

	if err := ReleaseRunLock(ctx, st, "as1", "run2"); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if ok, _ := AcquireRunLock(ctx, st, "as1", "run2", time.Minute); ok {
		t.Fatal("non-holder released the lock")
	}
	if err := ReleaseRunLock(ctx, st, "as1", "run1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := AcquireRunLock(ctx, st, "as1", "run2", time.Minute); !ok {
		t.Error("lock still held after release")
	}
	if len(st.steps) != 0 {
		t.Errorf("locking recorded steps: %v", st.steps)
	}
}

func TestBuildIndexTemplates(t *testing.T) {
	shared := tokens("s", 20)
	arts := []*models.Artifact{
		artifact("b", false, shared...),
		artifact("tmpl", true, shared...),
		artifact("a", false, shared...),
	}
	idx, err := BuildIndex(arts, testOptions())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	var ids []string
	for _, e := range idx.Files() {
		ids = append(ids, e.File.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("indexed submissions (-want +got):\n%s", diff)
	}
	p, err := idx.GetPairByID("a", "b")
	if err != nil {
		t.Fatalf("GetPairByID: %v", err)
	}
	if p.Similarity != 0 {
		t.Errorf("template code matched: similarity %v", p.Similarity)
	}
}

func TestComparePairsOrder(t *testing.T) {
	common := tokens("c", 30)
	arts := []*models.Artifact{
		artifact("a", false, common...),
		artifact("b", false, append(common[:15:15], tokens("b", 15)...)...),
		artifact("c", false, common...),
		artifact("d", false, tokens("d", 30)...),
	}
	idx, err := BuildIndex(arts, testOptions())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	pairs, err := ComparePairs(context.Background(), idx, newPool(t))
	if err != nil {
		t.Fatalf("ComparePairs: %v", err)
	}
	var ids []string
	for _, p := range pairs {
		ids = append(ids, p.LeftID()+"-"+p.RightID())
	}
	if diff := cmp.Diff([]string{"a-b", "a-c", "a-d", "b-c", "b-d", "c-d"}, ids); diff != "" {
		t.Errorf("pair order (-want +got):\n%s", diff)
	}

	rep := winnow.BuildReport(pairs, len(idx.Files()), winnow.ReportOptions{SortBy: winnow.SortBySimilarity})
	first := rep.Pairs[0]
	if first.LeftID() != "a" || first.RightID() != "c" || first.Similarity != 1 {
		t.Errorf("first pair: %s-%s similarity %v, want a-c 1", first.LeftID(), first.RightID(), first.Similarity)
	}
	results := BuildResults(rep, 0.75)
	if len(results) != 6 || results[0].Rank != 1 || results[5].Rank != 6 {
		t.Fatalf("results: %+v", results)
	}
	if len(results[0].Fragments) != 1 || results[0].Fragments[0].Length != 30 {
		t.Errorf("a-c fragments: %+v", results[0].Fragments)
	}
}

func TestComputePlagiarism(t *testing.T) {
	common := tokens("c", 30)
	src := &fakeArtifacts{artifacts: []*models.Artifact{
		artifact("a", false, common...),
		artifact("b", false, common...),
		artifact("c", false, tokens("x", 30)...),
	}}
	reports := &fakeReports{}
	status := &fakeStatus{}
	svc := NewService(src, reports, status, newPool(t), testOptions())

	report := &models.SimilarityReport{RunID: "run1", AssignmentID: "as1", Status: models.ReportPending}
	if err := svc.ComputePlagiarism(context.Background(), report); err != nil {
		t.Fatalf("ComputePlagiarism: %v", err)
	}

	wantSteps := []models.Step{models.StepStarted, models.StepIndexing, models.StepComparing, models.StepCompleted}
	if diff := cmp.Diff(wantSteps, status.steps); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}
	if len(reports.updates) != 1 {
		t.Fatalf("report updates: got %d, want 1", len(reports.updates))
	}
	got := reports.updates[0]
	if got.Status != models.ReportCompleted || got.TotalSubmissions != 3 || got.TotalComparisons != 3 ||
		got.FlaggedPairs != 1 || got.HighestSimilarity != 1 || got.SortBy != "similarity" || got.KgramLength != 4 {
		t.Errorf("report: %+v", got)
	}

	if len(reports.pairs) != 3 {
		t.Fatalf("pair results: got %d, want 3", len(reports.pairs))
	}
	top := reports.pairs[0]
	if top.Rank != 1 || top.LeftID != "a" || top.RightID != "b" || !top.Flagged || top.Risk != RiskNearCopy || top.RunID != "run1" {
		t.Errorf("top pair: %+v", top)
	}
	want := []models.FragmentResult{{
		Left:   winnow.Region{StartRow: 0, StartCol: 0, EndRow: 0, EndCol: 30},
		Right:  winnow.Region{StartRow: 0, StartCol: 0, EndRow: 0, EndCol: 30},
		Length: 30,
	}}
	if diff := cmp.Diff(want, top.Fragments); diff != "" {
		t.Errorf("top fragments (-want +got):\n%s", diff)
	}
}

func TestComputePlagiarismFailure(t *testing.T) {
	reports := &fakeReports{}
	status := &fakeStatus{}
	boom := errors.New("mongo down")
	svc := NewService(&fakeArtifacts{err: boom}, reports, status, newPool(t), testOptions())

	report := &models.SimilarityReport{RunID: "run1", AssignmentID: "as1", Status: models.ReportPending}
	if err := svc.ComputePlagiarism(context.Background(), report); !errors.Is(err, boom) {
		t.Fatalf("ComputePlagiarism: got %v, want %v", err, boom)
	}
	if len(reports.updates) != 1 || reports.updates[0].Status != models.ReportFailed || reports.updates[0].Error == "" {
		t.Errorf("report updates: %+v", reports.updates)
	}
	if last := status.steps[len(status.steps)-1]; last != models.StepFailed {
		t.Errorf("last step: got %q, want failed", last)
	}
}

func TestComputePlagiarismNoSubmissions(t *testing.T) {
	src := &fakeArtifacts{artifacts: []*models.Artifact{artifact("tmpl", true, tokens("t", 10)...)}}
	svc := NewService(src, &fakeReports{}, &fakeStatus{}, newPool(t), testOptions())
	report := &models.SimilarityReport{RunID: "run1", AssignmentID: "as1"}
	if err := svc.ComputePlagiarism(context.Background(), report); err == nil {
		t.Fatal("ComputePlagiarism: expected error with only a template")
	}
}

func TestComputePlagiarismMinSimilarity(t *testing.T) {
	common := tokens("c", 30)
	src := &fakeArtifacts{artifacts: []*models.Artifact{
		artifact("a", false, common...),
		artifact("b", false, common...),
		artifact("c", false, tokens("x", 30)...),
	}}

	t.Run("default", func(t *testing.T) {
		reports := &fakeReports{}
		opts := testOptions()
		opts.MinSimilarity = 0.5
		svc := NewService(src, reports, &fakeStatus{}, newPool(t), opts)
		report := &models.SimilarityReport{RunID: "run1", AssignmentID: "as1"}
		if err := svc.ComputePlagiarism(context.Background(), report); err != nil {
			t.Fatalf("ComputePlagiarism: %v", err)
		}
		if len(reports.pairs) != 1 || reports.pairs[0].LeftID != "a" || reports.pairs[0].RightID != "b" {
			t.Errorf("stored pairs: %+v", reports.pairs)
		}
		got := reports.updates[0]
		if got.TotalComparisons != 3 || got.StoredPairs != 1 || got.MinSimilarity == nil || *got.MinSimilarity != 0.5 {
			t.Errorf("report: %+v", got)
		}
	})

	t.Run("request overrides default", func(t *testing.T) {
		reports := &fakeReports{}
		opts := testOptions()
		opts.MinSimilarity = 0.5
		svc := NewService(src, reports, &fakeStatus{}, newPool(t), opts)
		zero := 0.0
		report := &models.SimilarityReport{RunID: "run2", AssignmentID: "as1", MinSimilarity: &zero}
		if err := svc.ComputePlagiarism(context.Background(), report); err != nil {
			t.Fatalf("ComputePlagiarism: %v", err)
		}
		if len(reports.pairs) != 3 || reports.updates[0].StoredPairs != 3 {
			t.Errorf("stored %d pairs, want 3", len(reports.pairs))
		}
	})
}
