package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/RishiKendai/winnow/internal/plagiarism"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ArtifactCounter reports how many submissions an assignment has.
type ArtifactCounter interface {
	CountArtifactsByAssignmentID(ctx context.Context, assignmentID string) (int64, error)
}

// ReportRepository reads and creates similarity reports.
type ReportRepository interface {
	InsertReport(ctx context.Context, report *models.SimilarityReport) error
	GetLatestReportByAssignmentID(ctx context.Context, assignmentID string) (*models.SimilarityReport, error)
	GetPairResults(ctx context.Context, runID string) ([]*models.PairResult, error)
}

// Computer runs one report.
type Computer interface {
	ComputePlagiarism(ctx context.Context, report *models.SimilarityReport) error
}

// StatusStore holds report steps and run locks.
type StatusStore interface {
	plagiarism.StatusClient
	plagiarism.RunLocker
}

// Handler holds dependencies for handlers
type Handler struct {
	artifacts      ArtifactCounter
	reports        ReportRepository
	computer       Computer
	status         StatusStore
	computeSem     chan struct{}
	computeTimeout time.Duration
}

func NewHandler(
	artifacts ArtifactCounter,
	reports ReportRepository,
	computer Computer,
	status StatusStore,
	maxConcurrent int,
	computeTimeout time.Duration,
) *Handler {
	return &Handler{
		artifacts:      artifacts,
		reports:        reports,
		computer:       computer,
		status:         status,
		computeSem:     make(chan struct{}, maxConcurrent),
		computeTimeout: computeTimeout,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// lockTTL outlives the computation deadline so the lock only expires on
// its own when the process died mid-run.
func (h *Handler) lockTTL() time.Duration {
	return h.computeTimeout + time.Minute
}

func (h *Handler) releaseLock(ctx context.Context, assignmentID, runID string) {
	if err := plagiarism.ReleaseRunLock(ctx, h.status, assignmentID, runID); err != nil {
		log.Warn().Err(err).Str("assignmentId", assignmentID).Str("runId", runID).Msg("Failed to release run lock")
	}
}

func (h *Handler) Compute(c *gin.Context) {
	var req models.ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	req.AssignmentID = strings.TrimSpace(req.AssignmentID)
	if req.AssignmentID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "assignmentId is required",
			Code:  "INVALID_ASSIGNMENT_ID",
		})
		return
	}

	ctx := c.Request.Context()
	count, err := h.artifacts.CountArtifactsByAssignmentID(ctx, req.AssignmentID)
	if err != nil {
		log.Error().Err(err).Str("assignmentId", req.AssignmentID).Msg("Failed to check artifacts")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to check artifacts",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "No submissions found for assignmentId",
			Code:  "ASSIGNMENT_NOT_FOUND",
		})
		return
	}

	runID := uuid.New().String()
	acquired, err := plagiarism.AcquireRunLock(ctx, h.status, req.AssignmentID, runID, h.lockTTL())
	if err != nil {
		log.Error().Err(err).Str("assignmentId", req.AssignmentID).Msg("Failed to acquire run lock")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to start computation",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if !acquired {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: "A computation is already running for assignmentId",
			Code:  "ALREADY_RUNNING",
		})
		return
	}
	// The request context may be gone by the time the lock must be dropped.
	cleanup := context.WithoutCancel(ctx)

	// Bounded concurrency: wait for a slot or the client to go away.
	select {
	case h.computeSem <- struct{}{}:
	case <-ctx.Done():
		h.releaseLock(cleanup, req.AssignmentID, runID)
		c.JSON(http.StatusRequestTimeout, models.ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
		return
	}

	report := &models.SimilarityReport{
		RunID:         runID,
		AssignmentID:  req.AssignmentID,
		Status:        models.ReportPending,
		SortBy:        req.SortBy,
		MinSimilarity: req.MinSimilarity,
	}
	if err := h.reports.InsertReport(ctx, report); err != nil {
		<-h.computeSem
		h.releaseLock(cleanup, req.AssignmentID, runID)
		log.Error().Err(err).Str("assignmentId", req.AssignmentID).Msg("Failed to create pending report")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to create report",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	if err := plagiarism.UpdateStatus(ctx, h.status, req.AssignmentID, models.StepInitiated); err != nil {
		log.Warn().Err(err).Str("assignmentId", req.AssignmentID).Msg("Failed to update initiated status")
	}

	c.JSON(http.StatusAccepted, models.ComputeResponse{
		Step:         models.StepInitiated,
		AssignmentID: req.AssignmentID,
		RunID:        report.RunID,
	})

	go h.processComputation(report)
}

func (h *Handler) processComputation(report *models.SimilarityReport) {
	defer func() { <-h.computeSem }()
	defer h.releaseLock(context.Background(), report.AssignmentID, report.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), h.computeTimeout)
	defer cancel()

	// Failures are logged and recorded by the computer itself.
	_ = h.computer.ComputePlagiarism(ctx, report)
}

func (h *Handler) Status(c *gin.Context) {
	assignmentID := c.Param("assignmentId")
	step, err := plagiarism.GetStatus(c.Request.Context(), h.status, assignmentID)
	if err != nil {
		log.Error().Err(err).Str("assignmentId", assignmentID).Msg("Failed to read status")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to read status",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Step: step, AssignmentID: assignmentID})
}

func (h *Handler) Report(c *gin.Context) {
	ctx := c.Request.Context()
	assignmentID := c.Param("assignmentId")

	report, err := h.reports.GetLatestReportByAssignmentID(ctx, assignmentID)
	if err != nil {
		log.Error().Err(err).Str("assignmentId", assignmentID).Msg("Failed to load report")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to load report",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "No report found for assignmentId",
			Code:  "REPORT_NOT_FOUND",
		})
		return
	}

	pairs := []*models.PairResult{}
	if report.Status == models.ReportCompleted {
		pairs, err = h.reports.GetPairResults(ctx, report.RunID)
		if err != nil {
			log.Error().Err(err).Str("runId", report.RunID).Msg("Failed to load pair results")
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: "Failed to load pair results",
				Code:  "INTERNAL_ERROR",
			})
			return
		}
	}

	c.JSON(http.StatusOK, models.ReportResponse{Report: report, Pairs: pairs})
}
