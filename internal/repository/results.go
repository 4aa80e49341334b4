package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	pairsCollection   = "winnow_pair_results"
	reportsCollection = "winnow_reports"
)

type ResultsRepository struct {
	mongoRepo *MongoRepository
}

func NewResultsRepository(mongoRepo *MongoRepository) *ResultsRepository {
	return &ResultsRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *ResultsRepository) InsertReport(ctx context.Context, report *models.SimilarityReport) error {
	report.CreatedAt = time.Now()

	err := r.mongoRepo.InsertOne(ctx, reportsCollection, report)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return nil
}

// UpdateReport overwrites the stored report with the same run id.
func (r *ResultsRepository) UpdateReport(ctx context.Context, report *models.SimilarityReport) error {
	filter := bson.M{"runId": report.RunID}
	res, err := r.mongoRepo.UpdateOne(ctx, reportsCollection, filter, bson.M{"$set": report})
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update report: run %s not found", report.RunID)
	}

	return nil
}

func (r *ResultsRepository) InsertPairResults(ctx context.Context, results []*models.PairResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, len(results))
	for i, res := range results {
		res.CreatedAt = now
		docs[i] = res
	}

	if err := r.mongoRepo.InsertMany(ctx, pairsCollection, docs); err != nil {
		return fmt.Errorf("failed to insert pair results: %w", err)
	}

	return nil
}

func (r *ResultsRepository) GetLatestReportByAssignmentID(ctx context.Context, assignmentID string) (*models.SimilarityReport, error) {
	filter := bson.M{"assignmentId": assignmentID}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var report models.SimilarityReport
	err := r.mongoRepo.FindOne(ctx, reportsCollection, filter, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}

	return &report, nil
}

// GetPairResults returns the pairs of a run in rank order.
func (r *ResultsRepository) GetPairResults(ctx context.Context, runID string) ([]*models.PairResult, error) {
	filter := bson.M{"runId": runID}
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, pairsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pair results: %w", err)
	}
	defer cursor.Close(ctx)

	results := []*models.PairResult{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode pair results: %w", err)
	}

	return results, nil
}
