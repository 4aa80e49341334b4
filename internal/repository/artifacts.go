package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const artifactsCollection = "winnow_artifacts"

type ArtifactsRepository struct {
	mongoRepo *MongoRepository
}

func NewArtifactsRepository(mongoRepo *MongoRepository) *ArtifactsRepository {
	return &ArtifactsRepository{
		mongoRepo: mongoRepo,
	}
}

// UpsertArtifact stores the tokenized submission, replacing an earlier
// version of the same attempt.
func (r *ArtifactsRepository) UpsertArtifact(ctx context.Context, artifact *models.Artifact) error {
	artifact.CreatedAt = time.Now()
	filter := bson.M{"assignmentId": artifact.AssignmentID, "attemptId": artifact.AttemptID}
	update := bson.M{"$set": artifact}
	_, err := r.mongoRepo.UpdateOne(ctx, artifactsCollection, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	return nil
}

// GetArtifactsByAssignmentID returns submissions and templates of an
// assignment ordered by attempt id.
func (r *ArtifactsRepository) GetArtifactsByAssignmentID(ctx context.Context, assignmentID string) ([]*models.Artifact, error) {
	filter := bson.M{"assignmentId": assignmentID}
	opts := options.Find().SetSort(bson.D{{Key: "attemptId", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, artifactsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find artifacts: %w", err)
	}
	defer cursor.Close(ctx)

	var artifacts []*models.Artifact
	if err := cursor.All(ctx, &artifacts); err != nil {
		return nil, fmt.Errorf("failed to decode artifacts: %w", err)
	}

	return artifacts, nil
}

func (r *ArtifactsRepository) CountArtifactsByAssignmentID(ctx context.Context, assignmentID string) (int64, error) {
	filter := bson.M{"assignmentId": assignmentID, "isTemplate": false}

	count, err := r.mongoRepo.CountDocuments(ctx, artifactsCollection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}

	return count, nil
}
