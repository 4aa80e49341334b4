package preprocess

import (
	"context"
	"fmt"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/rs/zerolog/log"
)

// Tokenizer turns source code into a token stream with its source mapping.
type Tokenizer interface {
	Tokenize(ctx context.Context, req *TokenizeRequest) (*models.PreprocessingResponse, error)
}

// ArtifactStore persists tokenized submissions.
type ArtifactStore interface {
	UpsertArtifact(ctx context.Context, artifact *models.Artifact) error
}

type Service struct {
	tokenizer Tokenizer
	artifacts ArtifactStore
}

func NewService(tokenizer Tokenizer, artifacts ArtifactStore) *Service {
	return &Service{
		tokenizer: tokenizer,
		artifacts: artifacts,
	}
}

// ProcessSubmission tokenizes a submission and stores the result
func (s *Service) ProcessSubmission(ctx context.Context, submission *models.Submission) error {
	tokenized, err := s.tokenizer.Tokenize(ctx, &TokenizeRequest{
		AttemptID:    submission.AttemptID,
		AssignmentID: submission.AssignmentID,
		Path:         submission.Path,
		Code:         submission.SourceCode,
		Language:     submission.Language,
	})
	if err != nil {
		return fmt.Errorf("failed to tokenize: %w", err)
	}

	path := submission.Path
	if path == "" {
		path = submission.AttemptID
	}
	language := tokenized.Language
	if language == "" {
		language = submission.Language
	}

	artifact := &models.Artifact{
		AttemptID:    submission.AttemptID,
		Email:        submission.Email,
		AssignmentID: submission.AssignmentID,
		Path:         path,
		Language:     language,
		SourceCode:   submission.SourceCode,
		Tokens:       tokenized.Preprocessing.Tokens,
		Mapping:      tokenized.Preprocessing.Mapping,
		IsTemplate:   submission.IsTemplate,
	}

	if err := s.artifacts.UpsertArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	log.Debug().
		Str("attemptId", artifact.AttemptID).
		Str("assignmentId", artifact.AssignmentID).
		Int("tokens", len(artifact.Tokens)).
		Bool("template", artifact.IsTemplate).
		Msg("Stored artifact")
	return nil
}
