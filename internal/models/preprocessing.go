package models

import "github.com/RishiKendai/winnow/internal/winnow"

// PreprocessingResponse represents the response from the tokenizer API
type PreprocessingResponse struct {
	AttemptID     string            `json:"attemptId"`
	AssignmentID  string            `json:"assignmentId"`
	Language      string            `json:"language"`
	Preprocessing PreprocessingData `json:"preprocessing"`
}

// PreprocessingData contains the token stream and its source mapping.
// Mapping holds one region per token.
type PreprocessingData struct {
	Tokens  []string        `json:"tokens"`
	Mapping []winnow.Region `json:"mapping"`
}

// PreprocessingError represents an error response from the tokenizer API
type PreprocessingError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
