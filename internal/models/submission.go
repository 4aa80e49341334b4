package models

// Submission represents a submission from Redis stream
type Submission struct {
	AttemptID    string `json:"attemptId"`
	SourceCode   string `json:"sourceCode"`
	Language     string `json:"language"`
	Path         string `json:"path"`
	Email        string `json:"email"`
	AssignmentID string `json:"assignmentId"`
	IsTemplate   bool   `json:"isTemplate"`
}
