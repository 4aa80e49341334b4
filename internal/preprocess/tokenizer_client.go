package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/rs/zerolog/log"
)

// TokenizerClient handles communication with the tokenizer API
type TokenizerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTokenizerClient creates a new tokenizer API client. Requests are bounded
// by the caller's context only.
func NewTokenizerClient(baseURL, apiKey string) *TokenizerClient {
	return &TokenizerClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// TokenizeRequest represents the request to the tokenizer API
type TokenizeRequest struct {
	AttemptID    string `json:"attemptId"`
	AssignmentID string `json:"assignmentId"`
	Path         string `json:"path"`
	Code         string `json:"sourceCode"`
	Language     string `json:"language"`
}

func (c *TokenizerClient) Tokenize(ctx context.Context, req *TokenizeRequest) (*models.PreprocessingResponse, error) {
	url := fmt.Sprintf("%s/api/v1/tokenize", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	log.Trace().
		Str("attemptId", req.AttemptID).
		Int("bytes", len(reqBody)).
		Msg("Sending tokenize request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Handle error status codes
	if resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnsupportedMediaType ||
		resp.StatusCode == http.StatusUnprocessableEntity {
		var errResp models.PreprocessingError
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("API error: %s - %s", errResp.Error, errResp.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var tokenized models.PreprocessingResponse
	if err := json.Unmarshal(body, &tokenized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	data := tokenized.Preprocessing
	if len(data.Tokens) != len(data.Mapping) {
		return nil, fmt.Errorf("tokenizer returned %d tokens and %d regions", len(data.Tokens), len(data.Mapping))
	}

	return &tokenized, nil
}
