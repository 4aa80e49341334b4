package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/winnow/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrDeadLetter reports that a message exhausted its retries and could not
// be written to the dead-letter stream either.
var ErrDeadLetter = errors.New("dead-letter write failed")

// deadLetterWriter is the part of the redis client the retry handler needs.
type deadLetterWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RetryHandler retries a failing operation with exponential backoff and
// moves the message to the dead-letter stream once retries are exhausted.
type RetryHandler struct {
	client        deadLetterWriter
	deadLetterKey string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewRetryHandler(client deadLetterWriter, deadLetterKey string, maxRetries int) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxRetries:    maxRetries,
		baseDelay:     500 * time.Millisecond,
		maxDelay:      30 * time.Second,
	}
}

func (h *RetryHandler) delay(attempt int) time.Duration {
	d := h.baseDelay << attempt
	if d <= 0 || d > h.maxDelay {
		return h.maxDelay
	}
	return d
}

// RetryWithBackoff runs fn up to maxRetries+1 times. When every attempt
// fails the message is written to the dead-letter stream and the last error
// is returned.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, msg *StreamMessage) error {
	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.delay(attempt - 1)):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		log.Warn().
			Err(lastErr).
			Str("message_id", msg.ID).
			Int("attempt", attempt+1).
			Msg("Processing failed")
	}

	if err := h.sendToDeadLetter(ctx, msg, lastErr); err != nil {
		return fmt.Errorf("%w: %w: %v", lastErr, ErrDeadLetter, err)
	}
	return lastErr
}

func (h *RetryHandler) sendToDeadLetter(ctx context.Context, msg *StreamMessage, cause error) error {
	values := msg.Values()
	values["original_id"] = msg.ID
	values["error"] = cause.Error()
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := h.client.XAdd(ctx, &redis.XAddArgs{Stream: h.deadLetterKey, Values: values}).Err(); err != nil {
		return err
	}
	metrics.SubmissionsProcessed.WithLabelValues("dead_letter").Inc()
	log.Error().
		Err(cause).
		Str("message_id", msg.ID).
		Str("dlq", h.deadLetterKey).
		Msg("Moved message to dead-letter stream")
	return nil
}
