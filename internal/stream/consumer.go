package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/winnow/internal/metrics"
	"github.com/RishiKendai/winnow/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SubmissionProcessor handles one parsed submission.
type SubmissionProcessor interface {
	ProcessSubmission(ctx context.Context, submission *models.Submission) error
}

type Consumer struct {
	client              *redis.Client
	streamKey           string
	consumerGroup       string
	consumerName        string
	processor           SubmissionProcessor
	retryHandler        *RetryHandler
	retentionDuration   time.Duration
	pelRecoveryInterval time.Duration
	pelMinIdle          time.Duration
	cleanupInterval     time.Duration
	lastPELCheck        time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	consumerGroup string,
	consumerName string,
	processor SubmissionProcessor,
	retryHandler *RetryHandler,
	retentionDuration time.Duration,
) *Consumer {
	return &Consumer{
		client:              client,
		streamKey:           streamKey,
		consumerGroup:       consumerGroup,
		consumerName:        consumerName,
		processor:           processor,
		retryHandler:        retryHandler,
		retentionDuration:   retentionDuration,
		pelRecoveryInterval: 30 * time.Second,
		pelMinIdle:          time.Minute,
		cleanupInterval:     time.Hour,
	}
}

// Start consumes submissions until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	// Entries left pending by a crashed consumer.
	if err := c.recoverPending(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover pending submissions on startup")
	}
	c.lastPELCheck = time.Now()

	go c.trimPeriodically(ctx)

	log.Info().
		Str("stream", c.streamKey).
		Str("consumer", c.consumerName).
		Msg("Submission consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Error reading submissions")
			time.Sleep(time.Second)
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) recoverPending(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= c.pelMinIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  c.pelMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to claim pending submissions: %w", err)
	}

	log.Info().Int("claimed", len(claimed)).Msg("Reprocessing pending submissions")
	for i := range claimed {
		c.handle(ctx, &claimed[i])
	}
	return nil
}

func (c *Consumer) poll(ctx context.Context) error {
	if time.Since(c.lastPELCheck) > c.pelRecoveryInterval {
		if err := c.recoverPending(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover pending submissions")
		}
		c.lastPELCheck = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    10,
		Block:    time.Second,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, s := range streams {
		for i := range s.Messages {
			c.handle(ctx, &s.Messages[i])
		}
	}
	return nil
}

// handle processes one entry and acknowledges it unless the dead-letter
// write itself failed, so the entry stays pending and is retried later.
func (c *Consumer) handle(ctx context.Context, raw *redis.XMessage) {
	msg := newStreamMessage(raw)
	submission, err := ParseSubmission(msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed submission")
		metrics.SubmissionsProcessed.WithLabelValues("malformed").Inc()
		c.ack(ctx, msg.ID)
		return
	}

	err = c.retryHandler.RetryWithBackoff(ctx, func() error {
		return c.processor.ProcessSubmission(ctx, submission)
	}, msg)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrDeadLetter) {
			return
		}
		c.ack(ctx, msg.ID)
		return
	}

	metrics.SubmissionsProcessed.WithLabelValues("success").Inc()
	c.ack(ctx, msg.ID)
}

func (c *Consumer) trimPeriodically(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		if err := c.trim(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to trim submission stream")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// trim drops entries older than the retention window.
func (c *Consumer) trim(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retentionDuration)
	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, fmt.Sprintf("%d-0", cutoff.UnixMilli())).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}
	if trimmed > 0 {
		log.Debug().Int64("trimmed", trimmed).Time("cutoff", cutoff).Msg("Trimmed submission stream")
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.streamKey, c.consumerGroup, id).Err(); err != nil {
		log.Error().Err(err).Str("message_id", id).Msg("Failed to acknowledge submission")
	}
}
