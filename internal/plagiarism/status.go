package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const statusTTL = 12 * time.Hour

// StatusClient is the part of the redis client used for report steps.
type StatusClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

var validSteps = map[models.Step]bool{
	models.StepIdle:      true,
	models.StepInitiated: true,
	models.StepStarted:   true,
	models.StepIndexing:  true,
	models.StepComparing: true,
	models.StepCompleted: true,
	models.StepFailed:    true,
}

func statusKey(assignmentID string) string {
	return "winnow_report_status:" + assignmentID
}

func UpdateStatus(ctx context.Context, client StatusClient, assignmentID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	key := statusKey(assignmentID)
	if err := client.Set(ctx, key, string(step), statusTTL).Err(); err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("assignmentId", assignmentID).
			Str("redisKey", key).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().Str("assignmentId", assignmentID).Str("step", string(step)).Msg("Status updated")
	return nil
}

// GetStatus returns the current step of an assignment, idle when none was
// recorded or the record expired.
func GetStatus(ctx context.Context, client StatusClient, assignmentID string) (models.Step, error) {
	v, err := client.Get(ctx, statusKey(assignmentID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.StepIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	step := models.Step(v)
	if !validSteps[step] {
		return "", fmt.Errorf("unknown step in Redis: %s", v)
	}
	return step, nil
}

// RunLocker is the part of the redis client used to hold the per-assignment
// run lock.
type RunLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func lockKey(assignmentID string) string {
	return "winnow_report_lock:" + assignmentID
}

// AcquireRunLock claims the assignment for runID. It reports false when
// another run holds the lock. The lock expires after ttl so a crashed run
// cannot block the assignment forever.
func AcquireRunLock(ctx context.Context, client RunLocker, assignmentID, runID string, ttl time.Duration) (bool, error) {
	ok, err := client.SetNX(ctx, lockKey(assignmentID), runID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

// ReleaseRunLock drops the lock if runID still holds it.
func ReleaseRunLock(ctx context.Context, client RunLocker, assignmentID, runID string) error {
	key := lockKey(assignmentID)
	holder, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run lock: %w", err)
	}
	if holder != runID {
		log.Warn().Str("assignmentId", assignmentID).Str("runId", runID).Str("holder", holder).Msg("Run lock held by another run")
		return nil
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
