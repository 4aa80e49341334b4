package stream

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/redis/go-redis/v9"
)

// StreamMessage is a stream entry with its string fields.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

func newStreamMessage(msg *redis.XMessage) *StreamMessage {
	fields := make(map[string]string, len(msg.Values))
	for key, val := range msg.Values {
		switch v := val.(type) {
		case string:
			fields[key] = v
		case []byte:
			fields[key] = string(v)
		}
	}
	return &StreamMessage{ID: msg.ID, Fields: fields}
}

// Values returns the fields in the form XAdd expects.
func (m *StreamMessage) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Fields))
	for k, v := range m.Fields {
		out[k] = v
	}
	return out
}

// ParseSubmission reads a submission from a stream entry. The entry either
// carries a JSON document in a "payload" field or one field per attribute.
func ParseSubmission(msg *StreamMessage) (*models.Submission, error) {
	var sub models.Submission
	if payload, ok := msg.Fields["payload"]; ok {
		if err := json.Unmarshal([]byte(payload), &sub); err != nil {
			return nil, fmt.Errorf("invalid payload in message %s: %w", msg.ID, err)
		}
	} else {
		sub = models.Submission{
			AttemptID:    msg.Fields["attemptId"],
			AssignmentID: msg.Fields["assignmentId"],
			SourceCode:   msg.Fields["sourceCode"],
			Language:     msg.Fields["language"],
			Path:         msg.Fields["path"],
			Email:        msg.Fields["email"],
		}
		if v, ok := msg.Fields["isTemplate"]; ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid isTemplate %q in message %s: %w", v, msg.ID, err)
			}
			sub.IsTemplate = b
		}
	}

	if sub.AttemptID == "" {
		return nil, fmt.Errorf("message %s: attemptId is required", msg.ID)
	}
	if sub.AssignmentID == "" {
		return nil, fmt.Errorf("message %s: assignmentId is required", msg.ID)
	}
	return &sub, nil
}
