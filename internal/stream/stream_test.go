package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RishiKendai/winnow/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

type fakeDeadLetter struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeDeadLetter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func fastRetry(dl deadLetterWriter, retries int) *RetryHandler {
	h := NewRetryHandler(dl, "winnow:dlq", retries)
	h.baseDelay = time.Millisecond
	h.maxDelay = 2 * time.Millisecond
	return h
}

func TestParseSubmission(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		want    *models.Submission
		wantErr bool
	}{
		{
			name: "flat fields",
			fields: map[string]string{
				"attemptId":    "a1",
				"assignmentId": "as1",
				"sourceCode":   "print(1)",
				"language":     "python",
				"isTemplate":   "true",
			},
			want: &models.Submission{AttemptID: "a1", AssignmentID: "as1", SourceCode: "print(1)", Language: "python", IsTemplate: true},
		},
		{
			name:   "json payload",
			fields: map[string]string{"payload": `{"attemptId":"a2","assignmentId":"as1","path":"main.py"}`},
			want:   &models.Submission{AttemptID: "a2", AssignmentID: "as1", Path: "main.py"},
		},
		{
			name:    "bad payload",
			fields:  map[string]string{"payload": `{`},
			wantErr: true,
		},
		{
			name:    "missing attempt",
			fields:  map[string]string{"assignmentId": "as1"},
			wantErr: true,
		},
		{
			name:    "missing assignment",
			fields:  map[string]string{"attemptId": "a1"},
			wantErr: true,
		},
		{
			name:    "bad template flag",
			fields:  map[string]string{"attemptId": "a1", "assignmentId": "as1", "isTemplate": "maybe"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubmission(&StreamMessage{ID: "1-0", Fields: tt.fields})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSubmission error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSubmission (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewStreamMessage(t *testing.T) {
	msg := newStreamMessage(&redis.XMessage{
		ID:     "5-1",
		Values: map[string]interface{}{"a": "x", "b": []byte("y"), "c": 3},
	})
	if diff := cmp.Diff(map[string]string{"a": "x", "b": "y"}, msg.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	dl := &fakeDeadLetter{}
	h := fastRetry(dl, 3)
	calls := 0
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, &StreamMessage{ID: "1-0"})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	if len(dl.added) != 0 {
		t.Errorf("dead-letter writes: got %d, want 0", len(dl.added))
	}
}

func TestRetryWithBackoffDeadLetters(t *testing.T) {
	dl := &fakeDeadLetter{}
	h := fastRetry(dl, 2)
	boom := errors.New("boom")
	calls := 0
	msg := &StreamMessage{ID: "7-0", Fields: map[string]string{"attemptId": "a1"}}
	err := h.RetryWithBackoff(context.Background(), func() error {
		calls++
		return boom
	}, msg)
	if !errors.Is(err, boom) || errors.Is(err, ErrDeadLetter) {
		t.Fatalf("RetryWithBackoff: got %v, want %v", err, boom)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	if len(dl.added) != 1 {
		t.Fatalf("dead-letter writes: got %d, want 1", len(dl.added))
	}
	args := dl.added[0]
	values := args.Values.(map[string]interface{})
	if args.Stream != "winnow:dlq" || values["original_id"] != "7-0" || values["error"] != "boom" || values["attemptId"] != "a1" {
		t.Errorf("dead-letter entry: stream %q values %v", args.Stream, values)
	}
}

func TestRetryWithBackoffDeadLetterFails(t *testing.T) {
	h := fastRetry(&fakeDeadLetter{err: errors.New("redis down")}, 0)
	boom := errors.New("boom")
	err := h.RetryWithBackoff(context.Background(), func() error { return boom }, &StreamMessage{ID: "1-0"})
	if !errors.Is(err, boom) || !errors.Is(err, ErrDeadLetter) {
		t.Errorf("RetryWithBackoff: got %v, want both %v and ErrDeadLetter", err, boom)
	}
}

func TestRetryWithBackoffCancelled(t *testing.T) {
	h := NewRetryHandler(&fakeDeadLetter{}, "dlq", 5)
	h.baseDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := h.RetryWithBackoff(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	}, &StreamMessage{ID: "1-0"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryWithBackoff: got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetryDelay(t *testing.T) {
	h := NewRetryHandler(nil, "dlq", 3)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},
		{70, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := h.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
