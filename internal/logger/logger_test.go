package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		Init(tt.in, "json")
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("Init(%q): level %v, want %v", tt.in, got, tt.want)
		}
	}
}
