package config

import (
	"errors"
	"testing"
	"time"

	"github.com/RishiKendai/winnow/internal/winnow"
	"github.com/google/go-cmp/cmp"
)

func setRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB_NAME", "winnow")
	t.Setenv("TOKENIZER_BASE_URL", "http://tokenizer")
	t.Setenv("TOKENIZER_API_KEY", "key")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := winnow.Options{KgramLength: 23, KgramsInWindow: 17}
	if diff := cmp.Diff(want, cfg.WinnowOptions()); diff != "" {
		t.Errorf("WinnowOptions (-want +got):\n%s", diff)
	}
	if cfg.FlagThreshold != 0.75 || cfg.MinSimilarity != 0 {
		t.Errorf("FlagThreshold %v MinSimilarity %v, want 0.75 and 0", cfg.FlagThreshold, cfg.MinSimilarity)
	}
	if cfg.ComputationTimeout != 30*time.Minute {
		t.Errorf("ComputationTimeout: got %v", cfg.ComputationTimeout)
	}
	if cfg.RedisStreamKey != "winnow:stream" || cfg.MetricsPort != "2112" {
		t.Errorf("got stream key %q metrics port %q", cfg.RedisStreamKey, cfg.MetricsPort)
	}
}

func TestLoadWinnowing(t *testing.T) {
	setRequired(t)
	t.Setenv("KGRAM_LENGTH", "5")
	t.Setenv("KGRAMS_IN_WINDOW", "4")
	t.Setenv("KEEP_TOKEN_DATA", "true")
	t.Setenv("MAX_FINGERPRINT_FILE_COUNT", "10")
	t.Setenv("MAX_FINGERPRINT_PERCENTAGE", "0.5")
	t.Setenv("IGNORED_HASHES", "12, 34,,56")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := winnow.Options{
		KgramLength:              5,
		KgramsInWindow:           4,
		KeepTokenData:            true,
		MaxFingerprintFileCount:  10,
		MaxFingerprintPercentage: 0.5,
	}
	if diff := cmp.Diff(want, cfg.WinnowOptions()); diff != "" {
		t.Errorf("WinnowOptions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]winnow.Hash{12, 34, 56}, cfg.IgnoredHashes); diff != "" {
		t.Errorf("IgnoredHashes (-want +got):\n%s", diff)
	}
}

func TestLoadBadHashes(t *testing.T) {
	setRequired(t)
	t.Setenv("IGNORED_HASHES", "12,abc")
	if _, err := Load(); err == nil {
		t.Fatal("Load: expected error for non-numeric hash")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		isCfg  bool
	}{
		{"missing mongo", func(c *Config) { c.MongoURI = "" }, false},
		{"missing tokenizer", func(c *Config) { c.TokenizerBaseURL = "" }, false},
		{"missing jwt", func(c *Config) { c.JWTSecret = "" }, false},
		{"zero compute", func(c *Config) { c.MaxConcurrentCompute = 0 }, false},
		{"zero k", func(c *Config) { c.KgramLength = 0 }, true},
		{"negative w", func(c *Config) { c.KgramsInWindow = -1 }, true},
		{"percentage above one", func(c *Config) { c.MaxFingerprintPercentage = 1.5 }, false},
		{"flag threshold above one", func(c *Config) { c.FlagThreshold = 2 }, false},
		{"negative min similarity", func(c *Config) { c.MinSimilarity = -0.1 }, false},
		{"min similarity in range", func(c *Config) { c.MinSimilarity = 0.4 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate: expected error")
			}
			if got := errors.Is(err, winnow.ErrInvalidConfig); got != tt.isCfg {
				t.Errorf("errors.Is(ErrInvalidConfig) = %v, want %v (%v)", got, tt.isCfg, err)
			}
		})
	}
}
