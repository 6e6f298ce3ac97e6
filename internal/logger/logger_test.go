package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", log.GetLevel())
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zerolog.Level
		wantJSON  bool
	}{
		{"json debug", Options{Level: "debug", Format: "json"}, zerolog.DebugLevel, true},
		{"console warn", Options{Level: "WARN", Format: "console"}, zerolog.WarnLevel, false},
		{"unknown level", Options{Level: "loud", Format: "json"}, zerolog.InfoLevel, true},
		{"empty level", Options{Format: "json"}, zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := NewWithOptions(buf, tt.opts)
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %s, want %s", log.GetLevel(), tt.wantLevel)
			}

			log.Error().Str("stage", "features").Msg("test message")
			out := buf.String()
			if !strings.Contains(out, "test message") {
				t.Fatalf("expected message in output, got %q", out)
			}
			if isJSON := strings.HasPrefix(out, "{"); isJSON != tt.wantJSON {
				t.Errorf("json output = %v, want %v (%q)", isJSON, tt.wantJSON, out)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithRun(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	ctx = WithRun(ctx, "run-123")

	log := FromContext(ctx)
	log.Info().Msg("scored")

	if !strings.Contains(buf.String(), `"run_id":"run-123"`) {
		t.Errorf("expected run_id field, got %s", buf.String())
	}
}
