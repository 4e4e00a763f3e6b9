package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelForVerbosity(t *testing.T) {
	cases := map[int]zerolog.Level{
		-1: zerolog.WarnLevel,
		0:  zerolog.WarnLevel,
		1:  zerolog.InfoLevel,
		2:  zerolog.DebugLevel,
		3:  zerolog.TraceLevel,
		9:  zerolog.TraceLevel,
	}
	for v, want := range cases {
		if got := LevelForVerbosity(v); got != want {
			t.Fatalf("verbosity=%d: got %v want %v", v, got, want)
		}
	}
}

func TestParseLevelAliases(t *testing.T) {
	if lvl, ok := parseLevel(" Warning "); !ok || lvl != zerolog.WarnLevel {
		t.Fatalf("unexpected warning parse: %v %v", lvl, ok)
	}
	if lvl, ok := parseLevel("off"); !ok || lvl != zerolog.Disabled {
		t.Fatalf("unexpected off parse: %v %v", lvl, ok)
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("expected empty level to be ignored")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogJSON, "not-a-bool")

	cfg := Config{Level: zerolog.InfoLevel, Timestamp: true}
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamp disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("expected no-color enabled")
	}
	if cfg.JSON {
		t.Fatalf("expected invalid json override ignored")
	}
}

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.WarnLevel, JSON: true, Out: &buf})
	logger.Info().Msg("hidden")
	logger.Warn().Str("channel", "#test").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, `"channel":"#test"`) || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected json output: %q", out)
	}
}
