package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewAndWith(t *testing.T) {
	l, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := l.With(String("source", "registry"))
	if child == l {
		t.Error("With should return a new logger")
	}
	child.Debug("filtered")
	child.Warn("visible", Int("n", 1), Error(errors.New("boom")))
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("nothing", Bool("ok", true))
	if err := l.Sync(); err != nil {
		t.Errorf("nop sync: %v", err)
	}
}
