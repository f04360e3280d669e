package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	if err := Setup(cfg); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := LogConfig{Level: "debug", Format: "json", Output: path}
	if err := Setup(cfg); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	componentLog := WithComponent("test")
	componentLog.Info().Msg("hello")
	log.Debug().Msg("debug line")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, `"component":"test"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "debug line") {
		t.Fatalf("expected debug line at debug level: %s", out)
	}
}

func TestSetupClosesPreviousLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "first.log")
	if err := Setup(LogConfig{Level: "info", Format: "json", Output: path}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	first := logFile
	if first == nil {
		t.Fatalf("expected the log file to be tracked")
	}

	if err := Setup(DefaultConfig()); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if logFile != nil {
		t.Fatalf("expected no tracked file for stdout output")
	}
	if _, err := first.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected previous log file to be closed, got %v", err)
	}
}
