package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/kakao-relay/internal/config"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info must be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn must be enabled")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
