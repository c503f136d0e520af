package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	defer Set(zap.NewNop())

	Debug("hidden")
	Info("Item bought", "user_id", "42", "amount", int64(210))
	Warn("Retrying store operation", "attempt", 1)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries above debug, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "42" || fields["amount"] != int64(210) {
		t.Errorf("unexpected fields %v", fields)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", entries[1].Level)
	}
}

func TestInitWithLevel_UnknownFallsBackToInfo(t *testing.T) {
	InitWithLevel("verbose")
	defer Set(zap.NewNop())

	if log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at the fallback level")
	}
	if !log.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be enabled at the fallback level")
	}
}
