package logger

import (
	"context"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	dev := newLogger("ledger", "development")
	if !dev.Desugar().Core().Enabled(-1) {
		t.Fatal("development logger should enable debug")
	}
	prod := newLogger("ledger", "production")
	if prod.Desugar().Core().Enabled(-1) {
		t.Fatal("production logger should not enable debug")
	}
}

func TestWithHelpersKeepServiceName(t *testing.T) {
	t.Parallel()

	base := newLogger("ledger", "production")
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")

	if got := base.WithContext(ctx).serviceName; got != "ledger" {
		t.Fatalf("serviceName = %q, want ledger", got)
	}
	if got := base.WithMember("S1").serviceName; got != "ledger" {
		t.Fatalf("serviceName = %q, want ledger", got)
	}
	if base.WithContext(context.Background()) != base {
		t.Fatal("WithContext without request id should return the same logger")
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()

	l := NewNop()
	l.Info("ignored", "k", "v")
	l.Audit("ignored")
	l.WithFields(map[string]interface{}{"a": 1}).Debug("ignored")
}
