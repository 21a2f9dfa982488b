package gpu

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerDefaultSilent(t *testing.T) {
	if Logger().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("default logger should be disabled")
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	NewTracker().Violate("image %d in wrong state", 1)
	if !strings.Contains(buf.String(), "image 1 in wrong state") {
		t.Errorf("expected violation to be logged, got: %s", buf.String())
	}

	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should restore the silent logger")
	}
}
