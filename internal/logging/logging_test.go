package logging

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/example/emotion-sense/internal/emotion"
)

func TestOperationErrorPreservesSentinel(t *testing.T) {
	err := NewOperationError("usecase.analyze_emotion", "req-1", emotion.ErrInvalidImage)
	if !errors.Is(err, emotion.ErrInvalidImage) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if want := "usecase.analyze_emotion (request_id=req-1): invalid image"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestMethodErrorFormatting(t *testing.T) {
	err := NewMethodError("classifier.classify", "fer", "req-9", emotion.ErrClassification)
	if want := "classifier.classify (method=fer request_id=req-9): emotion classification failed"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	err = NewMethodError("classifier.classify", "", "", emotion.ErrClassification)
	if want := "classifier.classify: emotion classification failed"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}

	logger, err = NewLogger("nonsense")
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected unknown level to fall back to info")
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-7")
	if got := RequestID(ctx); got != "req-7" {
		t.Fatalf("expected req-7, got %q", got)
	}

	a, b := RequestID(context.Background()), RequestID(context.Background())
	if a == "" || a == b {
		t.Fatalf("expected fresh ids, got %q and %q", a, b)
	}
}
