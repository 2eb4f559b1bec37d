package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
	"github.com/example/emotion-sense/internal/logging"
)

type stubHash struct {
	incrErrs []error
	readErrs []error
	values   map[string]string
	incrKeys []string
	readKeys []string
	applied  []map[string]int64
}

func (s *stubHash) Increment(ctx context.Context, key string, fields map[string]int64) error {
	s.incrKeys = append(s.incrKeys, key)
	if len(s.incrErrs) > 0 {
		err := s.incrErrs[0]
		s.incrErrs = s.incrErrs[1:]
		if err != nil {
			return err
		}
	}
	s.applied = append(s.applied, fields)
	return nil
}

func (s *stubHash) ReadAll(ctx context.Context, key string) (map[string]string, error) {
	s.readKeys = append(s.readKeys, key)
	if len(s.readErrs) > 0 {
		err := s.readErrs[0]
		s.readErrs = s.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.values, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestRedisMetrics(hash HashStore) *RedisMetrics {
	m := NewRedisMetrics(hash, "emotion-sense", zap.NewNop())
	m.initialBackoff = time.Millisecond
	return m
}

func TestRedisMetricsRetriesTransientErrors(t *testing.T) {
	hash := &stubHash{incrErrs: []error{transientRedisError{}}}
	m := newTestRedisMetrics(hash)

	err := m.Record(context.Background(), OperationAnalyzeEmotion, map[string]int64{counterTotal: 1})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(hash.incrKeys) != 2 {
		t.Fatalf("expected 2 increment attempts, got %d", len(hash.incrKeys))
	}
	if hash.incrKeys[0] != "emotion-sense:metrics:analyze_emotion" || hash.incrKeys[0] != hash.incrKeys[1] {
		t.Fatalf("unexpected keys %v", hash.incrKeys)
	}
	if len(hash.applied) != 1 {
		t.Fatalf("expected counters applied once, got %d", len(hash.applied))
	}
}

func TestRedisMetricsReturnsOperationErrorOnFailure(t *testing.T) {
	hash := &stubHash{incrErrs: []error{errors.New("boom")}}
	m := newTestRedisMetrics(hash)

	err := m.Record(context.Background(), OperationDetectFace, map[string]int64{counterTotal: 1})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "metrics.record" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if len(hash.incrKeys) != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", len(hash.incrKeys))
	}
}

func TestRedisMetricsCountersSkipsNonNumericFields(t *testing.T) {
	hash := &stubHash{values: map[string]string{counterTotal: "4", counterSuccess: "3", "junk": "abc"}}
	m := newTestRedisMetrics(hash)

	counters, err := m.Counters(context.Background(), OperationCompareEmotion)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if counters[counterTotal] != 4 || counters[counterSuccess] != 3 {
		t.Fatalf("unexpected counters %v", counters)
	}
	if _, ok := counters["junk"]; ok {
		t.Fatal("non-numeric field must be skipped")
	}
}

func TestGetMetricsSummaryAggregatesOutcomes(t *testing.T) {
	metrics := &recordingMetrics{}
	uc := newTestUseCase(t, face.Passthrough{}, &stubBackend{method: emotion.MethodMock, err: emotion.ErrClassificationUnavailable}, metrics, Options{})

	ctx := context.Background()
	if _, err := uc.AnalyzeEmotion(ctx, encodedFrame(t, 8, 8), "mock", false); err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if _, err := uc.AnalyzeEmotion(ctx, "bad", "mock", false); err == nil {
		t.Fatal("expected invalid image error")
	}

	summaries, err := uc.GetMetricsSummary(ctx)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(summaries) != len(Operations) {
		t.Fatalf("expected %d summaries, got %d", len(Operations), len(summaries))
	}
	var analyze MetricsSummary
	for _, s := range summaries {
		if s.Operation == OperationAnalyzeEmotion {
			analyze = s
		}
	}
	if analyze.TotalRequests != 2 || analyze.SuccessfulRequests != 1 || analyze.FallbackResponses != 1 || analyze.RejectedRequests != 1 {
		t.Fatalf("unexpected summary %+v", analyze)
	}
	if analyze.SuccessRate != 0.5 || analyze.FallbackRate != 0.5 {
		t.Fatalf("unexpected rates %+v", analyze)
	}
}

func TestNopMetricsSummaryIsZero(t *testing.T) {
	uc := newTestUseCase(t, face.Passthrough{}, &stubBackend{method: emotion.MethodMock}, nil, Options{})
	summaries, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	for _, s := range summaries {
		if s.TotalRequests != 0 || s.SuccessRate != 0 {
			t.Fatalf("expected empty summary, got %+v", s)
		}
	}
}
