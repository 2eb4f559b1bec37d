package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/emotion"
)

// Operation names used for logging and metrics.
const (
	OperationDetectFace     = "detect_face"
	OperationAnalyzeEmotion = "analyze_emotion"
	OperationCompareEmotion = "compare_emotion"
)

// Operations lists every operation that records metrics.
var Operations = []string{OperationDetectFace, OperationAnalyzeEmotion, OperationCompareEmotion}

// MetricsSummary represents aggregated request counters for one operation.
// Successful requests include those answered by the fallback policy.
type MetricsSummary struct {
	Operation                  string  `json:"operation"`
	TotalRequests              int64   `json:"total_requests"`
	SuccessfulRequests         int64   `json:"successful_requests"`
	FallbackResponses          int64   `json:"fallback_responses"`
	RejectedRequests           int64   `json:"rejected_requests"`
	TimedOutRequests           int64   `json:"timed_out_requests"`
	FailedRequests             int64   `json:"failed_requests"`
	SuccessRate                float64 `json:"success_rate"`
	FallbackRate               float64 `json:"fallback_rate"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates the stored counters of every operation.
func (uc *AnalysisUseCase) GetMetricsSummary(ctx context.Context) ([]MetricsSummary, error) {
	summaries := make([]MetricsSummary, 0, len(Operations))
	for _, op := range Operations {
		counters, err := uc.metrics.Counters(ctx, op)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summarize(op, counters))
	}
	return summaries, nil
}

func summarize(operation string, counters map[string]int64) MetricsSummary {
	summary := MetricsSummary{
		Operation:          operation,
		TotalRequests:      counters[counterTotal],
		SuccessfulRequests: counters[counterSuccess],
		FallbackResponses:  counters[counterFallback],
		RejectedRequests:   counters[counterRejected],
		TimedOutRequests:   counters[counterTimeout],
		FailedRequests:     counters[counterError],
	}
	if summary.TotalRequests > 0 {
		total := float64(summary.TotalRequests)
		summary.SuccessRate = float64(summary.SuccessfulRequests) / total
		summary.FallbackRate = float64(summary.FallbackResponses) / total
		summary.AverageProcessingLatencyMs = float64(counters[counterLatencyMs]) / total
	}
	return summary
}

// outcomeCounters maps a finished request to counter increments.
func outcomeCounters(err error, fallback bool, latency time.Duration) map[string]int64 {
	counters := map[string]int64{
		counterTotal:     1,
		counterLatencyMs: latency.Milliseconds(),
	}
	switch {
	case err == nil:
		counters[counterSuccess] = 1
		if fallback {
			counters[counterFallback] = 1
		}
	case emotion.IsClientError(err):
		counters[counterRejected] = 1
	case errors.Is(err, emotion.ErrTimeout):
		counters[counterTimeout] = 1
	default:
		counters[counterError] = 1
	}
	return counters
}

// record stores the outcome of one request. Failures are logged only.
func (uc *AnalysisUseCase) record(ctx context.Context, operation string, start time.Time, err error, fallback bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.metricsTimeout)
	defer cancel()

	counters := outcomeCounters(err, fallback, time.Since(start))
	if recErr := uc.metrics.Record(ctx, operation, counters); recErr != nil {
		uc.logger.Warn("failed to record metrics", zap.String("operation", operation), zap.Error(recErr))
	}
}
