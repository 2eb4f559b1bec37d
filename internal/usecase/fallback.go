package usecase

import (
	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
)

// DefaultFallbackResult is the canonical degraded classification.
func DefaultFallbackResult() emotion.Result {
	return emotion.Result{
		Dominant:   emotion.Neutral,
		Confidence: 0.5,
		Scores:     emotion.Scores{emotion.Neutral: 1},
	}.Complete()
}

// FallbackPolicy substitutes a configured result when a locator or backend
// reports a degraded capability. Client errors and timeouts pass through.
// It is the only place pipeline failures are logged.
type FallbackPolicy struct {
	result emotion.Result
	logger *zap.Logger
}

// NewFallbackPolicy returns a policy answering with result.
func NewFallbackPolicy(result emotion.Result, logger *zap.Logger) *FallbackPolicy {
	return &FallbackPolicy{
		result: result.Complete(),
		logger: logger.Named("fallback"),
	}
}

// Result returns a fresh copy of the configured default.
func (p *FallbackPolicy) Result() emotion.Result {
	return p.result.Complete()
}

// Classify runs op and replaces a degraded failure with the default result.
func (p *FallbackPolicy) Classify(requestID string, op func() (*Analysis, error)) (*Analysis, error) {
	analysis, err := op()
	if err == nil {
		return analysis, nil
	}
	if !emotion.IsDegraded(err) {
		return nil, err
	}
	p.logger.Warn("classification degraded, returning default result",
		zap.String("request_id", requestID),
		zap.Error(err),
	)
	return &Analysis{Result: p.Result(), Fallback: true}, nil
}

// Locate runs op and treats a degraded failure as "no candidates". degraded
// reports whether that substitution happened.
func (p *FallbackPolicy) Locate(requestID string, op func() ([]face.Candidate, error)) (candidates []face.Candidate, degraded bool, err error) {
	candidates, err = op()
	if err == nil {
		return candidates, false, nil
	}
	if !emotion.IsDegraded(err) {
		return nil, false, err
	}
	p.logger.Warn("face location degraded, continuing without candidates",
		zap.String("request_id", requestID),
		zap.Error(err),
	)
	return nil, true, nil
}
