package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/classifier"
	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
)

// Pipeline pairs the face locator and classifier backend serving one method.
type Pipeline struct {
	Locator face.Locator
	Backend classifier.Backend
}

// Registry maps each enabled method to its pipeline. It is built once at
// startup and read concurrently afterwards.
type Registry struct {
	pipelines map[emotion.Method]Pipeline
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[emotion.Method]Pipeline)}
}

// Register binds p to m. The backend must report m as its method.
func (r *Registry) Register(m emotion.Method, p Pipeline) error {
	if _, err := emotion.ParseMethod(string(m), ""); err != nil {
		return err
	}
	if p.Backend == nil || p.Locator == nil {
		return fmt.Errorf("method %s: backend and locator are required", m)
	}
	if p.Backend.Method() != m {
		return fmt.Errorf("method %s: backend serves %s", m, p.Backend.Method())
	}
	r.pipelines[m] = p
	return nil
}

// Lookup returns the pipeline for m.
func (r *Registry) Lookup(m emotion.Method) (Pipeline, error) {
	p, ok := r.pipelines[m]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %s is not enabled", emotion.ErrInvalidMethod, m)
	}
	return p, nil
}

// Methods lists the registered methods in declaration order.
func (r *Registry) Methods() []emotion.Method {
	out := make([]emotion.Method, 0, len(r.pipelines))
	for _, m := range emotion.Methods {
		if _, ok := r.pipelines[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

type warmer interface {
	Warm(ctx context.Context) error
}

// Warm loads every model handle eagerly. Failures are logged and left for
// the next request to retry.
func (r *Registry) Warm(ctx context.Context, logger *zap.Logger) {
	for _, m := range r.Methods() {
		p := r.pipelines[m]
		for _, component := range []interface{}{p.Locator, p.Backend} {
			w, ok := component.(warmer)
			if !ok {
				continue
			}
			if err := w.Warm(ctx); err != nil {
				logger.Warn("model warm-up failed", zap.String("method", string(m)), zap.Error(err))
			}
		}
	}
}
