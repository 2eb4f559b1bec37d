package classifier

import (
	"context"
	"image"
	"math/rand/v2"

	"github.com/example/emotion-sense/internal/emotion"
)

// Mock returns a seeded, repeatable distribution and never fails. It backs
// tests and deployments without a real model.
type Mock struct {
	seed   uint64
	scores emotion.RawScores
}

// NewMock returns a mock whose scores derive from seed. When fixed is
// non-empty it is returned verbatim instead.
func NewMock(seed uint64, fixed emotion.RawScores) *Mock {
	return &Mock{seed: seed, scores: fixed}
}

func (m *Mock) Method() emotion.Method   { return emotion.MethodMock }
func (m *Mock) Scale() emotion.Scale     { return emotion.ScaleFraction }
func (m *Mock) SupportsAttributes() bool { return false }

func (m *Mock) Classify(_ context.Context, _ *image.NRGBA) (*Output, error) {
	out := make(emotion.RawScores, len(emotion.Labels))
	if len(m.scores) > 0 {
		for l, v := range m.scores {
			out[l] = v
		}
		return &Output{Scores: out}, nil
	}

	r := rand.New(rand.NewPCG(m.seed, m.seed^0x9e3779b97f4a7c15))
	for _, l := range emotion.Labels {
		out[l] = r.Float64()
	}
	return &Output{Scores: out}, nil
}
