package emotion

import (
	"fmt"
	"math"
	"strings"
)

// Scale is the numeric range a backend reports its scores in. It is declared
// by each backend and never inferred from the values themselves.
type Scale int

const (
	ScaleFraction Scale = iota // 0..1
	ScalePercent               // 0..100
)

func (s Scale) String() string {
	switch s {
	case ScaleFraction:
		return "fraction"
	case ScalePercent:
		return "percent"
	default:
		return fmt.Sprintf("Scale(%d)", int(s))
	}
}

// ParseScale accepts "fraction" or "percent".
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fraction":
		return ScaleFraction, nil
	case "percent":
		return ScalePercent, nil
	}
	return 0, fmt.Errorf("unknown score scale %q", s)
}

// RawScores holds backend-reported values in the backend's native scale.
type RawScores map[Label]float64

// Scores is a probability distribution over the canonical label set.
type Scores map[Label]float64

// Sum adds up all values in s.
func (s Scores) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Normalize converts raw into a distribution covering every canonical label.
// Negative and non-finite values count as zero. When nothing positive remains
// the result is uniform over the canonical set.
func Normalize(raw RawScores, scale Scale) Scores {
	divisor := 1.0
	if scale == ScalePercent {
		divisor = 100
	}

	var total, peak float64
	cleaned := make(map[Label]float64, len(Labels))
	for label, v := range raw {
		if !label.Valid() {
			continue
		}
		v /= divisor
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			v = 0
		}
		cleaned[label] = v
		total += v
		peak = max(peak, v)
	}
	// Finite values near MaxFloat64 can overflow the sum; rescale by the peak.
	if math.IsInf(total, 1) {
		total = 0
		for label, v := range cleaned {
			cleaned[label] = v / peak
			total += cleaned[label]
		}
	}

	out := make(Scores, len(Labels))
	if total <= 0 {
		uniform := 1 / float64(len(Labels))
		for _, l := range Labels {
			out[l] = uniform
		}
		return out
	}
	for _, l := range Labels {
		out[l] = cleaned[l] / total
	}
	return out
}

// Dominant returns the label with the highest score. Ties resolve to the
// label that comes first in Labels.
func Dominant(scores Scores) Label {
	best := Label("")
	bestScore := math.Inf(-1)
	for _, l := range Labels {
		v, ok := scores[l]
		if !ok {
			continue
		}
		if v > bestScore {
			best, bestScore = l, v
		}
	}
	return best
}

// Result is the outcome of classifying one image.
type Result struct {
	Dominant   Label
	Confidence float64
	Scores     Scores
}

// NewResult normalizes raw and derives the dominant label and confidence.
func NewResult(raw RawScores, scale Scale) Result {
	scores := Normalize(raw, scale)
	dominant := Dominant(scores)
	return Result{
		Dominant:   dominant,
		Confidence: scores[dominant],
		Scores:     scores,
	}
}

// Complete returns a copy of r whose score map covers every canonical label,
// filling absent labels with zero.
func (r Result) Complete() Result {
	scores := make(Scores, len(Labels))
	for _, l := range Labels {
		scores[l] = r.Scores[l]
	}
	r.Scores = scores
	return r
}
