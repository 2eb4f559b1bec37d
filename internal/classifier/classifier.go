// Package classifier adapts emotion classification engines to a common
// Backend interface. Each backend declares the scale its scores come in.
package classifier

import (
	"context"
	"image"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/spf13/cast"

	"github.com/example/emotion-sense/internal/emotion"
)

// Output is what a backend reports for one image.
type Output struct {
	Scores emotion.RawScores
	Age    *int
	Gender string
}

// Backend classifies the dominant emotion of a face crop or a full frame.
// Implementations must not assume a crop was applied.
//
// Classify returns an error wrapping emotion.ErrClassificationUnavailable when
// the backend cannot be initialized and emotion.ErrClassification for any
// other failure.
type Backend interface {
	Method() emotion.Method
	Scale() emotion.Scale
	SupportsAttributes() bool
	Classify(ctx context.Context, img *image.NRGBA) (*Output, error)
}

// Warmer is implemented by backends that can load their model eagerly.
type Warmer interface {
	Warm(ctx context.Context) error
}

// fit shrinks img so its longer side is at most side. Smaller images are
// returned unchanged.
func fit(img *image.NRGBA, side int) *image.NRGBA {
	b := img.Bounds()
	if side <= 0 || (b.Dx() <= side && b.Dy() <= side) {
		return img
	}
	return imaging.Fit(img, side, side, imaging.Lanczos)
}

// scoresFromMap converts a loosely typed label->score map. Unknown labels and
// non-numeric values are skipped.
func scoresFromMap(m map[string]interface{}) emotion.RawScores {
	out := make(emotion.RawScores, len(m))
	for k, v := range m {
		label, err := emotion.ParseLabel(k)
		if err != nil {
			continue
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		out[label] += f
	}
	return out
}

var (
	ageKeys    = []string{"age", "Age", "age_guess", "ageGuess"}
	genderKeys = []string{"dominant_gender", "gender", "Gender", "gender_guess", "genderGuess"}
)

// extractAttributes finds age and gender in a backend payload. Keys are
// checked at the top level first, then in nested objects.
func extractAttributes(obj map[string]interface{}) (age *int, gender string) {
	for _, k := range ageKeys {
		if v, ok := obj[k]; ok {
			if f, err := cast.ToFloat64E(v); err == nil {
				a := int(math.Round(f))
				age = &a
				break
			}
		}
	}
	for _, k := range genderKeys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			s = strings.TrimSpace(s)
			gender = capitalize(s)
			break
		}
	}
	if age != nil && gender != "" {
		return age, gender
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		nested, ok := obj[k].(map[string]interface{})
		if !ok {
			continue
		}
		na, ng := extractAttributes(nested)
		if age == nil && na != nil {
			age = na
		}
		if gender == "" && ng != "" {
			gender = ng
		}
	}
	return age, gender
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
