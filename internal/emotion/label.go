package emotion

import (
	"fmt"
	"strings"
)

// Label is one of the canonical emotion labels.
type Label string

const (
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Fear     Label = "fear"
	Disgust  Label = "disgust"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Labels lists the canonical label set in declaration order. The order is
// used to break ties when picking a dominant emotion.
var Labels = []Label{Happy, Sad, Angry, Fear, Disgust, Surprise, Neutral}

var labelAliases = map[string]Label{
	"happiness": Happy,
	"joy":       Happy,
	"sadness":   Sad,
	"anger":     Angry,
	"fearful":   Fear,
	"scared":    Fear,
	"disgusted": Disgust,
	"surprised": Surprise,
	"calm":      Neutral,
}

// ParseLabel resolves a backend or caller supplied label, ignoring case and
// surrounding whitespace. Common synonyms emitted by classifiers are accepted.
func ParseLabel(s string) (Label, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, l := range Labels {
		if string(l) == key {
			return l, nil
		}
	}
	if l, ok := labelAliases[key]; ok {
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLabel, s)
}

// Valid reports whether l belongs to the canonical set.
func (l Label) Valid() bool {
	return l.index() >= 0
}

// Title renders the label for display, e.g. "Sad".
func (l Label) Title() string {
	if l == "" {
		return ""
	}
	return strings.ToUpper(string(l[:1])) + string(l[1:])
}

func (l Label) index() int {
	for i, c := range Labels {
		if c == l {
			return i
		}
	}
	return -1
}
