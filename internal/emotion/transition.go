package emotion

import (
	"fmt"
	"strings"
)

// Category groups labels by valence.
type Category int

const (
	CategoryNegative Category = iota
	CategoryNeutral
	CategoryPositive
)

func (c Category) String() string {
	switch c {
	case CategoryNegative:
		return "negative"
	case CategoryNeutral:
		return "neutral"
	case CategoryPositive:
		return "positive"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// NeutralPolicy decides which bucket the neutral label falls into.
type NeutralPolicy string

const (
	// NeutralDistinct keeps neutral as its own category.
	NeutralDistinct NeutralPolicy = "distinct"
	// NeutralPositive counts neutral as positive.
	NeutralPositive NeutralPolicy = "positive"
)

// ParseNeutralPolicy validates s; empty resolves to NeutralDistinct.
func ParseNeutralPolicy(s string) (NeutralPolicy, error) {
	switch NeutralPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NeutralDistinct:
		return NeutralDistinct, nil
	case NeutralPositive:
		return NeutralPositive, nil
	}
	return "", fmt.Errorf("unknown neutral policy %q", s)
}

// Satisfaction is the verdict for an entry/exit pair.
type Satisfaction string

const (
	Improved       Satisfaction = "Improved"
	Declined       Satisfaction = "Declined"
	MaintainedHigh Satisfaction = "Maintained High"
	MaintainedLow  Satisfaction = "Maintained Low"
	Unchanged      Satisfaction = "Unchanged"
)

var summaries = map[Satisfaction]string{
	Improved:       "Customer experience improved",
	Declined:       "Customer became unhappy",
	MaintainedHigh: "Customer remained satisfied",
	MaintainedLow:  "Customer remained unsatisfied",
	Unchanged:      "Customer remained neutral",
}

// Summary is a one-sentence description of the verdict.
func (s Satisfaction) Summary() string {
	return summaries[s]
}

// Verdict describes how a customer's emotion changed between entry and exit.
type Verdict struct {
	Satisfaction Satisfaction
	Delta        string
	Entry        Label
	Exit         Label
}

// TransitionClassifier maps entry/exit label pairs to satisfaction verdicts.
// The zero value uses NeutralDistinct.
type TransitionClassifier struct {
	Policy NeutralPolicy
}

// NewTransitionClassifier returns a classifier bound to policy.
func NewTransitionClassifier(policy NeutralPolicy) TransitionClassifier {
	return TransitionClassifier{Policy: policy}
}

// Categorize returns the valence bucket of l under the classifier's policy.
func (c TransitionClassifier) Categorize(l Label) Category {
	switch l {
	case Happy, Surprise:
		return CategoryPositive
	case Neutral:
		if c.Policy == NeutralPositive {
			return CategoryPositive
		}
		return CategoryNeutral
	default:
		return CategoryNegative
	}
}

// Compare classifies the entry→exit transition. It is total over the
// canonical labels and performs no I/O.
func (c TransitionClassifier) Compare(entry, exit Label) Verdict {
	from, to := c.Categorize(entry), c.Categorize(exit)

	var s Satisfaction
	switch {
	case from == CategoryPositive && to == CategoryPositive:
		s = MaintainedHigh
	case from == CategoryNegative && to == CategoryNegative:
		s = MaintainedLow
	case from == CategoryNeutral && to == CategoryNeutral:
		s = Unchanged
	case to > from:
		s = Improved
	default:
		s = Declined
	}

	return Verdict{
		Satisfaction: s,
		Delta:        entry.Title() + " → " + exit.Title(),
		Entry:        entry,
		Exit:         exit,
	}
}
