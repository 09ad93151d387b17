package evaluator

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/examprep/internal/model"
)

// Band maps a minimum percentage to a grade label.
type Band struct {
	Min   int    `json:"min"`
	Label string `json:"label"`
}

// GradeScale is an ordered set of bands, highest minimum first. A valid scale
// always has a band starting at 0.
type GradeScale []Band

// DefaultScale returns the built-in thresholds.
func DefaultScale() GradeScale {
	return GradeScale{
		{90, "A+"},
		{80, "A"},
		{70, "B+"},
		{60, "B"},
		{50, "C"},
		{40, "D"},
		{0, "F"},
	}
}

// ParseScale parses entries of the form "LABEL=MIN", e.g. "A+=90".
// An empty list yields the default scale.
func ParseScale(entries []string) (GradeScale, error) {
	if len(entries) == 0 {
		return DefaultScale(), nil
	}
	var s GradeScale
	for _, e := range entries {
		label, minStr, ok := strings.Cut(strings.TrimSpace(e), "=")
		if !ok {
			return nil, fmt.Errorf("%w: grade band %q must look like LABEL=MIN", model.ErrValidation, e)
		}
		m, err := strconv.Atoi(strings.TrimSpace(minStr))
		if err != nil {
			return nil, fmt.Errorf("%w: grade band %q: %v", model.ErrValidation, e, err)
		}
		s = append(s, Band{Min: m, Label: strings.TrimSpace(label)})
	}
	slices.SortFunc(s, func(a, b Band) int { return cmp.Compare(b.Min, a.Min) })
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks ordering, bounds, uniqueness and the 0 floor.
func (s GradeScale) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: grade scale is empty", model.ErrValidation)
	}
	labels := make(map[string]bool, len(s))
	for i, b := range s {
		if b.Label == "" {
			return fmt.Errorf("%w: grade band with empty label", model.ErrValidation)
		}
		if b.Min < 0 || b.Min > 100 {
			return fmt.Errorf("%w: grade band %s minimum %d outside [0,100]", model.ErrValidation, b.Label, b.Min)
		}
		if labels[b.Label] {
			return fmt.Errorf("%w: duplicate grade label %s", model.ErrValidation, b.Label)
		}
		labels[b.Label] = true
		if i > 0 && s[i-1].Min <= b.Min {
			return fmt.Errorf("%w: grade bands must have strictly decreasing minimums", model.ErrValidation)
		}
	}
	if s[len(s)-1].Min != 0 {
		return fmt.Errorf("%w: grade scale needs a band starting at 0", model.ErrValidation)
	}
	return nil
}

// Grade returns the label of the first band whose minimum percentage is met.
func (s GradeScale) Grade(percentage int) string {
	for _, b := range s {
		if percentage >= b.Min {
			return b.Label
		}
	}
	return s[len(s)-1].Label
}
