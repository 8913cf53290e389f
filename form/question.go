package form

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the closed set of question types a form can carry.
type Kind string

const (
	ShortText      Kind = "short_text"
	LongText       Kind = "long_text"
	Integer        Kind = "integer"
	Float          Kind = "float"
	Date           Kind = "date"
	Dropdown       Kind = "dropdown"
	DropdownMapped Kind = "dropdown_mapped"
	YesNo          Kind = "yes_no"
)

// AutoSource identifies a project attribute that populates an auto question.
type AutoSource string

const (
	AutoProjectName    AutoSource = "project_name"
	AutoFocalpointCode AutoSource = "project_focalpoint_code"
)

type Auto struct {
	Source AutoSource `json:"source"`
}

// Question is a single typed prompt. ID is the stable identity; Text is a
// human label and is not guaranteed unique across a form.
type Question struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Type     Kind           `json:"type"`
	Required bool           `json:"required,omitempty"`
	Remember bool           `json:"remember,omitempty"`
	Options  []string       `json:"options,omitempty"`
	ValueMap map[string]int `json:"value_map,omitempty"`
	Auto     *Auto          `json:"auto,omitempty"`
}

type Section struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Canonical is the stored body of a question set, and also of a project's
// bespoke questions: a title plus ordered sections.
type Canonical struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Meta is the question metadata snapshot stored alongside each record, so a
// record stays readable after the live form changes.
type Meta struct {
	Text     string         `json:"text"`
	Type     Kind           `json:"type"`
	Required bool           `json:"required,omitempty"`
	Options  []string       `json:"options,omitempty"`
	ValueMap map[string]int `json:"value_map,omitempty"`
}

func (q Question) Meta() Meta {
	return Meta{
		Text:     q.Text,
		Type:     q.Type,
		Required: q.Required,
		Options:  q.Options,
		ValueMap: q.ValueMap,
	}
}

// Question rebuilds a coercible Question from snapshot metadata.
func (m Meta) Question(id string) Question {
	return Question{
		ID:       id,
		Text:     m.Text,
		Type:     m.Type,
		Required: m.Required,
		Options:  m.Options,
		ValueMap: m.ValueMap,
	}
}

// Coerce converts a raw submitted value into the question's typed value, or
// nil when the input is empty or cannot be interpreted. It never fails: a
// malformed value for one field must not make a whole form unsubmittable.
func (q Question) Coerce(raw any) any {
	if raw == nil {
		return nil
	}

	switch q.Type {
	case ShortText, LongText, Date:
		if s, ok := raw.(string); ok {
			if s == "" {
				return nil
			}
			return s
		}
		return fmt.Sprint(raw)

	case Integer:
		n, ok := ParseNumeric(raw)
		if !ok {
			return nil
		}
		return int64(n)

	case Float:
		n, ok := ParseNumeric(raw)
		if !ok {
			return nil
		}
		return n

	case Dropdown:
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil
		}
		return s

	case DropdownMapped:
		label, ok := raw.(string)
		if !ok {
			// Already numeric (e.g. a stored code round-tripping through an edit).
			if n, isNum := ParseNumeric(raw); isNum {
				return int64(n)
			}
			return nil
		}
		if label == "" {
			return nil
		}
		if code, mapped := q.ValueMap[label]; mapped {
			return int64(code)
		}
		if n, isNum := ParseNumeric(label); isNum {
			return int64(n)
		}
		return nil

	case YesNo:
		switch RecognizeYesNo(raw) {
		case Yes:
			return "yes"
		case No:
			return "no"
		}
		return nil
	}

	return raw
}

// YesNoState is the interpretation of a yes/no answer: one of the two
// exclusive choices, or indeterminate.
type YesNoState int

const (
	Indeterminate YesNoState = iota
	Yes
	No
)

// RecognizeYesNo maps the accepted truthy/falsy encodings of a yes/no answer
// onto a state. Anything outside the recognized set is indeterminate and
// must be treated as a gap, never as "no".
func RecognizeYesNo(v any) YesNoState {
	switch t := v.(type) {
	case bool:
		if t {
			return Yes
		}
		return No
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "yes", "true":
			return Yes
		case "0", "no", "false":
			return No
		}
		return Indeterminate
	}

	if n, ok := ParseNumeric(v); ok {
		if n == 1 {
			return Yes
		}
		if n == 0 {
			return No
		}
	}
	return Indeterminate
}

// ParseNumeric is a best-effort numeric coercion. Booleans are deliberately
// not numbers here; a yes/no answer has its own interpretation path.
func ParseNumeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case float32:
		return ParseNumeric(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Chartable reports whether answers of this kind reduce to a number for
// trend visualization.
func (k Kind) Chartable() bool {
	switch k {
	case Integer, Float, DropdownMapped, YesNo:
		return true
	}
	return false
}
