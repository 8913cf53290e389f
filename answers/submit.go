// Package answers resolves submitted and edited answer payloads back to
// stable question identities, and orders a record's answers for display.
package answers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mfaulds/projectpulse/form"
)

// AutoValues carries the project attributes that populate auto questions at
// submission time.
type AutoValues struct {
	ProjectName    string
	FocalpointCode *int64
}

// Submission is the outcome of resolving a raw answer payload against the
// live form.
type Submission struct {
	// Answers maps question id to its coerced value, ready to persist.
	Answers map[string]any
	// Snapshot is the question metadata captured with the record.
	Snapshot map[string]form.Meta
	// Bespoke holds questions inferred from unknown keys; the caller persists
	// them into the project's bespoke sections.
	Bespoke []form.Question
	// MissingRequired lists the labels of required questions left unanswered.
	MissingRequired []string
}

// UnknownKeyError reports an answer key that is neither a known question id
// nor resolvable into a bespoke question.
type UnknownKeyError struct {
	Key string
}

func (e UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown question id %q: provide question metadata or use a human-readable label as the key", e.Key)
}

var dateLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Resolve coerces a submitted id-to-value payload against the live form.
//
// Keys that are not question ids get two escape hatches, kept for automation
// and seeding clients: a human-readable label key creates (or reuses) a
// bespoke question with an inferred type, and an unknown UUID key whose value
// carries question metadata creates one under that id. Any other unknown key
// is an UnknownKeyError.
func Resolve(f form.Form, raw map[string]any, auto AutoValues) (Submission, error) {
	lookup := f.Lookup()

	labelToID := make(map[string]string)
	for id, q := range lookup {
		if q.Text != "" {
			labelToID[normalizeLabel(q.Text)] = id
		}
	}

	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[k] = v
	}

	for id, q := range lookup {
		if q.Auto == nil {
			continue
		}
		switch q.Auto.Source {
		case form.AutoProjectName:
			values[id] = auto.ProjectName
		case form.AutoFocalpointCode:
			if auto.FocalpointCode != nil {
				values[id] = *auto.FocalpointCode
			}
		}
	}

	sub := Submission{Answers: make(map[string]any)}

	for key, v := range values {
		if _, known := lookup[key]; known {
			continue
		}
		delete(values, key)

		q, norm, err := resolveUnknownKey(key, v, labelToID)
		if err != nil {
			return Submission{}, err
		}
		if q == nil {
			// Label matched an existing question.
			values[labelToID[normalizeLabel(key)]] = norm
			continue
		}
		if existing, ok := labelToID[normalizeLabel(q.Text)]; ok {
			values[existing] = norm
			continue
		}

		lookup[q.ID] = *q
		labelToID[normalizeLabel(q.Text)] = q.ID
		sub.Bespoke = append(sub.Bespoke, *q)
		values[q.ID] = norm
	}

	for id, v := range values {
		q := lookup[id]
		sub.Answers[id] = q.Coerce(v)
	}

	for id, q := range lookup {
		if !q.Required {
			continue
		}
		if v, ok := sub.Answers[id]; !ok || v == nil || v == "" {
			sub.MissingRequired = append(sub.MissingRequired, q.Text)
		}
	}

	sub.Snapshot = make(map[string]form.Meta, len(lookup))
	for id, q := range lookup {
		sub.Snapshot[id] = q.Meta()
	}

	return sub, nil
}

// resolveUnknownKey turns an unknown answer key into a bespoke question, or
// reports that the key is a label of an existing question (nil question).
func resolveUnknownKey(key string, v any, labelToID map[string]string) (*form.Question, any, error) {
	if isUUID(key) {
		meta, ok := v.(map[string]any)
		if !ok {
			return nil, nil, UnknownKeyError{Key: key}
		}
		label := firstString(meta, "text", "question")
		if label == "" {
			return nil, nil, UnknownKeyError{Key: key}
		}

		if _, exists := labelToID[normalizeLabel(label)]; exists {
			_, norm := InferQuestion(label, meta)
			return nil, norm, nil
		}

		q, norm := InferQuestion(label, meta)
		q.ID = key
		return &q, norm, nil
	}

	if _, exists := labelToID[normalizeLabel(key)]; exists {
		return nil, v, nil
	}

	q, norm := InferQuestion(key, v)
	return &q, norm, nil
}

// InferQuestion derives a bespoke question definition from a posted value.
// The value may be a plain scalar, or a structured object carrying metadata:
// {type, value/answer, options, value_map}.
func InferQuestion(label string, raw any) (form.Question, any) {
	q := form.Question{
		ID:   uuid.NewString(),
		Text: strings.TrimSpace(label),
	}

	if meta, ok := raw.(map[string]any); ok {
		if t := firstString(meta, "type", "qtype"); t != "" {
			q.Type = form.Kind(t)
		}
		if opts, ok := meta["options"].([]any); ok {
			for _, o := range opts {
				if s, ok := o.(string); ok {
					q.Options = append(q.Options, s)
				}
			}
		}
		if vm, ok := meta["value_map"].(map[string]any); ok {
			q.ValueMap = make(map[string]int, len(vm))
			for k, mv := range vm {
				if n, ok := form.ParseNumeric(mv); ok {
					q.ValueMap[k] = int(n)
				}
			}
		}
		if v, ok := meta["value"]; ok {
			raw = v
		} else if v, ok := meta["answer"]; ok {
			raw = v
		} else {
			raw = nil
		}
	}

	if q.Type == "" {
		switch t := raw.(type) {
		case bool:
			q.Type = form.YesNo
		case float64:
			q.Type = form.Float
		case string:
			s := strings.TrimSpace(t)
			switch {
			case dateLike.MatchString(s):
				q.Type = form.Date
			case len(t) > 80:
				q.Type = form.LongText
			default:
				q.Type = form.ShortText
			}
		default:
			q.Type = form.ShortText
		}
	}

	if q.Type == form.YesNo {
		switch form.RecognizeYesNo(raw) {
		case form.Yes:
			raw = "yes"
		case form.No:
			raw = "no"
		}
	}

	return q, raw
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
