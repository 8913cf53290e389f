package form

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CanonicalizeSet converts an imported question-set payload into canonical
// form. Two shapes are accepted:
//
//  1. canonical: {"title": ..., "sections": [{"title": ..., "questions": [...]}]}
//  2. a legacy nested map: {Title: {sectionTitle: [ ...questions... ]}}
//
// Anything else yields an empty canonical container under the fallback name.
// Every question comes out with an id, normalized options and a value map.
func CanonicalizeSet(raw any, fallbackName string) Canonical {
	if m, ok := raw.(map[string]any); ok {
		if _, hasSections := m["sections"]; hasSections {
			if _, hasTitle := m["title"]; hasTitle {
				return canonicalFromMap(m)
			}
		}

		if len(m) == 1 {
			for title, inner := range m {
				return legacyCanonical(title, inner)
			}
		}
	}

	return Canonical{
		Title:    fallbackName,
		Sections: []Section{{Title: "Section", Questions: []Question{}}},
	}
}

// CanonicalizeBespoke normalizes a project's stored bespoke questions,
// falling back to an empty "Custom" container for unknown shapes.
func CanonicalizeBespoke(raw any) Canonical {
	if m, ok := raw.(map[string]any); ok {
		if _, hasSections := m["sections"]; hasSections {
			if _, hasTitle := m["title"]; hasTitle {
				return canonicalFromMap(m)
			}
		}
	}
	return Canonical{Title: "Custom", Sections: []Section{}}
}

func canonicalFromMap(m map[string]any) Canonical {
	c := Canonical{Title: asString(m["title"])}
	if c.Title == "" {
		c.Title = asString(m["name"])
	}
	if c.Title == "" {
		c.Title = "Untitled"
	}

	for _, rawSec := range asSlice(m["sections"]) {
		sec, ok := rawSec.(map[string]any)
		if !ok {
			continue
		}
		out := Section{Title: asString(sec["title"]), Questions: []Question{}}
		for _, rawQ := range asSlice(sec["questions"]) {
			qm, ok := rawQ.(map[string]any)
			if !ok {
				continue
			}
			out.Questions = append(out.Questions, questionFromMap(qm))
		}
		c.Sections = append(c.Sections, out)
	}
	return c
}

// legacyCanonical handles {Title: {sectionTitle: [items]}} where each item is
// either {questionText: {type, required, ...}} or {"question": ..., "type": ...}.
func legacyCanonical(title string, inner any) Canonical {
	c := Canonical{Title: title, Sections: []Section{}}

	innerMap, ok := inner.(map[string]any)
	if !ok {
		return Canonical{
			Title:    title,
			Sections: []Section{{Title: "Section", Questions: []Question{}}},
		}
	}

	for sectionTitle, items := range innerMap {
		sec := Section{Title: sectionTitle, Questions: []Question{}}

		for _, item := range asSlice(items) {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}

			if text, hasQ := im["question"]; hasQ {
				q := questionFromMap(im)
				q.Text = strings.TrimSpace(asString(text))
				sec.Questions = append(sec.Questions, q)
				continue
			}

			if len(im) == 1 {
				for text, meta := range im {
					qm, _ := meta.(map[string]any)
					if qm == nil {
						qm = map[string]any{}
					}
					q := questionFromMap(qm)
					q.Text = strings.TrimSpace(text)
					if q.Type == "" {
						q.Type = ShortText
					}
					if _, hasReq := qm["required"]; !hasReq {
						q.Required = true
					}
					sec.Questions = append(sec.Questions, q)
				}
			}
		}

		c.Sections = append(c.Sections, sec)
	}
	return c
}

func questionFromMap(m map[string]any) Question {
	q := Question{
		ID:       asString(m["id"]),
		Text:     strings.TrimSpace(asString(m["text"])),
		Type:     Kind(asString(m["type"])),
		Required: asBool(m["required"]),
		Remember: asBool(m["remember"]),
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Type == "" {
		q.Type = ShortText
	}

	if q.Type == Dropdown || q.Type == DropdownMapped {
		q.Options = normalizeOptions(m["options"])
	}
	if q.Type == DropdownMapped {
		q.ValueMap = normalizeValueMap(m["value_map"])
		if q.ValueMap == nil {
			q.ValueMap = normalizeValueMap(m["map"])
		}
		if q.ValueMap == nil {
			q.ValueMap = map[string]int{}
		}
	}

	if am, ok := m["auto"].(map[string]any); ok {
		if src := asString(am["source"]); src != "" {
			q.Auto = &Auto{Source: AutoSource(src)}
		}
	}
	return q
}

// normalizeOptions accepts a newline-separated string or a list. A list made
// entirely of single-character strings is treated as an exploded string, a
// quirk some imported payloads carry.
func normalizeOptions(raw any) []string {
	switch t := raw.(type) {
	case string:
		return splitNonEmptyLines(t)
	case []any:
		exploded := len(t) > 0
		var sb strings.Builder
		for _, v := range t {
			s, ok := v.(string)
			if !ok || len(s) > 1 {
				exploded = false
				break
			}
			sb.WriteString(s)
		}
		if exploded {
			return splitNonEmptyLines(sb.String())
		}

		out := []string{}
		for _, v := range t {
			if s := strings.TrimSpace(asString(v)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func normalizeValueMap(raw any) map[string]int {
	switch t := raw.(type) {
	case map[string]any:
		out := make(map[string]int, len(t))
		for k, v := range t {
			if n, ok := ParseNumeric(v); ok {
				out[k] = int(n)
			}
		}
		return out
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(t), &parsed); err == nil {
			return normalizeValueMap(parsed)
		}
	}
	return nil
}

func splitNonEmptyLines(s string) []string {
	out := []string{}
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers used where a string is expected, e.g. numeric options.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
