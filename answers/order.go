package answers

import (
	"sort"
	"strings"

	"github.com/mfaulds/projectpulse/form"
)

// Ordered is one answer positioned for display.
type Ordered struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Value any       `json:"value"`
	Meta  form.Meta `json:"meta"`
}

// Order arranges a record's answers by the current form's visual order.
// Answers whose question no longer appears on the form sink to an unordered
// tail, alphabetically stable among themselves. The snapshot supplies labels
// and metadata; the live form supplies positions only, never meaning.
func Order(recAnswers map[string]any, snapshot map[string]form.Meta, current form.Form) []Ordered {
	position := make(map[string]int)
	for _, sec := range current.Sections {
		for _, q := range sec.Questions {
			if _, seen := position[q.ID]; !seen {
				position[q.ID] = len(position)
			}
		}
	}
	tail := len(position)

	out := make([]Ordered, 0, len(recAnswers))
	for id, v := range recAnswers {
		meta := snapshot[id]
		label := meta.Text
		if label == "" {
			label = id
		}
		out = append(out, Ordered{ID: id, Label: label, Value: v, Meta: meta})
	}

	sort.Slice(out, func(i, j int) bool {
		pi, ok := position[out[i].ID]
		if !ok {
			pi = tail
		}
		pj, ok := position[out[j].ID]
		if !ok {
			pj = tail
		}
		if pi != pj {
			return pi < pj
		}
		li, lj := strings.ToLower(out[i].Label), strings.ToLower(out[j].Label)
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})

	return out
}
