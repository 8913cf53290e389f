// Package trends derives per-question numeric series from a record history
// for chronological charting.
package trends

import (
	"sort"
	"strings"
	"time"

	"github.com/mfaulds/projectpulse/form"
)

// Record is the slice of a stored record the aggregator needs.
type Record struct {
	CreatedAt time.Time
	Answers   map[string]any
	Questions map[string]form.Meta
}

// Series is the chartable view of a record history. Labels holds one
// timestamp per record in chronological order; Series maps a question label
// to one value per record, nil marking a gap. A gap is never zero and never
// interpolated: renderers connect the surrounding present points directly.
type Series struct {
	Labels []time.Time           `json:"labels"`
	Series map[string][]*float64 `json:"series"`
}

// Build aggregates records, given newest-first, into per-question series.
// Only chartable question types (integer, float, dropdown_mapped, yes_no)
// contribute; everything else is ignored.
//
// Series are keyed by question label, not id: two questions sharing a label
// merge into one series, with the later answer in record order winning per
// slot. That collision is long-standing behavior callers chart against, so
// it is kept and pinned by tests rather than fixed. The lookup parameter
// fills in metadata for answers missing from a record's own snapshot.
func Build(records []Record, lookup map[string]form.Meta) Series {
	chrono := make([]Record, len(records))
	for i, r := range records {
		chrono[len(records)-1-i] = r
	}

	out := Series{
		Labels: make([]time.Time, len(chrono)),
		Series: make(map[string][]*float64),
	}

	for i, rec := range chrono {
		out.Labels[i] = rec.CreatedAt

		// Deterministic iteration so label collisions resolve the same way
		// on every build.
		ids := make([]string, 0, len(rec.Answers))
		for id := range rec.Answers {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			v := rec.Answers[id]
			meta, ok := rec.Questions[id]
			if !ok {
				meta, ok = lookup[id]
				if !ok {
					continue
				}
			}
			if !meta.Type.Chartable() {
				continue
			}

			label := meta.Text
			if label == "" {
				label = id
			}
			slots, ok := out.Series[label]
			if !ok {
				slots = make([]*float64, len(chrono))
				out.Series[label] = slots
			}

			if n, ok := numericValue(meta.Type, v); ok {
				slots[i] = &n
			}
		}
	}

	return out
}

// SortedLabels returns the series keys in the deterministic presentation
// order: case-insensitive ascending.
func (s Series) SortedLabels() []string {
	labels := make([]string, 0, len(s.Series))
	for label := range s.Series {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		li, lj := strings.ToLower(labels[i]), strings.ToLower(labels[j])
		if li != lj {
			return li < lj
		}
		return labels[i] < labels[j]
	})
	return labels
}

func numericValue(kind form.Kind, v any) (float64, bool) {
	if kind == form.YesNo {
		switch form.RecognizeYesNo(v) {
		case form.Yes:
			return 1, true
		case form.No:
			return 0, true
		}
		return 0, false
	}
	return form.ParseNumeric(v)
}
