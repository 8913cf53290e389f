package form

import "fmt"

// Form is the live, derived form of a project: the sections of its assigned
// question sets in assignment order, then its bespoke sections. A Form is
// recomputed on demand and never cached across a project or set mutation.
type Form struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Compose merges the referenced question-set snapshots and the project's
// bespoke sections into one form. Missing set ids are skipped: an assignment
// may still point at a deleted version and composition must not fail for it.
//
// Duplicate question ids across sections are preserved as-is. Consumers that
// key by id see the later occurrence's metadata; this mirrors upstream data
// and is pinned by tests rather than deduplicated here.
func Compose(title string, assignedSetIDs []int64, setsByID map[int64]Canonical, bespoke Canonical) Form {
	f := Form{Title: title}

	for i, id := range assignedSetIDs {
		set, ok := setsByID[id]
		if !ok {
			continue
		}

		setTitle := set.Title
		if setTitle == "" {
			setTitle = fmt.Sprintf("Set %d", i+1)
		}
		for _, sec := range set.Sections {
			f.Sections = append(f.Sections, Section{
				Title:     setTitle + " — " + sectionTitle(sec),
				Questions: sec.Questions,
			})
		}
	}

	for _, sec := range bespoke.Sections {
		f.Sections = append(f.Sections, Section{
			Title:     "Custom — " + sectionTitle(sec),
			Questions: sec.Questions,
		})
	}

	return f
}

func sectionTitle(sec Section) string {
	if sec.Title == "" {
		return "Section"
	}
	return sec.Title
}

// Lookup maps question id to its full definition. When an id occurs more
// than once in the form, the later occurrence wins.
func (f Form) Lookup() map[string]Question {
	out := make(map[string]Question)
	for _, sec := range f.Sections {
		for _, q := range sec.Questions {
			out[q.ID] = q
		}
	}
	return out
}

// Snapshot reduces the form to the metadata map stored with a record.
func (f Form) Snapshot() map[string]Meta {
	out := make(map[string]Meta)
	for _, sec := range f.Sections {
		for _, q := range sec.Questions {
			out[q.ID] = q.Meta()
		}
	}
	return out
}
