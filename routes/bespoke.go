package routes

import "github.com/mfaulds/projectpulse/form"

// Pure manipulation of a project's bespoke sections, shared by the granular
// custom-question handlers. All of them keep the invariant that no empty
// section survives a removal.

func findBespokeQuestion(c form.Canonical, id string) (int, int) {
	for si, sec := range c.Sections {
		for qi, q := range sec.Questions {
			if q.ID == id {
				return si, qi
			}
		}
	}
	return -1, -1
}

// addBespokeQuestion appends q to the named section, creating the section at
// the end when it does not exist yet.
func addBespokeQuestion(c form.Canonical, section string, q form.Question) form.Canonical {
	if section == "" {
		section = "Custom"
	}
	for i, sec := range c.Sections {
		if sec.Title == section {
			c.Sections[i].Questions = append(c.Sections[i].Questions, q)
			return c
		}
	}
	c.Sections = append(c.Sections, form.Section{Title: section, Questions: []form.Question{q}})
	return c
}

// updateBespokeQuestion replaces the question's definition and optionally
// moves it to another section or position. The id never changes; answers on
// existing records keep resolving. Reports whether the id was found.
func updateBespokeQuestion(c form.Canonical, id string, upd *form.Question, section *string, position *int) (form.Canonical, bool) {
	si, qi := findBespokeQuestion(c, id)
	if si < 0 {
		return c, false
	}

	q := c.Sections[si].Questions[qi]
	if upd != nil {
		q = *upd
		q.ID = id
	}

	if section == nil && position == nil {
		c.Sections[si].Questions[qi] = q
		return c, true
	}

	qs := c.Sections[si].Questions
	c.Sections[si].Questions = append(qs[:qi], qs[qi+1:]...)

	ti := si
	if section != nil {
		ti = -1
		for i, sec := range c.Sections {
			if sec.Title == *section {
				ti = i
				break
			}
		}
		if ti < 0 {
			c.Sections = append(c.Sections, form.Section{Title: *section, Questions: []form.Question{}})
			ti = len(c.Sections) - 1
		}
	}

	at := len(c.Sections[ti].Questions)
	if position != nil {
		at = *position
	} else if ti == si {
		at = qi
	}
	if at < 0 {
		at = 0
	}
	if max := len(c.Sections[ti].Questions); at > max {
		at = max
	}

	tqs := append(c.Sections[ti].Questions, form.Question{})
	copy(tqs[at+1:], tqs[at:])
	tqs[at] = q
	c.Sections[ti].Questions = tqs

	c.Sections = dropEmptySections(c.Sections)
	return c, true
}

// removeBespokeQuestion deletes the question and any section it leaves
// empty. Reports whether the id was found.
func removeBespokeQuestion(c form.Canonical, id string) (form.Canonical, bool) {
	si, qi := findBespokeQuestion(c, id)
	if si < 0 {
		return c, false
	}
	qs := c.Sections[si].Questions
	c.Sections[si].Questions = append(qs[:qi], qs[qi+1:]...)
	c.Sections = dropEmptySections(c.Sections)
	return c, true
}

func dropEmptySections(sections []form.Section) []form.Section {
	kept := sections[:0]
	for _, sec := range sections {
		if len(sec.Questions) > 0 {
			kept = append(kept, sec)
		}
	}
	return kept
}
