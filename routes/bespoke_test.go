package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfaulds/projectpulse/form"
)

func bespokeFixture() form.Canonical {
	return form.Canonical{
		Sections: []form.Section{
			{Title: "Delivery", Questions: []form.Question{
				{ID: "q1", Text: "On track?", Type: form.YesNo},
				{ID: "q2", Text: "Blockers", Type: form.LongText},
			}},
			{Title: "Team", Questions: []form.Question{
				{ID: "q3", Text: "Morale", Type: form.ShortText},
			}},
		},
	}
}

func sectionTitles(c form.Canonical) []string {
	titles := make([]string, len(c.Sections))
	for i, sec := range c.Sections {
		titles[i] = sec.Title
	}
	return titles
}

func questionIDs(c form.Canonical, section string) []string {
	for _, sec := range c.Sections {
		if sec.Title != section {
			continue
		}
		ids := make([]string, len(sec.Questions))
		for i, q := range sec.Questions {
			ids[i] = q.ID
		}
		return ids
	}
	return nil
}

func TestAddBespokeQuestion(t *testing.T) {
	c := addBespokeQuestion(bespokeFixture(), "Team", form.Question{ID: "q4", Text: "Headcount", Type: form.Integer})
	assert.Equal(t, []string{"q3", "q4"}, questionIDs(c, "Team"))

	// Unknown section names open a new section at the end.
	c = addBespokeQuestion(c, "Budget", form.Question{ID: "q5", Text: "Spend", Type: form.Float})
	assert.Equal(t, []string{"Delivery", "Team", "Budget"}, sectionTitles(c))
	assert.Equal(t, []string{"q5"}, questionIDs(c, "Budget"))

	c = addBespokeQuestion(form.Canonical{}, "", form.Question{ID: "q6", Text: "Notes"})
	assert.Equal(t, []string{"Custom"}, sectionTitles(c))
}

func TestUpdateBespokeQuestionInPlace(t *testing.T) {
	upd := form.Question{ID: "ignored", Text: "Still on track?", Type: form.YesNo, Required: true}
	c, ok := updateBespokeQuestion(bespokeFixture(), "q1", &upd, nil, nil)
	assert.True(t, ok)

	got := c.Sections[0].Questions[0]
	assert.Equal(t, "q1", got.ID, "the stored id survives an update")
	assert.Equal(t, "Still on track?", got.Text)
	assert.True(t, got.Required)
	assert.Equal(t, []string{"q1", "q2"}, questionIDs(c, "Delivery"))
}

func TestUpdateBespokeQuestionMove(t *testing.T) {
	section := "Team"
	position := 0
	c, ok := updateBespokeQuestion(bespokeFixture(), "q2", nil, &section, &position)
	assert.True(t, ok)
	assert.Equal(t, []string{"q1"}, questionIDs(c, "Delivery"))
	assert.Equal(t, []string{"q2", "q3"}, questionIDs(c, "Team"))

	// Out-of-range positions clamp instead of failing.
	position = 99
	c, ok = updateBespokeQuestion(bespokeFixture(), "q1", nil, &section, &position)
	assert.True(t, ok)
	assert.Equal(t, []string{"q3", "q1"}, questionIDs(c, "Team"))

	// Moving the last question out of a section drops the section.
	c, ok = updateBespokeQuestion(bespokeFixture(), "q3", nil, strptr("Delivery"), nil)
	assert.True(t, ok)
	assert.Equal(t, []string{"Delivery"}, sectionTitles(c))
	assert.Equal(t, []string{"q1", "q2", "q3"}, questionIDs(c, "Delivery"))
}

func TestUpdateBespokeQuestionReorderWithinSection(t *testing.T) {
	position := 0
	c, ok := updateBespokeQuestion(bespokeFixture(), "q2", nil, nil, &position)
	assert.True(t, ok)
	assert.Equal(t, []string{"q2", "q1"}, questionIDs(c, "Delivery"))
}

func TestUpdateBespokeQuestionUnknownId(t *testing.T) {
	_, ok := updateBespokeQuestion(bespokeFixture(), "nope", nil, nil, nil)
	assert.False(t, ok)
}

func TestRemoveBespokeQuestion(t *testing.T) {
	c, ok := removeBespokeQuestion(bespokeFixture(), "q3")
	assert.True(t, ok)
	assert.Equal(t, []string{"Delivery"}, sectionTitles(c), "emptied sections disappear")

	c, ok = removeBespokeQuestion(c, "q1")
	assert.True(t, ok)
	assert.Equal(t, []string{"q2"}, questionIDs(c, "Delivery"))

	_, ok = removeBespokeQuestion(c, "q1")
	assert.False(t, ok)
}

func strptr(s string) *string { return &s }
