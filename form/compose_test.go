package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(title string, sections ...Section) Canonical {
	return Canonical{Title: title, Sections: sections}
}

func TestCompose(t *testing.T) {
	sets := map[int64]Canonical{
		1: testSet("Monthly",
			Section{Title: "Status", Questions: []Question{{ID: "a", Text: "A", Type: ShortText}}},
			Section{Title: "Risks", Questions: []Question{{ID: "b", Text: "B", Type: LongText}}},
		),
		2: testSet("Finance",
			Section{Questions: []Question{{ID: "c", Text: "C", Type: Integer}}},
		),
	}
	bespoke := Canonical{Title: "Custom", Sections: []Section{
		{Title: "Extra", Questions: []Question{{ID: "d", Text: "D", Type: YesNo}}},
	}}

	f := Compose("My Project", []int64{2, 1}, sets, bespoke)

	assert.Equal(t, "My Project", f.Title)
	require.Len(t, f.Sections, 4)

	// Assignment order, not set id order; bespoke sections last.
	assert.Equal(t, "Finance — Section", f.Sections[0].Title)
	assert.Equal(t, "Monthly — Status", f.Sections[1].Title)
	assert.Equal(t, "Monthly — Risks", f.Sections[2].Title)
	assert.Equal(t, "Custom — Extra", f.Sections[3].Title)

	assert.Equal(t, "c", f.Sections[0].Questions[0].ID)
}

func TestComposeSkipsMissingSets(t *testing.T) {
	sets := map[int64]Canonical{
		1: testSet("Only",
			Section{Title: "S", Questions: []Question{{ID: "a", Text: "A", Type: ShortText}}},
		),
	}

	f := Compose("P", []int64{7, 1, 9}, sets, Canonical{})

	require.Len(t, f.Sections, 1)
	assert.Equal(t, "Only — S", f.Sections[0].Title)
}

func TestComposeEmptyAssignment(t *testing.T) {
	f := Compose("P", nil, nil, Canonical{})
	assert.Empty(t, f.Sections)
	assert.Empty(t, f.Lookup())
}

func TestComposeIsDeterministic(t *testing.T) {
	sets := map[int64]Canonical{
		1: testSet("One", Section{Title: "S1", Questions: []Question{{ID: "a", Text: "A"}}}),
		2: testSet("Two", Section{Title: "S2", Questions: []Question{{ID: "b", Text: "B"}}}),
	}

	first := Compose("P", []int64{1, 2}, sets, Canonical{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compose("P", []int64{1, 2}, sets, Canonical{}))
	}
}

func TestComposePreservesDuplicateIDs(t *testing.T) {
	sets := map[int64]Canonical{
		1: testSet("One", Section{Title: "S", Questions: []Question{{ID: "dup", Text: "First", Type: ShortText}}}),
		2: testSet("Two", Section{Title: "S", Questions: []Question{{ID: "dup", Text: "Second", Type: LongText}}}),
	}

	f := Compose("P", []int64{1, 2}, sets, Canonical{})

	// Both occurrences stay on the form.
	total := 0
	for _, sec := range f.Sections {
		total += len(sec.Questions)
	}
	assert.Equal(t, 2, total)

	// Keyed consumers see the later occurrence.
	assert.Equal(t, "Second", f.Lookup()["dup"].Text)
	assert.Equal(t, LongText, f.Snapshot()["dup"].Type)
}

func TestSnapshot(t *testing.T) {
	f := Form{Sections: []Section{
		{Title: "S", Questions: []Question{
			{ID: "a", Text: "A", Type: Integer, Required: true},
			{ID: "b", Text: "B", Type: Dropdown, Options: []string{"x", "y"}},
		}},
	}}

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Meta{Text: "A", Type: Integer, Required: true}, snap["a"])
	assert.Equal(t, []string{"x", "y"}, snap["b"].Options)
}
