package answers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfaulds/projectpulse/form"
)

func testForm() form.Form {
	return form.Form{
		Title: "Bikes for All",
		Sections: []form.Section{{
			Title: "Monthly — Status",
			Questions: []form.Question{
				{ID: "auto-name", Text: "Project name?", Type: form.ShortText, Auto: &form.Auto{Source: form.AutoProjectName}},
				{ID: "auto-fp", Text: "Focalpoint code?", Type: form.Integer, Auto: &form.Auto{Source: form.AutoFocalpointCode}},
				{ID: "manager", Text: "Project manager?", Type: form.ShortText, Required: true, Remember: true},
				{ID: "risk", Text: "Risk register updated?", Type: form.YesNo, Required: true},
				{ID: "rag", Text: "Overall RAG status: time?", Type: form.DropdownMapped,
					Options: []string{"red", "amber", "green"}, ValueMap: map[string]int{"red": 2, "amber": 1, "green": 0}},
			},
		}},
	}
}

func TestResolveCoercesAndFillsAuto(t *testing.T) {
	fp := int64(421)
	sub, err := Resolve(testForm(), map[string]any{
		"manager": "Sam",
		"risk":    true,
		"rag":     "amber",
	}, AutoValues{ProjectName: "Bikes for All", FocalpointCode: &fp})
	require.NoError(t, err)

	assert.Equal(t, "Bikes for All", sub.Answers["auto-name"])
	assert.Equal(t, int64(421), sub.Answers["auto-fp"])
	assert.Equal(t, "Sam", sub.Answers["manager"])
	assert.Equal(t, "yes", sub.Answers["risk"])
	assert.Equal(t, int64(1), sub.Answers["rag"])
	assert.Empty(t, sub.MissingRequired)
	assert.Empty(t, sub.Bespoke)

	// The snapshot covers every live question, answered or not.
	assert.Len(t, sub.Snapshot, 5)
	assert.Equal(t, form.DropdownMapped, sub.Snapshot["rag"].Type)
}

func TestResolveAutoOverridesSubmittedValue(t *testing.T) {
	sub, err := Resolve(testForm(), map[string]any{
		"auto-name": "spoofed",
		"manager":   "Sam",
		"risk":      "no",
	}, AutoValues{ProjectName: "Real Name"})
	require.NoError(t, err)

	assert.Equal(t, "Real Name", sub.Answers["auto-name"])
	// No focalpoint on the project: the auto answer stays absent.
	assert.Nil(t, sub.Answers["auto-fp"])
}

func TestResolveMissingRequired(t *testing.T) {
	sub, err := Resolve(testForm(), map[string]any{
		"risk": "maybe", // indeterminate coerces to nil
	}, AutoValues{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Project manager?", "Risk register updated?"}, sub.MissingRequired)
}

func TestResolveLabelKeyMatchesExistingQuestion(t *testing.T) {
	sub, err := Resolve(testForm(), map[string]any{
		"  project MANAGER? ": "Sam",
		"risk":                "yes",
	}, AutoValues{})
	require.NoError(t, err)

	assert.Equal(t, "Sam", sub.Answers["manager"])
	assert.Empty(t, sub.Bespoke)
}

func TestResolveLabelKeyCreatesBespokeQuestion(t *testing.T) {
	sub, err := Resolve(testForm(), map[string]any{
		"manager":        "Sam",
		"risk":           "yes",
		"Volunteer days": float64(12),
	}, AutoValues{})
	require.NoError(t, err)

	require.Len(t, sub.Bespoke, 1)
	q := sub.Bespoke[0]
	assert.Equal(t, "Volunteer days", q.Text)
	assert.Equal(t, form.Float, q.Type)
	assert.NotEmpty(t, q.ID)

	assert.Equal(t, float64(12), sub.Answers[q.ID])
	assert.Contains(t, sub.Snapshot, q.ID)
}

func TestResolveUUIDKeyWithMetadata(t *testing.T) {
	id := uuid.NewString()
	sub, err := Resolve(testForm(), map[string]any{
		"manager": "Sam",
		"risk":    "yes",
		id: map[string]any{
			"text":  "Happy with progress?",
			"type":  "yes_no",
			"value": true,
		},
	}, AutoValues{})
	require.NoError(t, err)

	require.Len(t, sub.Bespoke, 1)
	q := sub.Bespoke[0]
	assert.Equal(t, id, q.ID)
	assert.Equal(t, form.YesNo, q.Type)
	assert.Equal(t, "yes", sub.Answers[id])
}

func TestResolveUUIDKeyWithoutMetadataFails(t *testing.T) {
	_, err := Resolve(testForm(), map[string]any{
		uuid.NewString(): "bare value",
	}, AutoValues{})

	var unknown UnknownKeyError
	require.ErrorAs(t, err, &unknown)
}

func TestInferQuestion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  form.Kind
	}{
		{"bool", true, form.YesNo},
		{"number", float64(3), form.Float},
		{"date string", "2024-06-01", form.Date},
		{"short string", "fine", form.ShortText},
		{"long string", string(make([]byte, 81)), form.LongText},
		{"nil", nil, form.ShortText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := InferQuestion("Label", tt.value)
			assert.Equal(t, tt.want, q.Type)
			assert.Equal(t, "Label", q.Text)
		})
	}
}

func TestInferQuestionWithMetadata(t *testing.T) {
	q, v := InferQuestion("RAG", map[string]any{
		"type":      "dropdown_mapped",
		"options":   []any{"red", "green"},
		"value_map": map[string]any{"red": float64(2), "green": float64(0)},
		"value":     "red",
	})

	assert.Equal(t, form.DropdownMapped, q.Type)
	assert.Equal(t, []string{"red", "green"}, q.Options)
	assert.Equal(t, map[string]int{"red": 2, "green": 0}, q.ValueMap)
	assert.Equal(t, "red", v)
}
