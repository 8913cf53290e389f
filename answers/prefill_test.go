package answers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfaulds/projectpulse/form"
)

func TestPrefill(t *testing.T) {
	f := form.Form{Sections: []form.Section{{
		Questions: []form.Question{
			{ID: "manager", Text: "Manager?", Type: form.ShortText, Remember: true},
			{ID: "deadline", Text: "Deadline?", Type: form.Date, Remember: true},
			{ID: "progress", Text: "Progress?", Type: form.LongText},
			{ID: "happy", Text: "Happy?", Type: form.YesNo, Remember: true},
			{ID: "sure", Text: "Sure?", Type: form.YesNo, Remember: true},
			{ID: "empty", Text: "Empty?", Type: form.ShortText, Remember: true},
		},
	}}}

	prior := map[string]any{
		"manager":  "Sam",
		"deadline": "2025-01-31",
		"progress": "should never carry over",
		"happy":    "yes",
		"sure":     "possibly", // indeterminate
		"empty":    "",
	}

	got := Prefill(f, prior)

	assert.Equal(t, map[string]any{
		"manager":  "Sam",
		"deadline": "2025-01-31",
		"happy":    "yes",
	}, got)
}

func TestPrefillYesNoEncodings(t *testing.T) {
	f := form.Form{Sections: []form.Section{{
		Questions: []form.Question{
			{ID: "q", Type: form.YesNo, Remember: true},
		},
	}}}

	assert.Equal(t, map[string]any{"q": "yes"}, Prefill(f, map[string]any{"q": true}))
	assert.Equal(t, map[string]any{"q": "no"}, Prefill(f, map[string]any{"q": float64(0)}))
	assert.Empty(t, Prefill(f, map[string]any{"q": "shrug"}))
}

func TestPrefillNoHistory(t *testing.T) {
	f := form.Form{Sections: []form.Section{{
		Questions: []form.Question{{ID: "q", Type: form.ShortText, Remember: true}},
	}}}

	assert.Empty(t, Prefill(f, nil))
	assert.Empty(t, Prefill(f, map[string]any{}))
}
