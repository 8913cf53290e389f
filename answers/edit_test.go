package answers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfaulds/projectpulse/form"
)

func editSnapshot() map[string]form.Meta {
	return map[string]form.Meta{
		"q1": {Text: "Status", Type: form.ShortText},
		"q2": {Text: "Score", Type: form.Integer},
	}
}

func TestReconcileEditByID(t *testing.T) {
	got, err := ReconcileEdit([]byte(`{"q1": "on track", "q2": "17"}`), editSnapshot())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "on track", "q2": int64(17)}, got)
}

func TestReconcileEditByBracketedLabel(t *testing.T) {
	got, err := ReconcileEdit([]byte(`{"Status [q1]": "late"}`), editSnapshot())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "late"}, got)
}

func TestReconcileEditByUniqueLabel(t *testing.T) {
	got, err := ReconcileEdit([]byte(`{"status": "late", "SCORE": 3}`), editSnapshot())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "late", "q2": int64(3)}, got)
}

func TestReconcileEditPairList(t *testing.T) {
	got, err := ReconcileEdit([]byte(`[
		{"id": "q2", "value": 5},
		{"id": "q1", "value": "ok"}
	]`), editSnapshot())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "ok", "q2": int64(5)}, got)
}

func TestReconcileEditIDWinsOverLabel(t *testing.T) {
	// "q1" is an id in the snapshot even if some question's label reads "q1".
	snapshot := map[string]form.Meta{
		"q1": {Text: "Status", Type: form.ShortText},
		"q9": {Text: "q1", Type: form.Integer},
	}

	got, err := ReconcileEdit([]byte(`{"q1": "direct"}`), snapshot)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "direct"}, got)
}

func TestReconcileEditDropsUnresolvableKeys(t *testing.T) {
	got, err := ReconcileEdit([]byte(`{"nope": 1, "Missing [zz]": 2, "q1": "kept"}`), editSnapshot())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"q1": "kept"}, got)
}

func TestReconcileEditDropsAmbiguousLabel(t *testing.T) {
	snapshot := map[string]form.Meta{
		"q1": {Text: "Status", Type: form.ShortText},
		"q2": {Text: "status", Type: form.ShortText},
	}

	got, err := ReconcileEdit([]byte(`{"Status": "which one?"}`), snapshot)
	require.NoError(t, err)

	assert.Empty(t, got, "an ambiguous label must never be guessed")
}

func TestReconcileEditCoercesBySnapshotType(t *testing.T) {
	snapshot := map[string]form.Meta{
		"rag": {Text: "RAG", Type: form.DropdownMapped, ValueMap: map[string]int{"red": 2}},
		"ok":  {Text: "OK?", Type: form.YesNo},
	}

	got, err := ReconcileEdit([]byte(`{"rag": "red", "ok": "TRUE"}`), snapshot)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"rag": int64(2), "ok": "yes"}, got)
}

func TestReconcileEditStructuralFailures(t *testing.T) {
	for _, payload := range []string{"", "   ", "garbage", `"just a string"`, "42", `{"q1": `} {
		_, err := ReconcileEdit([]byte(payload), editSnapshot())
		assert.ErrorIs(t, err, ErrStructuralInput, "payload %q", payload)
	}

	// Empty but well-formed payloads are fine.
	got, err := ReconcileEdit([]byte(`{}`), editSnapshot())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ReconcileEdit([]byte(`[]`), editSnapshot())
	require.NoError(t, err)
	assert.Empty(t, got)
}
