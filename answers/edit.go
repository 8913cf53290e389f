package answers

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/mfaulds/projectpulse/form"
)

// ErrStructuralInput is the only edit-payload failure surfaced to callers:
// the payload is neither an object of answers nor a list of id/value pairs,
// so there is no safe way to interpret it.
var ErrStructuralInput = errors.New("edited answers must be a JSON object or a list of {id, value} pairs")

var bracketedID = regexp.MustCompile(`\[([^\[\]]+)\]\s*$`)

// ReconcileEdit resolves an edited answer set against a record's question
// snapshot into an id-to-value map.
//
// Four author-facing encodings are accepted:
//
//  1. object keyed by question id
//  2. object keyed by "<label> [<id>]"
//  3. object keyed by bare label, only when the label is unique in the snapshot
//  4. ordered list of {id, value} pairs
//
// Keys resolve in that order, first match wins. Keys that resolve to nothing
// are dropped silently: an edit payload is a forgiving superset, not a
// validation gate. A bare label matching more than one question is dropped
// too, never guessed. Values are coerced by the snapshot question's type.
func ReconcileEdit(payload []byte, snapshot map[string]form.Meta) (map[string]any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrStructuralInput
	}

	labelCount := make(map[string]int)
	labelToID := make(map[string]string)
	for id, m := range snapshot {
		norm := normalizeLabel(m.Text)
		labelCount[norm]++
		labelToID[norm] = id
	}

	out := make(map[string]any)
	put := func(key string, value any) {
		id, ok := resolveEditKey(key, snapshot, labelCount, labelToID)
		if !ok {
			return
		}
		out[id] = snapshot[id].Question(id).Coerce(value)
	}

	switch trimmed[0] {
	case '[':
		var pairs []struct {
			ID    string `json:"id"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, ErrStructuralInput
		}
		for _, p := range pairs {
			put(p.ID, p.Value)
		}

	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, ErrStructuralInput
		}
		for k, v := range obj {
			put(k, v)
		}

	default:
		return nil, ErrStructuralInput
	}

	return out, nil
}

func resolveEditKey(key string, snapshot map[string]form.Meta, labelCount map[string]int, labelToID map[string]string) (string, bool) {
	if _, ok := snapshot[key]; ok {
		return key, true
	}

	if m := bracketedID.FindStringSubmatch(key); m != nil {
		if _, ok := snapshot[m[1]]; ok {
			return m[1], true
		}
	}

	norm := normalizeLabel(key)
	if labelCount[norm] == 1 {
		return labelToID[norm], true
	}

	return "", false
}
