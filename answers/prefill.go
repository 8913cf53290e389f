package answers

import "github.com/mfaulds/projectpulse/form"

// Prefill returns the starting values for a new submission, carried over
// from the user's most recent prior record on the same project. Only
// questions flagged remember participate, and only when the prior answer is
// present and non-empty. A yes/no value is preselected only when it is
// recognizably one of the two choices; an indeterminate stored value leaves
// both options unselected.
func Prefill(f form.Form, prior map[string]any) map[string]any {
	if len(prior) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any)
	for _, sec := range f.Sections {
		for _, q := range sec.Questions {
			if !q.Remember {
				continue
			}
			v, ok := prior[q.ID]
			if !ok || v == nil || v == "" {
				continue
			}

			if q.Type == form.YesNo {
				switch form.RecognizeYesNo(v) {
				case form.Yes:
					out[q.ID] = "yes"
				case form.No:
					out[q.ID] = "no"
				}
				continue
			}

			out[q.ID] = v
		}
	}
	return out
}
