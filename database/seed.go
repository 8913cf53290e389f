package database

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mfaulds/projectpulse/form"
	"github.com/mfaulds/projectpulse/keys"
	"github.com/mfaulds/projectpulse/model"
)

// DefaultQuestionSetName is the built-in set auto-assigned to new projects.
const DefaultQuestionSetName = "default"

// Seed makes a fresh database usable: the built-in question set exists, and
// when no admin user is present yet a bootstrap invite is created so the
// first operator can register. The returned invite is nil once an admin
// exists.
func Seed(db *sql.DB) (*model.Invite, error) {
	if err := ensureDefaultQuestionSet(db); err != nil {
		return nil, err
	}

	var admins int
	err := db.QueryRow(`SELECT count(*) FROM user WHERE is_admin AND deleted_at IS NULL`).Scan(&admins)
	if err != nil {
		return nil, errors.Wrap(err, "count admins")
	}
	if admins > 0 {
		return nil, nil
	}

	inv := &model.Invite{
		Key:    keys.New(18),
		Secret: keys.New(18),
	}
	_, err = db.Exec(
		`INSERT INTO invite (key, secret_hash) VALUES (?, ?)`,
		inv.Key,
		keys.SHA256Hex(inv.Secret),
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert bootstrap invite")
	}
	return inv, nil
}

func ensureDefaultQuestionSet(db *sql.DB) error {
	var id int64
	err := db.QueryRow(`
		SELECT id FROM question_set
		WHERE name = ? AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		DefaultQuestionSetName,
	).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "lookup default question set")
	}

	data, err := json.Marshal(defaultQuestionSet())
	if err != nil {
		return errors.Wrap(err, "marshal default question set")
	}

	_, err = db.Exec(
		`INSERT INTO question_set (name, data) VALUES (?, ?)`,
		DefaultQuestionSetName,
		string(data),
	)
	return errors.Wrap(err, "insert default question set")
}

func defaultQuestionSet() form.Canonical {
	rag := map[string]int{"red": 2, "amber": 1, "green": 0}

	q := func(text string, kind form.Kind, required bool) form.Question {
		return form.Question{ID: uuid.NewString(), Text: text, Type: kind, Required: required}
	}
	remember := func(qq form.Question) form.Question {
		qq.Remember = true
		return qq
	}
	dropdown := func(text string, required bool, options ...string) form.Question {
		qq := q(text, form.Dropdown, required)
		qq.Options = options
		return qq
	}
	ragQuestion := func(text string) form.Question {
		qq := q(text, form.DropdownMapped, true)
		qq.Options = []string{"red", "amber", "green"}
		qq.ValueMap = rag
		return qq
	}
	auto := func(qq form.Question, source form.AutoSource) form.Question {
		qq.Auto = &form.Auto{Source: source}
		return qq
	}

	return form.Canonical{
		Title: DefaultQuestionSetName,
		Sections: []form.Section{{
			Title: "Monthly Update",
			Questions: []form.Question{
				auto(q("Focalpoint code?", form.Integer, false), form.AutoFocalpointCode),
				auto(q("Project name?", form.ShortText, false), form.AutoProjectName),
				remember(q("Project manager?", form.ShortText, true)),
				remember(q("Project sponsor?", form.ShortText, true)),
				remember(dropdown("Funder or Programme?", true, "ATE", "DfT", "T9")),
				remember(dropdown("Project Type?", true, "Engagement", "Construction", "Pipeline", "Other")),
				remember(dropdown("Region?", true, "South", "M&E", "North", "London", "National")),
				q("Progress during last period?", form.LongText, true),
				q("Focus for next month?", form.LongText, true),
				q("Has the NCN risk register been updated this calendar month?", form.YesNo, true),
				q("Key risks escalated on behalf of Project Sponsor?", form.LongText, false),
				remember(q("Agreed Project Deadline?", form.Date, false)),
				q("Are the dates in the Infrastructure Plan correct?", form.YesNo, true),
				q("Have you identified and added any new significant issues to the ATE Issues Log this calendar month?", form.YesNo, true),
				q("Significant issues to highlight?", form.LongText, false),
				q("Any other comments?", form.LongText, false),
				ragQuestion("Overall RAG status: time?"),
				ragQuestion("Overall RAG status: budget?"),
				ragQuestion("Overall RAG status: scope?"),
			},
		}},
	}
}
