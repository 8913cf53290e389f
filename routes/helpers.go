package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/form"
	"github.com/mfaulds/projectpulse/model"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

func fmtDT(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// loadProject fetches a project row together with its ordered question-set
// assignments and bespoke questions.
func loadProject(ctx context.Context, app app.App, id int64) (model.Project, error) {
	p := model.Project{ID: id}

	var custom string
	var fp sql.NullInt64
	var deleted sql.NullTime
	err := app.QueryRowContext(ctx, `
		SELECT name, focalpoint_code, closed, custom_questions, deleted_at
		FROM project
		WHERE id = ?`,
		id,
	).Scan(&p.Name, &fp, &p.Closed, &custom, &deleted)
	if err != nil {
		return p, err
	}
	if fp.Valid {
		code := fp.Int64
		p.FocalpointCode = &code
	}
	if deleted.Valid {
		t := deleted.Time
		p.DeletedAt = &t
	}
	p.Bespoke = parseBespoke(custom)

	rows, err := app.QueryContext(ctx, `
		SELECT question_set_id
		FROM project_question_set
		WHERE project_id = ?
		ORDER BY position`,
		id,
	)
	if err != nil {
		return p, err
	}
	defer rows.Close()

	for rows.Next() {
		var qsid int64
		if err := rows.Scan(&qsid); err != nil {
			return p, err
		}
		p.QuestionSetIDs = append(p.QuestionSetIDs, qsid)
	}
	return p, rows.Err()
}

func parseBespoke(raw string) form.Canonical {
	var decoded any
	_ = json.Unmarshal([]byte(raw), &decoded)
	return form.CanonicalizeBespoke(decoded)
}

func parseSetData(raw, name string) form.Canonical {
	var decoded any
	_ = json.Unmarshal([]byte(raw), &decoded)
	return form.CanonicalizeSet(decoded, name)
}

// loadSets resolves question-set snapshots by id. Missing ids are simply
// absent from the result; the composer skips them.
func loadSets(ctx context.Context, app app.App, ids []int64) (map[int64]form.Canonical, error) {
	out := make(map[int64]form.Canonical, len(ids))
	for _, id := range ids {
		var name, data string
		err := app.QueryRowContext(ctx,
			"SELECT name, data FROM question_set WHERE id = ?", id,
		).Scan(&name, &data)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, err
		}
		out[id] = parseSetData(data, name)
	}
	return out, nil
}

func composeProjectForm(ctx context.Context, app app.App, p model.Project) (form.Form, error) {
	sets, err := loadSets(ctx, app, p.QuestionSetIDs)
	if err != nil {
		return form.Form{}, err
	}
	return form.Compose(p.Name, p.QuestionSetIDs, sets, p.Bespoke), nil
}

func userAccess(ctx context.Context, app app.App, userID int64) (assigned, banned []int64, err error) {
	rows, err := app.QueryContext(ctx, `
		SELECT project_id, access_type
		FROM user_project_access
		WHERE user_id = ?
		ORDER BY project_id`,
		userID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pid int64
		var accessType string
		if err := rows.Scan(&pid, &accessType); err != nil {
			return nil, nil, err
		}
		switch accessType {
		case "assigned":
			assigned = append(assigned, pid)
		case "banned":
			banned = append(banned, pid)
		}
	}
	return assigned, banned, rows.Err()
}

// projectVisible applies the visibility precedence rule: a non-empty
// assigned list is an allowlist, otherwise a non-empty banned list is a
// denylist, otherwise everything is visible.
func projectVisible(id int64, assigned, banned []int64) bool {
	if len(assigned) > 0 {
		return containsID(assigned, id)
	}
	if len(banned) > 0 {
		return !containsID(banned, id)
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// requireProjectAccess loads a project and checks the current user may see
// it. A non-zero status means the caller should reply with it and stop.
func requireProjectAccess(ctx context.Context, app app.App, user middlewares.User, projectID int64, includeClosed bool) (model.Project, int, error) {
	p, err := loadProject(ctx, app, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, http.StatusNotFound, nil
		}
		return p, 0, err
	}
	if p.DeletedAt != nil {
		return p, http.StatusNotFound, nil
	}
	if p.Closed && !includeClosed {
		return p, http.StatusForbidden, nil
	}

	assigned, banned, err := userAccess(ctx, app, user.ID)
	if err != nil {
		return p, 0, err
	}
	if !projectVisible(p.ID, assigned, banned) {
		return p, http.StatusForbidden, nil
	}
	return p, 0, nil
}

func unmarshalAnswers(raw string) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalQuestions(raw string) map[string]form.Meta {
	out := map[string]form.Meta{}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// saveBespoke appends inferred bespoke questions to the project's
// "Auto-created" section and persists the result.
func saveBespoke(ctx context.Context, app app.App, p model.Project, questions []form.Question) error {
	if len(questions) == 0 {
		return nil
	}

	bespoke := p.Bespoke
	idx := -1
	for i, sec := range bespoke.Sections {
		if sec.Title == "Auto-created" {
			idx = i
			break
		}
	}
	if idx < 0 {
		bespoke.Sections = append(bespoke.Sections, form.Section{Title: "Auto-created"})
		idx = len(bespoke.Sections) - 1
	}
	bespoke.Sections[idx].Questions = append(bespoke.Sections[idx].Questions, questions...)

	data, err := marshalJSON(bespoke)
	if err != nil {
		return err
	}
	_, err = app.ExecContext(ctx, "UPDATE project SET custom_questions = ? WHERE id = ?", data, p.ID)
	return err
}
