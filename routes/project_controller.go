package routes

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/mfaulds/projectpulse/answers"
	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/database"
	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/log"
	"github.com/mfaulds/projectpulse/model"
	"github.com/mfaulds/projectpulse/routes/middlewares"
	"github.com/mfaulds/projectpulse/trends"
)

func ListProjects(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUser(r)
		includeClosed := r.URL.Query().Get("include_closed") == "true"

		assigned, banned, err := userAccess(r.Context(), app, user.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_access", err)
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, name, focalpoint_code, closed
			FROM project
			WHERE deleted_at IS NULL
			ORDER BY name`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_projects", err)
			return
		}
		defer rows.Close()

		projects := []model.Project{}
		for rows.Next() {
			p := model.Project{}
			var fp sql.NullInt64
			if err := rows.Scan(&p.ID, &p.Name, &fp, &p.Closed); err != nil {
				httpx.LogInternalError(w, "db.get_projects.scan", err)
				return
			}
			if fp.Valid {
				code := fp.Int64
				p.FocalpointCode = &code
			}
			if p.Closed && !includeClosed {
				continue
			}
			if !projectVisible(p.ID, assigned, banned) {
				continue
			}
			projects = append(projects, p)
		}

		render.JSON(w, r, map[string]any{
			"projects": projects,
		})
	}
}

// CreateProject is the self-service entry point: reporting a project that is
// not listed yet. It is idempotent on name, and revives a soft-deleted
// project instead of conflicting with it.
func CreateProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Name           string `json:"name"`
			FocalpointCode *int64 `json:"focalpoint_code"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_project.name", "project name is required")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var projectID int64
		var deleted sql.NullTime
		err = tx.QueryRowContext(r.Context(),
			"SELECT id, deleted_at FROM project WHERE name = ?", in.Name,
		).Scan(&projectID, &deleted)
		switch {
		case err == sql.ErrNoRows:
			err = tx.QueryRowContext(r.Context(), `
				INSERT INTO project (name, focalpoint_code) VALUES (?, ?)
				RETURNING id`,
				in.Name, in.FocalpointCode,
			).Scan(&projectID)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_project", err)
				return
			}

			var setID int64
			err = tx.QueryRowContext(r.Context(), `
				SELECT id FROM question_set
				WHERE name = ? AND deleted_at IS NULL
				ORDER BY created_at DESC, id DESC
				LIMIT 1`,
				database.DefaultQuestionSetName,
			).Scan(&setID)
			if err != nil && err != sql.ErrNoRows {
				httpx.LogInternalError(w, "db.get_default_set", err)
				return
			}
			if err == nil {
				_, err = tx.ExecContext(r.Context(), `
					INSERT INTO project_question_set (project_id, question_set_id, position)
					VALUES (?, ?, 0)`,
					projectID, setID,
				)
				if err != nil {
					httpx.LogInternalError(w, "db.assign_default_set", err)
					return
				}
			}

		case err != nil:
			httpx.LogInternalError(w, "db.get_project", err)
			return

		case deleted.Valid:
			_, err = tx.ExecContext(r.Context(),
				"UPDATE project SET deleted_at = NULL WHERE id = ?", projectID,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.restore_project", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.insert_project.commit", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": projectID,
		})
	}
}

func GetProjectForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		p, status, err := requireProjectAccess(r.Context(), app, middlewares.CurrentUser(r), projectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "get_form.access")
			return
		}

		f, err := composeProjectForm(r.Context(), app, p)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		render.JSON(w, r, f)
	}
}

// GetProjectPrefill returns the remembered answers from the requesting
// user's most recent record on this project, keyed by live question id.
// Other users' records never feed a prefill.
func GetProjectPrefill(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		user := middlewares.CurrentUser(r)
		p, status, err := requireProjectAccess(r.Context(), app, user, projectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "get_prefill.access")
			return
		}

		f, err := composeProjectForm(r.Context(), app, p)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		var rawAnswers string
		err = app.QueryRowContext(r.Context(), `
			SELECT answers FROM record
			WHERE project_id = ?
				AND created_by_user_id = ?
				AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1`,
			projectID, user.ID,
		).Scan(&rawAnswers)
		if err != nil && err != sql.ErrNoRows {
			httpx.LogInternalError(w, "db.get_last_record", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"prefill": answers.Prefill(f, unmarshalAnswers(rawAnswers)),
		})
	}
}

func CreateRecord(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		raw := map[string]any{}
		if err := render.DecodeJSON(r.Body, &raw); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		user := middlewares.CurrentUser(r)
		p, status, err := requireProjectAccess(r.Context(), app, user, projectID, false)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "create_record.access")
			return
		}

		f, err := composeProjectForm(r.Context(), app, p)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		sub, err := answers.Resolve(f, raw, answers.AutoValues{
			ProjectName:    p.Name,
			FocalpointCode: p.FocalpointCode,
		})
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_record.resolve", "%s", err)
			return
		}
		if len(sub.MissingRequired) > 0 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_record.required",
				"missing required answers: %s", strings.Join(sub.MissingRequired, "; "))
			return
		}

		answersJSON, err := marshalJSON(sub.Answers)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_record.answers", err)
			return
		}
		questionsJSON, err := marshalJSON(sub.Snapshot)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_record.questions", err)
			return
		}

		if err := saveBespoke(r.Context(), app, p, sub.Bespoke); err != nil {
			httpx.LogInternalError(w, "db.insert_record.bespoke", err)
			return
		}

		var recordID int64
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO record (project_id, created_by_user_id, created_at, answers, questions)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			projectID, user.ID, time.Now().UTC(), answersJSON, questionsJSON,
		).Scan(&recordID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_record", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": recordID,
		})
	}
}

// GetLastRecord returns the newest record on the project. By default only
// the requesting user's own records count, mirroring its use as the prefill
// source; pass mine=false for the project-wide latest.
func GetLastRecord(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		user := middlewares.CurrentUser(r)
		_, status, err := requireProjectAccess(r.Context(), app, user, projectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "last_record.access")
			return
		}

		query := `
			SELECT id, created_at, review_status, answers, questions
			FROM record
			WHERE project_id = ? AND deleted_at IS NULL`
		args := []any{projectID}
		if r.URL.Query().Get("mine") != "false" {
			query += " AND created_by_user_id = ?"
			args = append(args, user.ID)
		}
		query += `
			ORDER BY created_at DESC, id DESC
			LIMIT 1`

		rec := model.Record{}
		var rawAnswers, rawQuestions string
		err = app.QueryRowContext(r.Context(), query, args...).
			Scan(&rec.ID, &rec.CreatedAt, &rec.ReviewStatus, &rawAnswers, &rawQuestions)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "last_record", projectID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_last_record", err)
			return
		}
		rec.ProjectID = projectID
		rec.Answers = unmarshalAnswers(rawAnswers)
		rec.Questions = unmarshalQuestions(rawQuestions)

		render.JSON(w, r, rec)
	}
}

func ListProjectRecords(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		_, status, err := requireProjectAccess(r.Context(), app, middlewares.CurrentUser(r), projectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "list_records.access")
			return
		}

		q := r.URL.Query()
		includeAnswers := q.Get("include_answers") == "true"
		var keys []string
		if raw := q.Get("keys"); raw != "" {
			keys = strings.Split(raw, ",")
		}
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_query_param.limit")
				return
			}
		}

		query := `
			SELECT id, created_at, review_status, answers, questions
			FROM record
			WHERE project_id = ? AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC`
		args := []any{projectID}
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_records", err)
			return
		}
		defer rows.Close()

		records := []map[string]any{}
		for rows.Next() {
			rec := model.Record{ProjectID: projectID}
			var rawAnswers, rawQuestions string
			err = rows.Scan(&rec.ID, &rec.CreatedAt, &rec.ReviewStatus, &rawAnswers, &rawQuestions)
			if err != nil {
				httpx.LogInternalError(w, "db.get_records.scan", err)
				return
			}

			out := map[string]any{
				"id":            rec.ID,
				"project_id":    rec.ProjectID,
				"created_at":    fmtDT(rec.CreatedAt),
				"review_status": rec.ReviewStatus,
			}
			if includeAnswers || len(keys) > 0 {
				all := unmarshalAnswers(rawAnswers)
				if len(keys) > 0 {
					picked := map[string]any{}
					for _, k := range keys {
						if v, ok := all[k]; ok {
							picked[k] = v
						}
					}
					out["answers"] = picked
				} else {
					out["answers"] = all
				}
			}
			records = append(records, out)
		}

		render.JSON(w, r, map[string]any{
			"records": records,
		})
	}
}

// trendsHistoryLimit bounds how many records feed a trend chart when the
// caller does not ask for a specific window.
const trendsHistoryLimit = 50

// GetProjectTrends charts the numeric history of the project's most recent
// records. The live form only supplies fallback metadata; each record's own
// question snapshot wins.
func GetProjectTrends(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		p, status, err := requireProjectAccess(r.Context(), app, middlewares.CurrentUser(r), projectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "trends.access")
			return
		}

		f, err := composeProjectForm(r.Context(), app, p)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		limit := trendsHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_query_param.limit")
				return
			}
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT created_at, answers, questions
			FROM record
			WHERE project_id = ? AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT ?`,
			projectID, limit,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_records", err)
			return
		}
		defer rows.Close()

		history := []trends.Record{}
		for rows.Next() {
			rec := trends.Record{}
			var rawAnswers, rawQuestions string
			err = rows.Scan(&rec.CreatedAt, &rawAnswers, &rawQuestions)
			if err != nil {
				httpx.LogInternalError(w, "db.get_records.scan", err)
				return
			}
			rec.Answers = unmarshalAnswers(rawAnswers)
			rec.Questions = unmarshalQuestions(rawQuestions)
			history = append(history, rec)
		}

		series := trends.Build(history, f.Snapshot())

		labels := make([]string, len(series.Labels))
		for i, t := range series.Labels {
			labels[i] = fmtDT(t)
		}
		render.JSON(w, r, map[string]any{
			"labels": labels,
			"series": series.Series,
			"order":  series.SortedLabels(),
		})
	}
}
