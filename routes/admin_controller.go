package routes

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/form"
	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/keys"
	"github.com/mfaulds/projectpulse/log"
	"github.com/mfaulds/projectpulse/model"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

// CreateInvite mints a registration invite, optionally bound to an email.
// The secret is returned once and only its hash is stored.
func CreateInvite(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email string `json:"email"`
		}
		// An invite without a bound email is fine, so an empty body is too.
		if err := render.DecodeJSON(r.Body, &in); err != nil && !errors.Is(err, io.EOF) {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		in.Email = strings.TrimSpace(strings.ToLower(in.Email))

		inv := model.Invite{
			Key:    keys.New(18),
			Secret: keys.New(18),
			Email:  in.Email,
		}
		user := middlewares.CurrentUser(r)

		err := app.QueryRowContext(r.Context(), `
			INSERT INTO invite (key, secret_hash, email, created_by_user_id)
			VALUES (?, ?, nullif(?, ''), ?)
			RETURNING id`,
			inv.Key, keys.SHA256Hex(inv.Secret), inv.Email, user.ID,
		).Scan(&inv.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_invite", err)
			return
		}

		inv.Link = "/register?key=" + inv.Key
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, inv)
	}
}

func ListInvites(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, key, coalesce(email, ''), used_at IS NOT NULL
			FROM invite
			ORDER BY created_at DESC, id DESC`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_invites", err)
			return
		}
		defer rows.Close()

		invites := []map[string]any{}
		for rows.Next() {
			inv := model.Invite{}
			var used bool
			if err := rows.Scan(&inv.ID, &inv.Key, &inv.Email, &used); err != nil {
				httpx.LogInternalError(w, "db.get_invites.scan", err)
				return
			}
			invites = append(invites, map[string]any{
				"id":    inv.ID,
				"key":   inv.Key,
				"email": inv.Email,
				"used":  used,
			})
		}

		render.JSON(w, r, map[string]any{
			"invites": invites,
		})
	}
}

func ListUsers(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, email, is_admin
			FROM user
			WHERE deleted_at IS NULL
			ORDER BY email`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_users", err)
			return
		}
		defer rows.Close()

		users := []model.User{}
		for rows.Next() {
			u := model.User{}
			if err := rows.Scan(&u.ID, &u.Email, &u.IsAdmin); err != nil {
				httpx.LogInternalError(w, "db.get_users.scan", err)
				return
			}
			users = append(users, u)
		}

		for i := range users {
			assigned, banned, err := userAccess(r.Context(), app, users[i].ID)
			if err != nil {
				httpx.LogInternalError(w, "db.get_users.access", err)
				return
			}
			users[i].AssignedProjectIDs = assigned
			users[i].BannedProjectIDs = banned
		}

		render.JSON(w, r, map[string]any{
			"users": users,
		})
	}
}

// UpdateUser patches a user's admin flag or soft-deletes/restores the
// account. Deleting a user also revokes their API token.
func UpdateUser(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in struct {
			IsAdmin *bool `json:"is_admin"`
			Deleted *bool `json:"deleted"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		if in.IsAdmin != nil {
			_, err = tx.ExecContext(r.Context(),
				"UPDATE user SET is_admin = ? WHERE id = ?", *in.IsAdmin, userID)
			if err != nil {
				httpx.LogInternalError(w, "db.update_user.admin", err)
				return
			}
		}
		if in.Deleted != nil {
			if *in.Deleted {
				_, err = tx.ExecContext(r.Context(), `
					UPDATE user
					SET deleted_at = CURRENT_TIMESTAMP, api_token_hash = NULL
					WHERE id = ?`,
					userID)
			} else {
				_, err = tx.ExecContext(r.Context(),
					"UPDATE user SET deleted_at = NULL WHERE id = ?", userID)
			}
			if err != nil {
				httpx.LogInternalError(w, "db.update_user.deleted", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.update_user.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SetUserProjects replaces the user's project visibility lists wholesale.
func SetUserProjects(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in struct {
			Assigned []int64 `json:"assigned"`
			Banned   []int64 `json:"banned"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(),
			"DELETE FROM user_project_access WHERE user_id = ?", userID)
		if err != nil {
			httpx.LogInternalError(w, "db.set_user_projects.delete", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO user_project_access (user_id, project_id, access_type)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.set_user_projects.prepare", err)
			return
		}
		defer stmt.Close()

		for _, pid := range in.Assigned {
			if _, err := stmt.ExecContext(r.Context(), userID, pid, "assigned"); err != nil {
				httpx.LogInternalError(w, "db.set_user_projects.insert", err)
				return
			}
		}
		for _, pid := range in.Banned {
			if _, err := stmt.ExecContext(r.Context(), userID, pid, "banned"); err != nil {
				httpx.LogInternalError(w, "db.set_user_projects.insert", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.set_user_projects.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type questionSetInput struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

func CreateQuestionSet(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in questionSetInput
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_question_set.name", "question set name is required")
			return
		}

		data, err := marshalJSON(form.CanonicalizeSet(in.Data, in.Name))
		if err != nil {
			httpx.LogInternalError(w, "create_question_set.canonicalize", err)
			return
		}

		user := middlewares.CurrentUser(r)
		var setID int64
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO question_set (name, data, created_by_user_id, created_at)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			in.Name, data, user.ID, time.Now().UTC(),
		).Scan(&setID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_question_set", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": setID,
		})
	}
}

func ListQuestionSets(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT qs.id, qs.name, qs.created_at, coalesce(u.email, '')
			FROM question_set qs
			LEFT OUTER JOIN user u ON (u.id = qs.created_by_user_id)
			WHERE qs.deleted_at IS NULL
			ORDER BY qs.name, qs.created_at DESC, qs.id DESC`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_question_sets", err)
			return
		}
		defer rows.Close()

		sets := []model.QuestionSet{}
		for rows.Next() {
			qs := model.QuestionSet{}
			if err := rows.Scan(&qs.ID, &qs.Name, &qs.CreatedAt, &qs.CreatedBy); err != nil {
				httpx.LogInternalError(w, "db.get_question_sets.scan", err)
				return
			}
			sets = append(sets, qs)
		}

		render.JSON(w, r, map[string]any{
			"question_sets": sets,
		})
	}
}

func GetQuestionSetById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		qs := model.QuestionSet{ID: setID}
		var data string
		err = app.QueryRowContext(r.Context(), `
			SELECT qs.name, qs.created_at, qs.data, coalesce(u.email, '')
			FROM question_set qs
			LEFT OUTER JOIN user u ON (u.id = qs.created_by_user_id)
			WHERE qs.id = ?`,
			setID,
		).Scan(&qs.Name, &qs.CreatedAt, &data, &qs.CreatedBy)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "get_question_set", setID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_question_set", err)
			return
		}
		qs.Data = parseSetData(data, qs.Name)

		render.JSON(w, r, qs)
	}
}

// UpdateQuestionSet never mutates a stored snapshot. It inserts a new
// version and moves every project assignment from the old id to the new one,
// so already-captured records keep pointing at the questions they were
// answered against.
func UpdateQuestionSet(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in questionSetInput
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var name string
		err = tx.QueryRowContext(r.Context(),
			"SELECT name FROM question_set WHERE id = ? AND deleted_at IS NULL", setID,
		).Scan(&name)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "update_question_set", setID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_question_set", err)
			return
		}
		if n := strings.TrimSpace(in.Name); n != "" {
			name = n
		}

		data, err := marshalJSON(form.CanonicalizeSet(in.Data, name))
		if err != nil {
			httpx.LogInternalError(w, "update_question_set.canonicalize", err)
			return
		}

		user := middlewares.CurrentUser(r)
		var newID int64
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO question_set (name, data, created_by_user_id, created_at)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			name, data, user.ID, time.Now().UTC(),
		).Scan(&newID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_question_set", err)
			return
		}

		// Upgrade assignments in place; a project already carrying the new
		// version just drops its old assignment.
		_, err = tx.ExecContext(r.Context(), `
			UPDATE OR IGNORE project_question_set
			SET question_set_id = ?
			WHERE question_set_id = ?`,
			newID, setID,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_question_set.upgrade", err)
			return
		}
		_, err = tx.ExecContext(r.Context(),
			"DELETE FROM project_question_set WHERE question_set_id = ?", setID)
		if err != nil {
			httpx.LogInternalError(w, "db.update_question_set.cleanup", err)
			return
		}

		_, err = tx.ExecContext(r.Context(),
			"UPDATE question_set SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?", setID)
		if err != nil {
			httpx.LogInternalError(w, "db.update_question_set.retire", err)
			return
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.update_question_set.commit", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"id": newID,
		})
	}
}

func DeleteQuestionSet(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(),
			"DELETE FROM project_question_set WHERE question_set_id = ?", setID)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_question_set.assignments", err)
			return
		}

		res, err := tx.ExecContext(r.Context(), `
			UPDATE question_set
			SET deleted_at = CURRENT_TIMESTAMP
			WHERE id = ? AND deleted_at IS NULL`,
			setID)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_question_set", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_question_set.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_question_set", setID)
			return
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.delete_question_set.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type projectInput struct {
	Name           string  `json:"name"`
	FocalpointCode *int64  `json:"focalpoint_code"`
	Closed         *bool   `json:"closed"`
	QuestionSetIDs []int64 `json:"question_set_ids"`
}

func AdminCreateProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in projectInput
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
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO project (name, focalpoint_code, closed) VALUES (?, ?, ?)
			RETURNING id`,
			in.Name, in.FocalpointCode, in.Closed != nil && *in.Closed,
		).Scan(&projectID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_project", err)
			return
		}

		for i, setID := range in.QuestionSetIDs {
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO project_question_set (project_id, question_set_id, position)
				VALUES (?, ?, ?)`,
				projectID, setID, i,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_project.sets", err)
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

// ImportProjects bulk-creates projects by name, skipping names that already
// exist and reviving soft-deleted ones.
func ImportProjects(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Projects []projectInput `json:"projects"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		created, restored, skipped := 0, 0, 0
		for _, p := range in.Projects {
			name := strings.TrimSpace(p.Name)
			if name == "" {
				skipped++
				continue
			}

			var projectID int64
			var deleted sql.NullTime
			err = tx.QueryRowContext(r.Context(),
				"SELECT id, deleted_at FROM project WHERE name = ?", name,
			).Scan(&projectID, &deleted)
			switch {
			case err == sql.ErrNoRows:
				_, err = tx.ExecContext(r.Context(),
					"INSERT INTO project (name, focalpoint_code) VALUES (?, ?)",
					name, p.FocalpointCode,
				)
				if err != nil {
					httpx.LogInternalError(w, "db.import_projects.insert", err)
					return
				}
				created++
			case err != nil:
				httpx.LogInternalError(w, "db.import_projects.lookup", err)
				return
			case deleted.Valid:
				_, err = tx.ExecContext(r.Context(),
					"UPDATE project SET deleted_at = NULL WHERE id = ?", projectID)
				if err != nil {
					httpx.LogInternalError(w, "db.import_projects.restore", err)
					return
				}
				restored++
			default:
				skipped++
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.import_projects.commit", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"created":  created,
			"restored": restored,
			"skipped":  skipped,
		})
	}
}

func AdminListProjects(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeDeleted := r.URL.Query().Get("include_deleted") == "true"

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, name, focalpoint_code, closed, deleted_at
			FROM project
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
			var deleted sql.NullTime
			if err := rows.Scan(&p.ID, &p.Name, &fp, &p.Closed, &deleted); err != nil {
				httpx.LogInternalError(w, "db.get_projects.scan", err)
				return
			}
			if fp.Valid {
				code := fp.Int64
				p.FocalpointCode = &code
			}
			if deleted.Valid {
				if !includeDeleted {
					continue
				}
				t := deleted.Time
				p.DeletedAt = &t
			}
			projects = append(projects, p)
		}

		render.JSON(w, r, map[string]any{
			"projects": projects,
		})
	}
}

func UpdateProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in projectInput
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		if name := strings.TrimSpace(in.Name); name != "" {
			_, err = tx.ExecContext(r.Context(),
				"UPDATE project SET name = ? WHERE id = ?", name, projectID)
			if err != nil {
				httpx.LogInternalError(w, "db.update_project.name", err)
				return
			}
		}
		if in.FocalpointCode != nil {
			_, err = tx.ExecContext(r.Context(),
				"UPDATE project SET focalpoint_code = ? WHERE id = ?", *in.FocalpointCode, projectID)
			if err != nil {
				httpx.LogInternalError(w, "db.update_project.focalpoint", err)
				return
			}
		}
		if in.Closed != nil {
			_, err = tx.ExecContext(r.Context(),
				"UPDATE project SET closed = ? WHERE id = ?", *in.Closed, projectID)
			if err != nil {
				httpx.LogInternalError(w, "db.update_project.closed", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.update_project.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE project
			SET deleted_at = CURRENT_TIMESTAMP
			WHERE id = ? AND deleted_at IS NULL`,
			projectID)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_project", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_project.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_project", projectID)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SetProjectQuestionSets replaces a project's ordered assignment wholesale;
// list order becomes form order.
func SetProjectQuestionSets(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in struct {
			QuestionSetIDs []int64 `json:"question_set_ids"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(),
			"DELETE FROM project_question_set WHERE project_id = ?", projectID)
		if err != nil {
			httpx.LogInternalError(w, "db.set_project_sets.delete", err)
			return
		}

		for i, setID := range in.QuestionSetIDs {
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO project_question_set (project_id, question_set_id, position)
				VALUES (?, ?, ?)`,
				projectID, setID, i,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.set_project_sets.insert", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.set_project_sets.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// BatchAssignQuestionSets appends one question set to many projects at once,
// after the sets each project already has. Projects that already carry the
// set are left alone.
func BatchAssignQuestionSets(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			ProjectIDs    []int64 `json:"project_ids"`
			QuestionSetID int64   `json:"question_set_id"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		assigned := 0
		for _, pid := range in.ProjectIDs {
			res, err := tx.ExecContext(r.Context(), `
				INSERT OR IGNORE INTO project_question_set (project_id, question_set_id, position)
				VALUES (?, ?, (
					SELECT coalesce(max(position) + 1, 0)
					FROM project_question_set
					WHERE project_id = ?
				))`,
				pid, in.QuestionSetID, pid,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.batch_assign.insert", err)
				return
			}
			if n, _ := res.RowsAffected(); n > 0 {
				assigned++
			}
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "db.batch_assign.commit", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"assigned": assigned,
		})
	}
}

// SetCustomQuestions replaces a project's bespoke questions. Input is
// canonicalized and sections left without questions are dropped.
func SetCustomQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var raw any
		if err := render.DecodeJSON(r.Body, &raw); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		bespoke := form.CanonicalizeBespoke(raw)
		bespoke.Sections = dropEmptySections(bespoke.Sections)

		data, err := marshalJSON(bespoke)
		if err != nil {
			httpx.LogInternalError(w, "set_custom_questions.marshal", err)
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE project
			SET custom_questions = ?
			WHERE id = ? AND deleted_at IS NULL`,
			data, projectID)
		if err != nil {
			httpx.LogInternalError(w, "db.set_custom_questions", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.set_custom_questions.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "set_custom_questions", projectID)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func loadBespokeProject(r *http.Request, app app.App) (model.Project, error) {
	projectID, err := urlID(r)
	if err != nil {
		return model.Project{}, err
	}
	p, err := loadProject(r.Context(), app, projectID)
	if err != nil {
		return p, err
	}
	if p.DeletedAt != nil {
		return p, sql.ErrNoRows
	}
	return p, nil
}

func storeBespoke(r *http.Request, app app.App, projectID int64, bespoke form.Canonical) error {
	data, err := marshalJSON(bespoke)
	if err != nil {
		return err
	}
	_, err = app.ExecContext(r.Context(),
		"UPDATE project SET custom_questions = ? WHERE id = ?", data, projectID)
	return err
}

// AddCustomQuestion appends one bespoke question to a project section.
func AddCustomQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Section  string        `json:"section"`
			Question form.Question `json:"question"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		in.Question.Text = strings.TrimSpace(in.Question.Text)
		if in.Question.Text == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "add_custom_question.text", "question text is required")
			return
		}
		if in.Question.ID == "" {
			in.Question.ID = uuid.NewString()
		}
		if in.Question.Type == "" {
			in.Question.Type = form.ShortText
		}
		if in.Question.Type == form.DropdownMapped && in.Question.ValueMap == nil {
			in.Question.ValueMap = map[string]int{}
		}

		p, err := loadBespokeProject(r, app)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "add_custom_question", p.ID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}

		bespoke := addBespokeQuestion(p.Bespoke, in.Section, in.Question)
		if err := storeBespoke(r, app, p.ID, bespoke); err != nil {
			httpx.LogInternalError(w, "db.add_custom_question", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": in.Question.ID,
		})
	}
}

// UpdateCustomQuestion redefines a bespoke question and can move it between
// sections or positions. The question keeps its id throughout.
func UpdateCustomQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := chi.URLParam(r, "qid")

		var in struct {
			Question *form.Question `json:"question"`
			Section  *string        `json:"section"`
			Position *int           `json:"position"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		p, err := loadBespokeProject(r, app)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "update_custom_question", p.ID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}

		bespoke, found := updateBespokeQuestion(p.Bespoke, questionID, in.Question, in.Section, in.Position)
		if !found {
			httpx.LogNotFound(w, "update_custom_question", questionID)
			return
		}
		if err := storeBespoke(r, app, p.ID, bespoke); err != nil {
			httpx.LogInternalError(w, "db.update_custom_question", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteCustomQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := chi.URLParam(r, "qid")

		p, err := loadBespokeProject(r, app)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "delete_custom_question", p.ID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}

		bespoke, found := removeBespokeQuestion(p.Bespoke, questionID)
		if !found {
			httpx.LogNotFound(w, "delete_custom_question", questionID)
			return
		}
		if err := storeBespoke(r, app, p.ID, bespoke); err != nil {
			httpx.LogInternalError(w, "db.delete_custom_question", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
