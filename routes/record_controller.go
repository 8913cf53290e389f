package routes

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/mfaulds/projectpulse/answers"
	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/log"
	"github.com/mfaulds/projectpulse/model"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

func loadRecord(r *http.Request, app app.App) (model.Record, error) {
	recordID, err := urlID(r)
	if err != nil {
		return model.Record{}, err
	}

	rec := model.Record{ID: recordID}
	var rawAnswers, rawQuestions string
	var createdBy sql.NullInt64
	var updatedAt sql.NullTime
	var comment sql.NullString
	err = app.QueryRowContext(r.Context(), `
		SELECT project_id, created_by_user_id, created_at, updated_at,
		       review_status, review_comment, answers, questions
		FROM record
		WHERE id = ? AND deleted_at IS NULL`,
		recordID,
	).Scan(
		&rec.ProjectID, &createdBy, &rec.CreatedAt, &updatedAt,
		&rec.ReviewStatus, &comment, &rawAnswers, &rawQuestions,
	)
	if err != nil {
		return rec, err
	}
	rec.CreatedBy = createdBy.Int64
	if updatedAt.Valid {
		t := updatedAt.Time
		rec.UpdatedAt = &t
	}
	if comment.Valid {
		rec.ReviewComment = &comment.String
	}
	rec.Answers = unmarshalAnswers(rawAnswers)
	rec.Questions = unmarshalQuestions(rawQuestions)
	return rec, nil
}

// GetRecordById returns a record with its answers in display order. Order
// follows the current form where the question still exists; answers to
// questions since removed trail behind it, sorted by label.
func GetRecordById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := loadRecord(r, app)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "get_record", rec.ID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_record", err)
			return
		}

		p, status, err := requireProjectAccess(r.Context(), app, middlewares.CurrentUser(r), rec.ProjectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "get_record.access")
			return
		}

		f, err := composeProjectForm(r.Context(), app, p)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"record":  rec,
			"ordered": answers.Order(rec.Answers, rec.Questions, f),
		})
	}
}

// UpdateRecord applies an edit payload against the record's own question
// snapshot. Unresolvable keys are dropped, not errors; only a payload whose
// shape cannot be interpreted at all is rejected. Any edit sends the record
// back to pending review.
func UpdateRecord(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.read_body")
			return
		}

		rec, err := loadRecord(r, app)
		if err == sql.ErrNoRows {
			httpx.LogNotFound(w, "update_record", rec.ID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_record", err)
			return
		}

		user := middlewares.CurrentUser(r)
		_, status, err := requireProjectAccess(r.Context(), app, user, rec.ProjectID, true)
		if err != nil {
			httpx.LogInternalError(w, "db.get_project", err)
			return
		}
		if status != 0 {
			httpx.LogStatus(w, status, log.DebugLevel, "update_record.access")
			return
		}
		if !user.IsAdmin && rec.CreatedBy != user.ID {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "update_record.not_creator")
			return
		}

		resolved, err := answers.ReconcileEdit(payload, rec.Questions)
		if err != nil {
			if errors.Is(err, answers.ErrStructuralInput) {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "update_record.reconcile", "%s", err)
				return
			}
			httpx.LogInternalError(w, "update_record.reconcile", err)
			return
		}

		for id, v := range resolved {
			rec.Answers[id] = v
		}

		answersJSON, err := marshalJSON(rec.Answers)
		if err != nil {
			httpx.LogInternalError(w, "db.update_record.answers", err)
			return
		}

		_, err = app.ExecContext(r.Context(), `
			UPDATE record
			SET answers = ?,
			    updated_by_user_id = ?,
			    updated_at = ?,
			    review_status = ?,
			    reviewed_by_user_id = NULL,
			    reviewed_at = NULL,
			    review_comment = NULL
			WHERE id = ?`,
			answersJSON, user.ID, time.Now().UTC(), model.ReviewPending, rec.ID,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_record", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"id":      rec.ID,
			"applied": len(resolved),
		})
	}
}

func ReviewRecord(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in struct {
			Status  string  `json:"status"`
			Comment *string `json:"comment"`
		}
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		switch in.Status {
		case model.ReviewApproved, model.ReviewRejected, model.ReviewPending:
		default:
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "review_record.status",
				"review status must be one of pending, approved, rejected")
			return
		}

		user := middlewares.CurrentUser(r)
		res, err := app.ExecContext(r.Context(), `
			UPDATE record
			SET review_status = ?,
			    review_comment = ?,
			    reviewed_by_user_id = ?,
			    reviewed_at = ?
			WHERE id = ? AND deleted_at IS NULL`,
			in.Status, in.Comment, user.ID, time.Now().UTC(), recordID,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.review_record", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.review_record.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "review_record", recordID)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
