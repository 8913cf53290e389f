package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/config"
	"github.com/mfaulds/projectpulse/database"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

func newTestApp(t *testing.T) app.App {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.Open(config.Config{
		DBUrl: "file:" + name + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return app.App{DB: db}
}

func execSQL(t *testing.T, a app.App, query string, args ...any) {
	t.Helper()
	_, err := a.Exec(query, args...)
	require.NoError(t, err)
}

// seedReportingProject sets up a project with one assigned question set
// (a remembered manager question plus a numeric one) and two reporters.
func seedReportingProject(t *testing.T, a app.App) {
	t.Helper()
	execSQL(t, a, `INSERT INTO user (email, password_hash) VALUES ('alice@example.com', 'x'), ('bob@example.com', 'x'), ('carol@example.com', 'x')`)
	execSQL(t, a, `INSERT INTO project (name) VALUES ('Atlas')`)
	execSQL(t, a, `INSERT INTO question_set (name, data) VALUES ('Status', ?)`, `{
		"title": "Status",
		"sections": [{
			"title": "Main",
			"questions": [
				{"id": "mgr", "text": "Manager", "type": "short_text", "remember": true},
				{"id": "risk", "text": "Risk score", "type": "integer"}
			]
		}]
	}`)
	execSQL(t, a, `INSERT INTO project_question_set (project_id, question_set_id, position) VALUES (1, 1, 0)`)
}

func insertRecord(t *testing.T, a app.App, userID int64, at time.Time, answers string) {
	t.Helper()
	execSQL(t, a, `
		INSERT INTO record (project_id, created_by_user_id, created_at, answers, questions)
		VALUES (1, ?, ?, ?, ?)`,
		userID, at,
		answers,
		`{"mgr": {"text": "Manager", "type": "short_text"}, "risk": {"text": "Risk score", "type": "integer"}}`,
	)
}

func getAsUser(t *testing.T, handler http.HandlerFunc, target string, u middlewares.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	req = middlewares.WithUser(req, u)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetProjectPrefillScopedToUser(t *testing.T) {
	a := newTestApp(t)
	seedReportingProject(t, a)
	insertRecord(t, a, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), `{"mgr": "Alice", "risk": 1}`)
	insertRecord(t, a, 2, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), `{"mgr": "Bob", "risk": 2}`)

	handler := GetProjectPrefill(a)
	prefill := func(u middlewares.User) map[string]any {
		rec := getAsUser(t, handler, "/projects/1/prefill", u)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Prefill map[string]any `json:"prefill"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out.Prefill
	}

	// Each reporter gets their own remembered answers back, regardless of
	// who reported last on the project.
	assert.Equal(t, map[string]any{"mgr": "Alice"}, prefill(middlewares.User{ID: 1, Email: "alice@example.com"}))
	assert.Equal(t, map[string]any{"mgr": "Bob"}, prefill(middlewares.User{ID: 2, Email: "bob@example.com"}))

	// No prior records of your own, no prefill.
	assert.Equal(t, map[string]any{}, prefill(middlewares.User{ID: 3, Email: "carol@example.com"}))
}

func TestGetLastRecordScopedToUser(t *testing.T) {
	a := newTestApp(t)
	seedReportingProject(t, a)
	insertRecord(t, a, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), `{"mgr": "Alice", "risk": 1}`)
	insertRecord(t, a, 2, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), `{"mgr": "Bob", "risk": 2}`)

	handler := GetLastRecord(a)
	alice := middlewares.User{ID: 1, Email: "alice@example.com"}

	// Default: your own latest, even when someone else reported later.
	rec := getAsUser(t, handler, "/projects/1/last_record", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		ID      int64          `json:"id"`
		Answers map[string]any `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "Alice", out.Answers["mgr"])

	// mine=false opts into the project-wide latest.
	rec = getAsUser(t, handler, "/projects/1/last_record?mine=false", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.ID)
	assert.Equal(t, "Bob", out.Answers["mgr"])

	// A reporter without records of their own gets a 404 by default.
	rec = getAsUser(t, handler, "/projects/1/last_record", middlewares.User{ID: 3, Email: "carol@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProjectTrendsLimit(t *testing.T) {
	a := newTestApp(t)
	seedReportingProject(t, a)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		insertRecord(t, a, 1, base.Add(time.Duration(i)*time.Minute),
			`{"risk": `+strconv.Itoa(i)+`}`)
	}

	handler := GetProjectTrends(a)
	alice := middlewares.User{ID: 1, Email: "alice@example.com"}

	type trendsOut struct {
		Labels []string              `json:"labels"`
		Series map[string][]*float64 `json:"series"`
	}
	decode := func(rec *httptest.ResponseRecorder) trendsOut {
		var out trendsOut
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	// Without an explicit window only the most recent history is charted.
	rec := getAsUser(t, handler, "/projects/1/trends", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(rec)
	assert.Len(t, out.Labels, 50)

	// An explicit limit narrows the window further, oldest first.
	rec = getAsUser(t, handler, "/projects/1/trends?limit=2", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode(rec)
	require.Len(t, out.Labels, 2)
	series := out.Series["Risk score"]
	require.Len(t, series, 2)
	require.NotNil(t, series[0])
	require.NotNil(t, series[1])
	assert.Equal(t, float64(58), *series[0])
	assert.Equal(t, float64(59), *series[1])

	rec = getAsUser(t, handler, "/projects/1/trends?limit=0", alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
