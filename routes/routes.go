package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	api.Use(middlewares.BodyLimit(app.MaxBodyBytes))

	// Unauthenticated endpoints are limited per remote address.
	rateLimit := middlewares.RateLimit(app.RateLimitRPM)
	api.With(rateLimit).Post("/login", Login(app))
	api.With(rateLimit).Post("/refresh", Refresh(app))
	api.With(rateLimit).Post("/register", Register(app))

	api.Group(func(r chi.Router) {
		// Auth first, so the rate limiter keys on the user.
		r.Use(middlewares.Auth(app.DB, app.TokenSecret), rateLimit)

		r.Get("/me", Me(app))
		r.Post("/me/api_token", RegenerateAPIToken(app))

		r.Get("/projects", ListProjects(app))
		r.Post("/projects", CreateProject(app))
		r.Get(`/projects/{id:^\d+$}/form`, GetProjectForm(app))
		r.Get(`/projects/{id:^\d+$}/prefill`, GetProjectPrefill(app))
		r.Get(`/projects/{id:^\d+$}/trends`, GetProjectTrends(app))
		r.Get(`/projects/{id:^\d+$}/records`, ListProjectRecords(app))
		r.Post(`/projects/{id:^\d+$}/records`, CreateRecord(app))
		r.Get(`/projects/{id:^\d+$}/last_record`, GetLastRecord(app))

		r.Get(`/records/{id:^\d+$}`, GetRecordById(app))
		r.Put(`/records/{id:^\d+$}`, UpdateRecord(app))
		r.With(middlewares.Admin).Post(`/records/{id:^\d+$}/review`, ReviewRecord(app))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.Admin)

			r.Post("/invites", CreateInvite(app))
			r.Get("/invites", ListInvites(app))

			r.Get("/users", ListUsers(app))
			r.Patch(`/users/{id:^\d+$}`, UpdateUser(app))
			r.Put(`/users/{id:^\d+$}/projects`, SetUserProjects(app))

			// CRUD question set
			r.Post("/question_sets", CreateQuestionSet(app))
			r.Get("/question_sets", ListQuestionSets(app))
			r.Get(`/question_sets/{id:^\d+$}`, GetQuestionSetById(app))
			r.Put(`/question_sets/{id:^\d+$}`, UpdateQuestionSet(app))
			r.Delete(`/question_sets/{id:^\d+$}`, DeleteQuestionSet(app))

			// CRUD project
			r.Post("/projects", AdminCreateProject(app))
			r.Post("/projects/import", ImportProjects(app))
			r.Get("/projects", AdminListProjects(app))
			r.Patch(`/projects/{id:^\d+$}`, UpdateProject(app))
			r.Delete(`/projects/{id:^\d+$}`, DeleteProject(app))

			r.Put(`/projects/{id:^\d+$}/question_sets`, SetProjectQuestionSets(app))
			r.Post("/projects/question_sets", BatchAssignQuestionSets(app))

			r.Put(`/projects/{id:^\d+$}/custom_questions`, SetCustomQuestions(app))
			r.Post(`/projects/{id:^\d+$}/custom_questions`, AddCustomQuestion(app))
			r.Put(`/projects/{id:^\d+$}/custom_questions/{qid}`, UpdateCustomQuestion(app))
			r.Delete(`/projects/{id:^\d+$}/custom_questions/{qid}`, DeleteCustomQuestion(app))
		})
	})

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}
