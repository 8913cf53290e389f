package routes

import (
	"database/sql"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/keys"
	"github.com/mfaulds/projectpulse/log"
	"github.com/mfaulds/projectpulse/routes/middlewares"
)

func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		body := url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		}
		r.Body = io.NopCloser(strings.NewReader(body.Encode()))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body.Encode())))
		app.UserCredentials(w, r)
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("authorization")
		match := regexp.MustCompile(`(?i)^refresh\s+(.*)`).FindStringSubmatch(auth)
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}
		token := match[1]

		body := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {token},
		}

		req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
		if err != nil {
			httpx.LogStatus(w, http.StatusInternalServerError, log.DebugLevel, "refresh.new_request")
			return
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

		resp := httpx.NewResponseBuffer()
		app.UserCredentials(resp, req)
		resp.Flush(w)
	}
}

type registration struct {
	Key      string `json:"key"`
	Secret   string `json:"secret"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register redeems an invite. The very first registered user becomes an
// admin, so a freshly seeded instance can bootstrap itself from the invite
// printed at startup.
func Register(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in registration
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "register.decode")
			return
		}
		in.Email = strings.TrimSpace(strings.ToLower(in.Email))
		if in.Email == "" || len(in.Password) < 8 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "register.validate", "email and a password of at least 8 characters are required")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "register.tx", err)
			return
		}
		defer tx.Rollback()

		var inviteID int64
		var secretHash string
		var inviteEmail sql.NullString
		var usedAt sql.NullTime
		err = tx.QueryRow(
			"SELECT id, secret_hash, email, used_at FROM invite WHERE key = ?",
			in.Key,
		).Scan(&inviteID, &secretHash, &inviteEmail, &usedAt)
		if err == sql.ErrNoRows {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "register.invite")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "register.invite", err)
			return
		}
		if usedAt.Valid || keys.SHA256Hex(in.Secret) != secretHash {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "register.invite")
			return
		}
		if inviteEmail.Valid && inviteEmail.String != "" && inviteEmail.String != in.Email {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "register.invite_email")
			return
		}

		var taken int
		err = tx.QueryRow("SELECT count(*) FROM user WHERE email = ? AND deleted_at IS NULL", in.Email).Scan(&taken)
		if err != nil {
			httpx.LogInternalError(w, "register.email_check", err)
			return
		}
		if taken > 0 {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "register.email_taken", "email already registered")
			return
		}

		var admins int
		err = tx.QueryRow("SELECT count(*) FROM user WHERE is_admin AND deleted_at IS NULL").Scan(&admins)
		if err != nil {
			httpx.LogInternalError(w, "register.admin_count", err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			httpx.LogInternalError(w, "register.hash", err)
			return
		}

		res, err := tx.Exec(
			"INSERT INTO user (email, password_hash, is_admin) VALUES (?, ?, ?)",
			in.Email, string(hash), admins == 0,
		)
		if err != nil {
			httpx.LogInternalError(w, "register.insert", err)
			return
		}
		userID, err := res.LastInsertId()
		if err != nil {
			httpx.LogInternalError(w, "register.insert_id", err)
			return
		}

		_, err = tx.Exec(
			"UPDATE invite SET used_at = CURRENT_TIMESTAMP, used_by_user_id = ? WHERE id = ?",
			userID, inviteID,
		)
		if err != nil {
			httpx.LogInternalError(w, "register.invite_used", err)
			return
		}

		if err := tx.Commit(); err != nil {
			httpx.LogInternalError(w, "register.commit", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":       userID,
			"email":    in.Email,
			"is_admin": admins == 0,
		})
	}
}

func Me(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUser(r)

		assigned, banned, err := userAccess(r.Context(), app, user.ID)
		if err != nil {
			httpx.LogInternalError(w, "me.access", err)
			return
		}

		var hasToken bool
		err = app.QueryRowContext(r.Context(),
			"SELECT api_token_hash IS NOT NULL FROM user WHERE id = ?", user.ID,
		).Scan(&hasToken)
		if err != nil {
			httpx.LogInternalError(w, "me.token", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"id":            user.ID,
			"email":         user.Email,
			"is_admin":      user.IsAdmin,
			"assigned":      assigned,
			"banned":        banned,
			"has_api_token": hasToken,
		})
	}
}

// RegenerateAPIToken mints a new long-lived API token for the current user.
// Only the hash is stored; the plaintext is returned once.
func RegenerateAPIToken(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUser(r)

		token := keys.New(32)
		_, err := app.ExecContext(r.Context(),
			"UPDATE user SET api_token_hash = ? WHERE id = ?",
			keys.SHA256Hex(token), user.ID,
		)
		if err != nil {
			httpx.LogInternalError(w, "api_token.update", err)
			return
		}

		render.JSON(w, r, map[string]any{"api_token": token})
	}
}
