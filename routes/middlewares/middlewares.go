package middlewares

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/keys"
)

type ctxKey int

const userKey ctxKey = iota

// User is the authenticated identity middlewares attach to the request.
type User struct {
	ID      int64
	Email   string
	IsAdmin bool
}

// CurrentUser returns the identity attached by Auth. Handlers behind Auth
// can rely on it being present.
func CurrentUser(r *http.Request) User {
	u, _ := r.Context().Value(userKey).(User)
	return u
}

// WithUser attaches an identity to the request the way Auth does.
func WithUser(r *http.Request, u User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userKey, u))
}

// Auth authenticates a request from either a short-lived oauth bearer token
// or a long-lived API token (stored hashed on the user row). The oauth
// middleware is probed against a response buffer first, so its rejection is
// only committed when the API token fallback also fails.
func Auth(db *sql.DB, tokenSecret string) func(http.Handler) http.Handler {
	authorize := oauth.Authorize(tokenSecret, nil)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user User
			authenticated := false

			probe := authorize(http.HandlerFunc(func(_ http.ResponseWriter, pr *http.Request) {
				claims, _ := pr.Context().Value(oauth.ClaimsContext).(map[string]string)
				if claims == nil {
					return
				}
				id, err := strconv.ParseInt(claims["user_id"], 10, 64)
				if err != nil {
					return
				}
				user = User{ID: id, IsAdmin: hasRole(claims["roles"], "admin")}
				if cred, ok := pr.Context().Value(oauth.CredentialContext).(string); ok {
					user.Email = cred
				}
				authenticated = true
			}))

			buf := httpx.NewResponseBuffer()
			probe.ServeHTTP(buf, r)
			if authenticated {
				next.ServeHTTP(w, WithUser(r, user))
				return
			}

			if token := bearerToken(r); token != "" {
				err := db.
					QueryRow(
						"SELECT id, email, is_admin FROM user WHERE api_token_hash = ? AND deleted_at IS NULL",
						keys.SHA256Hex(token),
					).
					Scan(&user.ID, &user.Email, &user.IsAdmin)
				if err == nil {
					next.ServeHTTP(w, WithUser(r, user))
					return
				}
			}

			buf.Flush(w)
		})
	}
}

// Admin only passes requests whose authenticated user is an admin. Must sit
// behind Auth.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !CurrentUser(r).IsAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type rateCheck struct {
	key    string
	result chan<- bool
}

// RateLimit caps requests per minute per authenticated user (or per remote
// address before authentication). Counters live in a map owned by a single
// goroutine; requests are serialized through a channel instead of a lock.
func RateLimit(rpm int) func(http.Handler) http.Handler {
	checks := make(chan rateCheck)
	go func() {
		counts := make(map[string]int)
		windows := make(map[string]int64)
		swept := int64(0)

		for check := range checks {
			minute := nowMinute()

			// Once per window, drop keys that went quiet so the maps only
			// ever hold the current minute's callers.
			if swept != minute {
				swept = minute
				for key, w := range windows {
					if w != minute {
						delete(windows, key)
						delete(counts, key)
					}
				}
			}

			if windows[check.key] != minute {
				windows[check.key] = minute
				counts[check.key] = 0
			}
			counts[check.key]++
			check.result <- counts[check.key] <= rpm
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateKey(r)

			allowed := make(chan bool)
			checks <- rateCheck{key, allowed}
			if !<-allowed {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit rejects request bodies above max bytes, a backstop for the same
// limit usually enforced at the reverse proxy.
func BodyLimit(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if u := CurrentUser(r); u.ID != 0 {
		return "user:" + strconv.FormatInt(u.ID, 10)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return "ip:" + host
}

var nowMinute = func() int64 {
	return time.Now().Unix() / 60
}

func hasRole(rolesClaim, role string) bool {
	for _, r := range strings.Split(rolesClaim, ",") {
		if r == role {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
