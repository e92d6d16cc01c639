package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"recargas/internal/core"
	applog "recargas/internal/log"
)

// SessionCookie carries the signed token of a browser session.
const SessionCookie = "session"

type contextKey string

const userKey contextKey = "user"

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFrom(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey).(core.User)
	return u, ok
}

// bearerToken prefers the Authorization header over the session cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the token, if any, to a user stored in the request
// context. Invalid tokens are treated as anonymous.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || s.accounts == nil {
			next.ServeHTTP(w, r)
			return
		}
		u, err := s.accounts.UserFromToken(r.Context(), token)
		if err != nil {
			s.logger.DebugContext(r.Context(), "Ignoring invalid session",
				applog.FieldComponent, applog.ComponentAccount,
				applog.FieldError, err)
			next.ServeHTTP(w, r)
			return
		}
		ctx := withUser(r.Context(), u)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, applog.FromContext(ctx).With(applog.FieldUserID, u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireLogin sends anonymous visitors to the login page.
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFrom(r.Context()); !ok {
			http.Redirect(w, r, "/login/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (s *Server) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return s.requireLogin(func(w http.ResponseWriter, r *http.Request) {
		if u, _ := userFrom(r.Context()); !u.IsStaff {
			http.Error(w, "Acesso negado.", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// requireAPIUser answers 401 JSON instead of redirecting.
func (s *Server) requireAPIUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFrom(r.Context()); !ok {
			jsonError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(w, r)
	}
}

func (s *Server) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.accounts.TokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

const (
	corsMethods = "GET, POST, OPTIONS, PUT, DELETE"
	corsHeaders = "Content-Type, Authorization, X-Requested-With, Accept, Origin"
)

// cors echoes the caller's Origin with credentials allowed and answers
// preflight requests itself.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}
