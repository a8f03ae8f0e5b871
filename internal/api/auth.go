package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/session"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "a_session"

type principalKey struct{}

// principalFrom returns the caller resolved by authenticate, or nil.
func principalFrom(ctx context.Context) *session.Principal {
	p, _ := ctx.Value(principalKey{}).(*session.Principal)
	return p
}

// httpTokens keeps the session token in a cookie. A bearer token in the
// Authorization header takes precedence when present.
type httpTokens struct {
	w      http.ResponseWriter
	token  string
	secure bool
}

func newHTTPTokens(w http.ResponseWriter, r *http.Request, secure bool) *httpTokens {
	t := &httpTokens{w: w, secure: secure}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		t.token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	} else if c, err := r.Cookie(SessionCookie); err == nil {
		t.token = c.Value
	}
	return t
}

func (t *httpTokens) Token() (string, bool) { return t.token, t.token != "" }

func (t *httpTokens) SetToken(token string) {
	t.token = token
	http.SetCookie(t.w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (t *httpTokens) ClearToken() {
	t.token = ""
	http.SetCookie(t.w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Service) resolver(w http.ResponseWriter, r *http.Request) *session.Resolver {
	return s.sessions.NewResolver(newHTTPTokens(w, r, s.secureCookies))
}

// authenticate resolves the caller once per request. Unresolvable callers
// proceed anonymously; handlers that need a principal use requireRole.
func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens := newHTTPTokens(w, r, s.secureCookies)
		if _, ok := tokens.Token(); !ok {
			next.ServeHTTP(w, r)
			return
		}
		p, err := s.sessions.NewResolver(tokens).Start(r.Context())
		if err != nil {
			// transient: serve the request anonymously
			slog.Warn("session resolution failed", "path", r.URL.Path, "err", err)
		}
		if p != nil {
			r = r.WithContext(context.WithValue(r.Context(), principalKey{}, p))
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole rejects anonymous callers with 401 and callers whose role
// fails allowed with 403. A nil allowed admits every authenticated caller.
func requireRole(allowed func(model.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r.Context())
			if p == nil {
				writeError(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if allowed != nil && !allowed(p.Role) {
				writeError(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Request types ---

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // buyer, trader or farmer; empty → buyer
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.resolver(w, r).Register(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Login handles POST /api/v1/auth/login
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.resolver(w, r).Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Logout handles POST /api/v1/auth/logout
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.resolver(w, r).Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p == nil {
		writeError(w, "not signed in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
