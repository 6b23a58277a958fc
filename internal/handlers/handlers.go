package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"expensetrail/internal/auth"
	"expensetrail/internal/models"
	"expensetrail/internal/session"
	"expensetrail/internal/storage"
	"expensetrail/internal/validation"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth         *auth.Service
	sessions     *session.Manager
	db           *storage.DB
	templateDir  string
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(authService *auth.Service, sessions *session.Manager, db *storage.DB, templateDir string, secureCookie bool) *Handlers {
	return &Handlers{
		auth:         authService,
		sessions:     sessions,
		db:           db,
		templateDir:  templateDir,
		secureCookie: secureCookie,
	}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// RequireAuth gates browser-facing routes: unauthenticated requests are
// redirected to the login page.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return h.requireAuth(next, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

// RequireAuthAPI gates API routes: unauthenticated requests get a 401.
func (h *Handlers) RequireAuthAPI(next http.Handler) http.Handler {
	return h.requireAuth(next, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func (h *Handlers) requireAuth(next http.Handler, deny http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			deny(w, r)
			return
		}

		res, err := h.sessions.Resolve(cookie.Value)
		if err != nil {
			log.Printf("Session resolve error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if res == nil {
			// Unknown or expired session, clear the cookie.
			h.clearSessionCookie(w)
			deny(w, r)
			return
		}

		if res.Renewed {
			h.setSessionCookie(w, cookie.Value)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, &res.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) render(w http.ResponseWriter, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}

// ErrorResponse is the JSON body for plain error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationResponse is the JSON body for rejected input, listing every
// failed field.
type ValidationResponse struct {
	Errors validation.Errors `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeValidationErrors(w http.ResponseWriter, errs validation.Errors) {
	writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
}

// isJSON reports whether the request body is JSON. The bundled pages submit
// JSON via fetch while plain HTML forms post urlencoded; handlers accept both.
func isJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
