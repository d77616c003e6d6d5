package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cmpc-libros/apiserver/internal/auth"
	"github.com/cmpc-libros/apiserver/internal/middleware"
	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/cmpc-libros/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// LoginRequest is the credentials payload for login and register.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse wraps a user record in responses.
type UserResponse struct {
	User types.User `json:"user"`
}

// AuthHandler provides account and session endpoints. Successful logins
// set the session token as an http-only cookie.
type AuthHandler struct {
	userService  *services.UserService
	secret       []byte
	tokenTTL     time.Duration
	cookieDomain string
	cookieSecure bool
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, secret []byte, tokenTTL time.Duration, cookieDomain string, cookieSecure bool) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{
		userService:  userService,
		secret:       secret,
		tokenTTL:     tokenTTL,
		cookieDomain: cookieDomain,
		cookieSecure: cookieSecure,
	}
}

// UserRouter registers account routes on the given router. Login and
// register are the only public routes; the rate limiter guards them.
func UserRouter(
	r chi.Router,
	handler *AuthHandler,
	auditor *middleware.Auditor,
	requireAuth func(http.Handler) http.Handler,
	rateLimit func(http.Handler) http.Handler,
) {
	r.With(rateLimit, auditor.Action("users.login")).Post("/login", handler.Login)
	r.With(rateLimit, auditor.Action("users.register")).Post("/register", handler.Register)
	r.With(requireAuth, auditor.Action("users.me")).Get("/me", handler.Me)
	r.With(requireAuth, auditor.Action("users.logout")).Post("/logout", handler.Logout)
}

// Login verifies credentials, sets the session cookie, and returns the
// authenticated user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := auth.IssueToken(user.ID, user.Username, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	http.SetCookie(w, h.sessionCookie(token, int(h.tokenTTL.Seconds())))
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return LoginRequest{}, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return LoginRequest{}, false
	}
	return req, true
}
