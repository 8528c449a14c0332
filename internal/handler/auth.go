package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/service"
	"github.com/sakif/codecanvas/internal/web"
)

const stateCookie = "oauth_state"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	TTL    time.Duration
	Secure bool // HTTPS only; enable in production
}

// AuthHandler manages sign-in, sign-up, GitHub OAuth and password flows.
//
// HANDLER RESPONSIBILITIES:
//   - Login, Signup          → email/password forms (guest pages)
//   - HandleGitHubLogin      → redirect the browser to GitHub's authorization page
//   - Callback               → receive the code, sign the user in
//   - PromptPassword         → let a GitHub-only account add a password
//   - ResetPassword          → request a reset link, then set a new password
//   - HandleLogout           → clear the session cookie
//   - HandleMe               → return the signed-in user's profile
//   - HandlePasswordReset    → JSON endpoint to request a reset link
//
// DEPENDENCY CHAIN:
//   - auth   *service.AuthService   → account rules, tokens
//   - github *auth.GitHubProvider   → OAuth code exchange (nil when not configured)
//   - render *Renderer              → pages
type AuthHandler struct {
	auth    *service.AuthService
	github  *auth.GitHubProvider
	render  *Renderer
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	render *Renderer,
	cookies CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    authService,
		github:  github,
		render:  render,
		cookies: cookies,
		logger:  logger,
	}
}

// Login shows the login form (GET) and signs the user in (POST).
func (h *AuthHandler) Login(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h.render.Render(w, r, http.StatusOK, route, nil, web.AuthFormData{
				Redirect: safeRedirect(r.URL.Query().Get("redirect")),
			})

		case http.MethodPost:
			email := strings.TrimSpace(r.PostFormValue("emailAddress"))
			target := safeRedirect(r.PostFormValue("redirect"))

			res, err := h.auth.Login(r.Context(), email, r.PostFormValue("password"))
			if err != nil {
				h.formError(w, r, route, err, web.AuthFormData{Email: email, Redirect: target})
				return
			}
			h.setSession(w, res.Token)
			http.Redirect(w, r, target, http.StatusSeeOther)

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

// Signup shows the signup form (GET) and creates the account (POST).
func (h *AuthHandler) Signup(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h.render.Render(w, r, http.StatusOK, route, nil, web.AuthFormData{
				Redirect: safeRedirect(r.URL.Query().Get("redirect")),
			})

		case http.MethodPost:
			in := service.SignupInput{
				Email:     r.PostFormValue("emailAddress"),
				Password:  r.PostFormValue("password"),
				FirstName: r.PostFormValue("firstName"),
			}
			target := safeRedirect(r.PostFormValue("redirect"))

			res, err := h.auth.Signup(r.Context(), in)
			if err != nil {
				h.formError(w, r, route, err, web.AuthFormData{Email: in.Email, FirstName: in.FirstName, Redirect: target})
				return
			}
			h.setSession(w, res.Token)
			toast(r, notify.LevelSuccess, "Welcome to CodeCanvas!")
			redirect(w, r, target)

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

func (h *AuthHandler) formError(w http.ResponseWriter, r *http.Request, route routes.Route, err error, data web.AuthFormData) {
	status, _ := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "auth form failed", slog.String("view", route.View), slog.String("error", err.Error()))
	}
	data.Error = userMessage(err)
	h.render.Render(w, r, status, route, nil, data)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie and sent to GitHub. The
// callback only proceeds when GitHub echoes the same value back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		toast(r, notify.LevelError, "GitHub sign-in is not available")
		redirect(w, r, "/login")
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the GitHub OAuth flow.
//
// HTTP: GET /callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Upsert the account and issue a session cookie
//  4. Send GitHub-only accounts to the prompt-password page, others home
func (h *AuthHandler) Callback(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail := func(status int, msg string) {
			h.render.Render(w, r, status, route, nil, web.MessageData{Message: msg})
		}

		if h.github == nil {
			fail(http.StatusNotFound, "GitHub sign-in is not available.")
			return
		}

		q := r.URL.Query()
		cookie, err := r.Cookie(stateCookie)
		if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
			h.logger.WarnContext(r.Context(), "auth callback: state mismatch")
			fail(http.StatusBadRequest, "This sign-in link is invalid. Please try again.")
			return
		}

		// The state cookie is single-use.
		http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

		if errParam := q.Get("error"); errParam != "" {
			h.logger.InfoContext(r.Context(), "auth callback: user denied authorization", slog.String("error", errParam))
			fail(http.StatusOK, "GitHub sign-in was cancelled.")
			return
		}

		code := q.Get("code")
		if code == "" {
			fail(http.StatusBadRequest, "GitHub did not send an authorization code.")
			return
		}

		ghUser, err := h.github.Exchange(r.Context(), code)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "auth callback: GitHub exchange failed", slog.String("error", err.Error()))
			fail(http.StatusBadGateway, "GitHub sign-in failed. Please try again.")
			return
		}

		res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "auth callback: sign-in failed", slog.String("error", err.Error()))
			fail(http.StatusInternalServerError, "GitHub sign-in failed. Please try again.")
			return
		}
		h.setSession(w, res.Token)

		if !res.User.HasPassword() && res.User.Email != "" {
			http.Redirect(w, r, h.promptPasswordPath(res.User), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

func (h *AuthHandler) promptPasswordPath(u *model.User) string {
	return "/prompt-password/" + url.PathEscape(h.render.AppID()) + "/" + url.PathEscape(u.Email) + "/github"
}

// PromptPassword lets a signed-in GitHub user add a password.
//
// HTTP: GET|POST /prompt-password/{appId}/{emailAddress}/{provider}
func (h *AuthHandler) PromptPassword(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.render.User(r)
		if user == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if chi.URLParam(r, "appId") != h.render.AppID() {
			h.render.Render(w, r, http.StatusNotFound, notFoundRoute, user, nil)
			return
		}

		data := web.PasswordData{
			Action:   r.URL.EscapedPath(),
			Email:    chi.URLParam(r, "emailAddress"),
			Provider: chi.URLParam(r, "provider"),
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h.render.Render(w, r, http.StatusOK, route, user, data)

		case http.MethodPost:
			if err := h.auth.SetPassword(r.Context(), user.ID, r.PostFormValue("password")); err != nil {
				status, _ := errorStatus(err)
				data.Error = userMessage(err)
				h.render.Render(w, r, status, route, user, data)
				return
			}
			toast(r, notify.LevelSuccess, "Password saved")
			redirect(w, r, "/")

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

// ResetPassword serves both halves of the reset flow. With fields=request it
// asks for an email and issues a link; with fields=<token> it sets the new
// password and signs the user in.
//
// HTTP: GET|POST /reset-password/{appId}/{fields}
func (h *AuthHandler) ResetPassword(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "appId") != h.render.AppID() {
			h.render.Render(w, r, http.StatusNotFound, notFoundRoute, nil, nil)
			return
		}

		fields := chi.URLParam(r, "fields")
		data := web.PasswordData{Action: r.URL.EscapedPath()}
		if fields != "request" {
			data.Token = fields
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h.render.Render(w, r, http.StatusOK, route, nil, data)

		case http.MethodPost:
			if data.Token == "" {
				data.Email = strings.TrimSpace(r.PostFormValue("emailAddress"))
				h.issueResetLink(r, data.Email)
				data.Sent = true
				h.render.Render(w, r, http.StatusOK, route, nil, data)
				return
			}

			res, err := h.auth.ResetPassword(r.Context(), data.Token, r.PostFormValue("password"))
			if err != nil {
				status, _ := errorStatus(err)
				data.Error = userMessage(err)
				h.render.Render(w, r, status, route, nil, data)
				return
			}
			h.setSession(w, res.Token)
			toast(r, notify.LevelSuccess, "Your password has been reset")
			redirect(w, r, "/")

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

// HandlePasswordReset issues a reset link for an email address. The answer
// is always 202 so callers cannot probe which emails are registered.
//
// HTTP: POST /api/auth/password-reset
// REQUEST BODY: {"emailAddress": "..."}
func (h *AuthHandler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"emailAddress"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	h.issueResetLink(r, strings.TrimSpace(req.Email))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

// issueResetLink creates a reset link for email. There is no mailer: the
// link is written to the log for the operator to deliver.
func (h *AuthHandler) issueResetLink(r *http.Request, email string) {
	if email == "" {
		return
	}
	token, err := h.auth.RequestPasswordReset(r.Context(), email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "password reset failed", slog.String("error", err.Error()))
		return
	}
	if token == "" {
		return
	}
	link := "/reset-password/" + url.PathEscape(h.render.AppID()) + "/" + url.PathEscape(token)
	h.logger.InfoContext(r.Context(), "password reset link issued", slog.String("link", link))
}

// ErrorPage renders the generic error page.
func (h *AuthHandler) ErrorPage(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data any
		if msg := r.URL.Query().Get("message"); msg != "" {
			data = web.MessageData{Message: msg}
		}
		h.render.Render(w, r, http.StatusOK, route, h.render.User(r), data)
	})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by a prefetch or a
// cross-site image tag.
//
// Sessions are stateless JWTs, so "logout" means deleting the cookie. The
// token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me (auth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in to continue"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "HandleMe: user not found", slog.String("userID", userID))
		if errors.Is(err, apperror.ErrNotFound) {
			writeError(w, apperror.Unauthorized("sign in to continue"))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// setSession stores the JWT in an HttpOnly cookie.
// HttpOnly keeps it away from page scripts; SameSite=Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirect only allows local paths, so a crafted ?redirect= cannot send
// users to another site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
