package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/web"
)

// UserLookup resolves the signed-in user. *service.AuthService satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Renderer fills in the layout data every page needs (user, toasts, header
// search) and renders views.
type Renderer struct {
	views  *web.Views
	users  UserLookup
	appID  string
	github bool
	logger *slog.Logger
}

// NewRenderer creates a Renderer. github reports whether GitHub sign-in is
// configured, so the auth pages can offer it.
func NewRenderer(views *web.Views, users UserLookup, appID string, github bool, logger *slog.Logger) *Renderer {
	return &Renderer{
		views:  views,
		users:  users,
		appID:  appID,
		github: github,
		logger: logger,
	}
}

// AppID is the application id expected in password links.
func (rd *Renderer) AppID() string {
	return rd.appID
}

// User returns the signed-in user, or nil. A token for a user that no
// longer exists counts as signed out.
func (rd *Renderer) User(r *http.Request) *model.User {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil
	}
	user, err := rd.users.GetUserByID(r.Context(), id)
	if err != nil {
		rd.logger.WarnContext(r.Context(), "session user not found", slog.String("userID", id), slog.String("error", err.Error()))
		return nil
	}
	return user
}

// Render writes view for route with status. user may be nil.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, route routes.Route, user *model.User, data any) {
	page := &web.Page{
		Title:  route.Title(),
		User:   user,
		Query:  r.URL.Query().Get("q"),
		GitHub: rd.github,
		AppID:  rd.appID,
		Data:   data,
	}
	if c := notify.FromContext(r.Context()); c != nil {
		page.Toasts = c.Drain()
	}

	if err := rd.views.Render(w, status, route.View, route.Layout, page); err != nil {
		rd.logger.ErrorContext(r.Context(), "failed to render page",
			slog.String("view", route.View),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// redirect keeps pending toasts for the next page and redirects.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	notify.SaveFlash(w, r)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// notFoundRoute is used when a handler decides a page does not exist.
var notFoundRoute = routes.Route{
	View:   routes.ViewNotFound,
	Layout: routes.LayoutBare,
	Meta:   map[string]string{"title": "Page not found"},
}

// errorRoute renders unexpected failures.
var errorRoute = routes.Route{
	View:   routes.ViewError,
	Layout: routes.LayoutBare,
	Meta:   map[string]string{"title": "Something went wrong"},
}

// toast queues a notification for the page the request ends on.
func toast(r *http.Request, level notify.Level, msg string) {
	if c := notify.FromContext(r.Context()); c != nil {
		c.Add(notify.Toast{Level: level, Message: msg})
	}
}
