// Package handler contains HTTP request handlers for CodeCanvas.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path params, query, form or JSON body)
// 2. Call the service layer
// 3. Write the HTTP response (an HTML page, a redirect or JSON)
//
// Handlers hold no business rules. Page handlers take the route they are
// mounted for, so the view, layout and title come from the route table.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/service"
	"github.com/sakif/codecanvas/internal/web"
)

// PageHandler serves the main-layout pages: home, trending, search, editor
// and pen detail.
type PageHandler struct {
	pens   *service.PenService
	render *Renderer
	runner bool
	logger *slog.Logger
}

// NewPageHandler creates a PageHandler. runner reports whether the
// JavaScript sandbox is available to the editor.
func NewPageHandler(pens *service.PenService, render *Renderer, runner bool, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		pens:   pens,
		render: render,
		runner: runner,
		logger: logger,
	}
}

// Home shows the newest pens with a trending strip. Both lists are fetched
// concurrently.
func (h *PageHandler) Home(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data web.HomeData

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			data.Pens = h.pens.GetAll(ctx)
			return nil
		})
		g.Go(func() error {
			data.Trending = h.pens.GetTrending(ctx)
			return nil
		})
		_ = g.Wait() // PenService never fails; errors surface as toasts

		h.render.Render(w, r, http.StatusOK, route, h.render.User(r), data)
	})
}

// Trending lists the most popular pens.
func (h *PageHandler) Trending(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := web.ListData{Pens: h.pens.GetTrending(r.Context())}
		h.render.Render(w, r, http.StatusOK, route, h.render.User(r), data)
	})
}

// Search runs the query in ?q= with the ?sort= and ?filter= options.
func (h *PageHandler) Search(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := strings.TrimSpace(q.Get("q"))
		opts := service.SearchOptions{
			SortBy:   service.ParseSortBy(q.Get("sort")),
			FilterBy: service.ParseFilterBy(q.Get("filter")),
		}

		data := web.SearchData{
			Query:   query,
			Sorts:   sortOptions(opts.SortBy),
			Filters: filterOptions(opts.FilterBy),
			Pens:    h.pens.Search(r.Context(), query, opts),
		}
		h.render.Render(w, r, http.StatusOK, route, h.render.User(r), data)
	})
}

// Editor shows the editor (GET) and saves the pen (POST). On the "editor"
// route it creates a pen; on "editor/:id" it edits one the user owns.
func (h *PageHandler) Editor(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.render.User(r)
		if user == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		var existing *model.Pen
		if raw := chi.URLParam(r, "id"); raw != "" {
			id, ok := parseID(raw)
			if !ok {
				h.render.Render(w, r, http.StatusNotFound, notFoundRoute, user, web.MessageData{Message: "Pen not found"})
				return
			}
			existing = h.pens.GetByID(r.Context(), id)
			if existing == nil {
				h.render.Render(w, r, http.StatusNotFound, notFoundRoute, user, web.MessageData{Message: "Pen not found"})
				return
			}
			if existing.Author.ID != user.ID {
				h.render.Render(w, r, http.StatusForbidden, errorRoute, user, web.MessageData{Message: "You can only edit your own pens"})
				return
			}
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			data := h.editorData(r, existing)
			if existing != nil {
				data.Input = inputFromPen(existing)
				data.Tags = strings.Join(existing.Tags, ", ")
			}
			h.render.Render(w, r, http.StatusOK, route, user, data)

		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				h.render.Render(w, r, http.StatusBadRequest, errorRoute, user, web.MessageData{Message: "Invalid form"})
				return
			}
			in := inputFromForm(r)

			var saved *model.Pen
			if existing == nil {
				saved = h.pens.Create(r.Context(), in, authorOf(user))
			} else {
				saved = h.pens.Update(r.Context(), existing.ID, in, user.ID)
			}
			if saved == nil {
				// The service has already raised the toast; keep the user's work.
				data := h.editorData(r, existing)
				data.Input = in
				data.Tags = r.PostForm.Get("tags")
				h.render.Render(w, r, http.StatusUnprocessableEntity, route, user, data)
				return
			}
			redirect(w, r, "/pen/"+strconv.FormatInt(saved.ID, 10))

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

func (h *PageHandler) editorData(r *http.Request, existing *model.Pen) web.EditorData {
	action := "/editor"
	if existing != nil {
		action = "/editor/" + strconv.FormatInt(existing.ID, 10)
	}
	return web.EditorData{Pen: existing, Action: action, Runner: h.runner}
}

// Pen shows one pen and counts the visit (GET). POST handles the like and
// delete buttons.
func (h *PageHandler) Pen(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.render.User(r)
		id, ok := parseID(chi.URLParam(r, "id"))
		if !ok {
			h.render.Render(w, r, http.StatusNotFound, notFoundRoute, user, web.MessageData{Message: "Pen not found"})
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			pen := h.pens.View(r.Context(), id)
			if pen == nil {
				// Counting the view can fail without the pen being gone.
				pen = h.pens.GetByID(r.Context(), id)
			}
			h.showPen(w, r, route, user, id, pen)

		case http.MethodPost:
			switch r.PostFormValue("action") {
			case "like":
				pen := h.pens.Like(r.Context(), id)
				if pen == nil {
					pen = h.pens.GetByID(r.Context(), id)
				}
				h.showPen(w, r, route, user, id, pen)

			case "delete":
				if user == nil {
					http.Redirect(w, r, "/login?redirect="+r.URL.EscapedPath(), http.StatusSeeOther)
					return
				}
				if h.pens.Delete(r.Context(), id, user.ID) {
					redirect(w, r, "/")
					return
				}
				h.showPen(w, r, route, user, id, h.pens.GetByID(r.Context(), id))

			default:
				h.render.Render(w, r, http.StatusBadRequest, errorRoute, user, web.MessageData{Message: "Unknown action"})
			}

		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	})
}

func (h *PageHandler) showPen(w http.ResponseWriter, r *http.Request, route routes.Route, user *model.User, id int64, pen *model.Pen) {
	if pen == nil {
		h.logger.InfoContext(r.Context(), "pen page for missing pen", slog.Int64("id", id))
		h.render.Render(w, r, http.StatusNotFound, notFoundRoute, user, web.MessageData{Message: "Pen not found"})
		return
	}
	route.Meta = map[string]string{"title": pen.Title}
	h.render.Render(w, r, http.StatusOK, route, user, web.PenData{
		Pen:      pen,
		Owner:    user != nil && user.ID == pen.Author.ID,
		Document: pen.Document(),
	})
}

// NotFound renders the catch-all page.
func (h *PageHandler) NotFound(route routes.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.render.Render(w, r, http.StatusNotFound, route, h.render.User(r), nil)
	})
}

func sortOptions(selected service.SortBy) []web.Option {
	opts := []web.Option{
		{Value: string(service.SortRecent), Label: "Most recent"},
		{Value: string(service.SortPopular), Label: "Most popular"},
		{Value: string(service.SortViews), Label: "Most viewed"},
		{Value: string(service.SortLikes), Label: "Most liked"},
	}
	for i := range opts {
		opts[i].Selected = opts[i].Value == string(selected)
	}
	return opts
}

func filterOptions(selected service.FilterBy) []web.Option {
	opts := []web.Option{
		{Value: string(service.FilterAll), Label: "Everything"},
		{Value: string(service.FilterTitle), Label: "Title"},
		{Value: string(service.FilterAuthor), Label: "Author"},
		{Value: string(service.FilterTags), Label: "Tags"},
	}
	for i := range opts {
		opts[i].Selected = opts[i].Value == string(selected)
	}
	return opts
}

func inputFromForm(r *http.Request) model.PenInput {
	return model.PenInput{
		Title:      r.PostForm.Get("title"),
		HTML:       r.PostForm.Get("html"),
		CSS:        r.PostForm.Get("css"),
		JavaScript: r.PostForm.Get("javascript"),
		Tags:       strings.Split(r.PostForm.Get("tags"), ","),
	}
}

func inputFromPen(p *model.Pen) model.PenInput {
	return model.PenInput{
		Title:      p.Title,
		HTML:       p.HTML,
		CSS:        p.CSS,
		JavaScript: p.JavaScript,
		Tags:       p.Tags,
	}
}

func authorOf(u *model.User) model.Author {
	return model.Author{
		Name:   u.DisplayName(),
		Avatar: u.AvatarURL,
		ID:     u.ID,
	}
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

