package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/service"
)

// maxPenBody bounds a create/update body: three code fields plus metadata.
const maxPenBody = 4 << 20

// PenHandler exposes PenService as a JSON API.
//
// Every response carries the toasts the service raised. A fail-soft call
// that produced nothing answers 422 (mutations) or 404 (lookups) with
// "data": null, and the notifications say why.
type PenHandler struct {
	pens   *service.PenService
	users  UserLookup
	logger *slog.Logger
}

// NewPenHandler creates a PenHandler.
func NewPenHandler(pens *service.PenService, users UserLookup, logger *slog.Logger) *PenHandler {
	return &PenHandler{pens: pens, users: users, logger: logger}
}

// HandleList returns the newest pens.
//
// HTTP: GET /api/pens
func (h *PenHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, r, http.StatusOK, h.pens.GetAll(r.Context()))
}

// HandleTrending returns the most popular pens.
//
// HTTP: GET /api/pens/trending
func (h *PenHandler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, r, http.StatusOK, h.pens.GetTrending(r.Context()))
}

// HandleSearch searches pens.
//
// HTTP: GET /api/pens/search?q=...&sort=recent|popular|views|likes&filter=all|title|author|tags
func (h *PenHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pens := h.pens.Search(r.Context(), q.Get("q"), service.SearchOptions{
		SortBy:   service.ParseSortBy(q.Get("sort")),
		FilterBy: service.ParseFilterBy(q.Get("filter")),
	})
	writeEnvelope(w, r, http.StatusOK, pens)
}

// HandleGetByID returns one pen.
//
// HTTP: GET /api/pens/{id}
func (h *PenHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pen := h.pens.GetByID(r.Context(), id)
	if pen == nil {
		writeEnvelope(w, r, http.StatusNotFound, nil)
		return
	}
	writeEnvelope(w, r, http.StatusOK, pen)
}

// HandleCreate stores a new pen authored by the signed-in user.
//
// HTTP: POST /api/pens (auth)
// REQUEST BODY: {"title": "...", "html": "...", "css": "...", "javascript": "...", "tags": ["..."]}
func (h *PenHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	pen := h.pens.Create(r.Context(), in, authorOf(user))
	if pen == nil {
		writeEnvelope(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	writeEnvelope(w, r, http.StatusCreated, pen)
}

// HandleUpdate edits a pen the signed-in user owns.
//
// HTTP: PUT /api/pens/{id} (auth)
func (h *PenHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	pen := h.pens.Update(r.Context(), id, in, user.ID)
	if pen == nil {
		writeEnvelope(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	writeEnvelope(w, r, http.StatusOK, pen)
}

// HandleDelete removes a pen the signed-in user owns.
//
// HTTP: DELETE /api/pens/{id} (auth)
func (h *PenHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if !h.pens.Delete(r.Context(), id, user.ID) {
		writeEnvelope(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	writeEnvelope(w, r, http.StatusOK, map[string]int64{"Id": id})
}

// HandleLike adds a like.
//
// HTTP: POST /api/pens/{id}/like
func (h *PenHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.counter(w, r, h.pens.Like)
}

// HandleView records a view.
//
// HTTP: POST /api/pens/{id}/view
func (h *PenHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	h.counter(w, r, h.pens.View)
}

func (h *PenHandler) counter(w http.ResponseWriter, r *http.Request, bump func(ctx context.Context, id int64) *model.Pen) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pen := bump(r.Context(), id)
	if pen == nil {
		writeEnvelope(w, r, http.StatusUnprocessableEntity, nil)
		return
	}
	writeEnvelope(w, r, http.StatusOK, pen)
}

func (h *PenHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, ok := parseID(raw)
	if !ok {
		writeError(w, apperror.ValidationFailed("id", "invalid pen id "+strconv.Quote(raw)))
	}
	return id, ok
}

func (h *PenHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in to continue"))
		return nil, false
	}
	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "session user not found", slog.String("userID", id), slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("sign in to continue"))
		return nil, false
	}
	return user, true
}

func (h *PenHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.PenInput, bool) {
	var in model.PenInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPenBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		h.logger.WarnContext(r.Context(), "invalid pen JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return in, false
	}
	return in, true
}
