package handler_test

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codecanvas/internal/handler"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
)

func penAPI(e *testEnv) http.Handler {
	h := handler.NewPenHandler(e.pens, e.auth, discardLogger())
	return e.router(func(r chi.Router) {
		r.Get("/api/pens", h.HandleList)
		r.Get("/api/pens/trending", h.HandleTrending)
		r.Get("/api/pens/search", h.HandleSearch)
		r.Get("/api/pens/{id}", h.HandleGetByID)
		r.Post("/api/pens", h.HandleCreate)
		r.Put("/api/pens/{id}", h.HandleUpdate)
		r.Delete("/api/pens/{id}", h.HandleDelete)
		r.Post("/api/pens/{id}/like", h.HandleLike)
		r.Post("/api/pens/{id}/view", h.HandleView)
	})
}

func penPath(p *model.Pen, suffix string) string {
	return "/api/pens/" + strconv.FormatInt(p.ID, 10) + suffix
}

func TestPenHandler_Create(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	user, session := e.signup(t, "Ada")

	t.Run("stores the pen with the caller as author", func(t *testing.T) {
		rr := serve(api, jsonRequest(http.MethodPost, "/api/pens",
			`{"title":"  Spinner ","html":"<div></div>","css":"div{}","javascript":"","tags":[" css ","","anim"]}`), session)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		env := decodeEnvelope[*model.Pen](t, rr)
		require.NotNil(t, env.Data)
		assert.Equal(t, "Spinner", env.Data.Title)
		assert.Equal(t, []string{"css", "anim"}, env.Data.Tags)
		assert.Equal(t, user.ID, env.Data.Author.ID)
		assert.Equal(t, []notify.Toast{{Level: notify.LevelSuccess, Message: "Pen created successfully!"}}, env.Notifications)
	})

	t.Run("blank title becomes the default", func(t *testing.T) {
		rr := serve(api, jsonRequest(http.MethodPost, "/api/pens", `{"title":"   "}`), session)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "Untitled Pen", decodeEnvelope[*model.Pen](t, rr).Data.Title)
	})

	t.Run("invalid input answers 422 with the reason", func(t *testing.T) {
		body := `{"title":"` + strings.Repeat("x", 201) + `"}`
		rr := serve(api, jsonRequest(http.MethodPost, "/api/pens", body), session)

		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		env := decodeEnvelope[*model.Pen](t, rr)
		assert.Nil(t, env.Data)
		require.Len(t, env.Notifications, 1)
		assert.Equal(t, notify.LevelError, env.Notifications[0].Level)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rr := serve(api, jsonRequest(http.MethodPost, "/api/pens", `{"title":"x","likes":99}`), session)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("anonymous callers are rejected", func(t *testing.T) {
		rr := serve(api, jsonRequest(http.MethodPost, "/api/pens", `{"title":"x"}`))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestPenHandler_GetByID(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	user, _ := e.signup(t, "Ada")
	pen := e.createPen(t, user, "Grid")

	rr := serve(api, jsonRequest(http.MethodGet, penPath(pen, ""), ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Grid", decodeEnvelope[*model.Pen](t, rr).Data.Title)

	rr = serve(api, jsonRequest(http.MethodGet, "/api/pens/4242", ""))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"data":null,"notifications":[]}`, rr.Body.String())

	rr = serve(api, jsonRequest(http.MethodGet, "/api/pens/-1", ""))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPenHandler_UpdateChecksOwnership(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	owner, ownerSession := e.signup(t, "Ada")
	_, otherSession := e.signup(t, "Eve")
	pen := e.createPen(t, owner, "Mine")

	rr := serve(api, jsonRequest(http.MethodPut, penPath(pen, ""), `{"title":"Stolen"}`), otherSession)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	env := decodeEnvelope[*model.Pen](t, rr)
	require.Len(t, env.Notifications, 1)
	assert.Equal(t, "You can only edit your own pens", env.Notifications[0].Message)

	rr = serve(api, jsonRequest(http.MethodPut, penPath(pen, ""), `{"title":"Renamed","html":"<b>hi</b>"}`), ownerSession)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeEnvelope[*model.Pen](t, rr).Data
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "<b>hi</b>", updated.HTML)
	assert.Equal(t, owner.ID, updated.Author.ID)
}

func TestPenHandler_Delete(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	owner, ownerSession := e.signup(t, "Ada")
	_, otherSession := e.signup(t, "Eve")
	pen := e.createPen(t, owner, "Doomed")

	rr := serve(api, jsonRequest(http.MethodDelete, penPath(pen, ""), ""), otherSession)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(api, jsonRequest(http.MethodDelete, penPath(pen, ""), ""), ownerSession)
	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope[map[string]int64](t, rr)
	assert.Equal(t, pen.ID, env.Data["Id"])
	assert.Equal(t, "Pen deleted successfully!", env.Notifications[0].Message)

	rr = serve(api, jsonRequest(http.MethodGet, penPath(pen, ""), ""))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(api, jsonRequest(http.MethodDelete, penPath(pen, ""), ""), ownerSession)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Pen not found", decodeEnvelope[*model.Pen](t, rr).Notifications[0].Message)
}

func TestPenHandler_Counters(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	user, _ := e.signup(t, "Ada")
	pen := e.createPen(t, user, "Counted")

	for i := 1; i <= 2; i++ {
		rr := serve(api, jsonRequest(http.MethodPost, penPath(pen, "/like"), ""))
		require.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope[*model.Pen](t, rr)
		assert.EqualValues(t, i, env.Data.Likes)
		assert.Equal(t, []notify.Toast{{Level: notify.LevelSuccess, Message: "Pen updated successfully!"}}, env.Notifications)
	}

	rr := serve(api, jsonRequest(http.MethodPost, penPath(pen, "/view"), ""))
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeEnvelope[*model.Pen](t, rr).Data
	assert.EqualValues(t, 1, got.Views)
	assert.EqualValues(t, 2, got.Likes)

	rr = serve(api, jsonRequest(http.MethodPost, "/api/pens/4242/like", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	missing := decodeEnvelope[*model.Pen](t, rr).Notifications
	require.Len(t, missing, 1)
	assert.Equal(t, notify.LevelError, missing[0].Level)
}

func TestPenHandler_ListsAndSearch(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	user, _ := e.signup(t, "Ada")
	quiet := e.createPen(t, user, "Quiet")
	loud := e.createPen(t, user, "Loud")

	for range 3 {
		serve(api, jsonRequest(http.MethodPost, penPath(loud, "/like"), ""))
	}
	serve(api, jsonRequest(http.MethodPost, penPath(quiet, "/view"), ""))

	rr := serve(api, jsonRequest(http.MethodGet, "/api/pens", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeEnvelope[[]*model.Pen](t, rr).Data, 2)

	rr = serve(api, jsonRequest(http.MethodGet, "/api/pens/trending", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	trending := decodeEnvelope[[]*model.Pen](t, rr).Data
	require.Len(t, trending, 2)
	assert.Equal(t, loud.ID, trending[0].ID)

	rr = serve(api, jsonRequest(http.MethodGet, "/api/pens/search?q=LOU&filter=title", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	found := decodeEnvelope[[]*model.Pen](t, rr).Data
	require.Len(t, found, 1)
	assert.Equal(t, "Loud", found[0].Title)

	rr = serve(api, jsonRequest(http.MethodGet, "/api/pens/search?q=", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":[],"notifications":[]}`, rr.Body.String())
}

func TestPenHandler_SearchFoldsUnicodeAndSortsNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	api := penAPI(e)
	user, _ := e.signup(t, "Ada")
	e.createPen(t, user, "École Démo older")
	e.createPen(t, user, "École Démo newer")

	for _, term := range []string{"École", "ÉCOLE", "école"} {
		rr := serve(api, jsonRequest(http.MethodGet, "/api/pens/search?filter=title&q="+url.QueryEscape(term), ""))
		require.Equal(t, http.StatusOK, rr.Code)
		found := decodeEnvelope[[]*model.Pen](t, rr).Data
		require.Len(t, found, 2, "term %q", term)
		assert.Equal(t, "École Démo newer", found[0].Title)
		assert.Equal(t, "École Démo older", found[1].Title)
	}
}
