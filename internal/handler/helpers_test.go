package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codecanvas/internal/auth"
	"github.com/sakif/codecanvas/internal/handler"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
	sqliteRepo "github.com/sakif/codecanvas/internal/repository/sqlite"
	"github.com/sakif/codecanvas/internal/routes"
	"github.com/sakif/codecanvas/internal/service"
	"github.com/sakif/codecanvas/internal/web"
)

const testAppID = "codecanvas"

// testEnv wires the real services over an in-memory SQLite database, which
// serves both as the user repository and as the pen records backend.
type testEnv struct {
	db     *sqliteRepo.DB
	tokens *auth.TokenService
	auth   *service.AuthService
	pens   *service.PenService
	render *handler.Renderer
	access *routes.AccessConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	access, err := routes.LoadAccessConfig()
	require.NoError(t, err)

	logger := discardLogger()
	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logger)
	pens := service.NewPenService(db, notify.NewContextNotifier(logger), logger)

	return &testEnv{
		db:     db,
		tokens: tokens,
		auth:   authSvc,
		pens:   pens,
		render: handler.NewRenderer(web.NewViews(), authSvc, testAppID, false, logger),
		access: access,
	}
}

// route returns the page route for path from the route table.
func (e *testEnv) route(t *testing.T, path string) routes.Route {
	t.Helper()
	for _, r := range routes.Table(e.access) {
		if r.Path == path {
			return r
		}
	}
	t.Fatalf("no route %q", path)
	return routes.Route{}
}

// router returns a chi router carrying the same request middleware as the
// server. mount registers the handlers under test.
func (e *testEnv) router(mount func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.OptionalAuth(e.tokens))
	r.Use(notify.Middleware)
	mount(r)
	return r
}

// signup creates an email/password account and returns its session cookie.
func (e *testEnv) signup(t *testing.T, first string) (*model.User, *http.Cookie) {
	t.Helper()
	res, err := e.auth.Signup(context.Background(), service.SignupInput{
		Email:     strings.ToLower(first) + "@example.com",
		Password:  "correct-horse",
		FirstName: first,
	})
	require.NoError(t, err)
	return res.User, &http.Cookie{Name: auth.TokenCookie, Value: res.Token}
}

// createPen stores a pen owned by u directly through the service.
func (e *testEnv) createPen(t *testing.T, u *model.User, title string) *model.Pen {
	t.Helper()
	pen := e.pens.Create(context.Background(), model.PenInput{
		Title: title,
		HTML:  "<p>" + title + "</p>",
	}, model.Author{Name: u.DisplayName(), ID: u.ID})
	require.NotNil(t, pen)
	return pen
}

func serve(h http.Handler, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func formRequest(method, target, form string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// envelope is the decoded {"data","notifications"} response.
type envelope[T any] struct {
	Data          T              `json:"data"`
	Notifications []notify.Toast `json:"notifications"`
}

func decodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// mount registers the page handler for the route table entry at path.
func (e *testEnv) mount(t *testing.T, r chi.Router, path string, newHandler func(routes.Route) http.Handler) {
	t.Helper()
	route := e.route(t, path)
	r.Handle(route.Pattern(), newHandler(route))
}
