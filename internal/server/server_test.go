package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codecanvas/internal/config"
	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/notify"
	"github.com/sakif/codecanvas/internal/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBPath: ":memory:",
		AppID:  "codecanvas",
		Auth: config.AuthConfig{
			JWTSecret: "server-test-secret-0123456789",
			TokenTTL:  time.Hour,
		},
		Backend: config.BackendConfig{Kind: config.BackendSQLite},
		Runner:  config.RunnerConfig{Rate: 100, Burst: 100},
		Thumbs:  config.ThumbnailConfig{Dir: t.TempDir()},
	}
}

// browser is an HTTP client with a cookie jar that does not follow
// redirects, so tests can assert on them.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	return newBrowserWith(t, testConfig(t))
}

func newBrowserWith(t *testing.T, cfg *config.Config) *browser {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(cfg, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &browser{
		t:    t,
		base: ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) postForm(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) sendJSON(method, path, body string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(method, b.base+path, strings.NewReader(body))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *browser) signup(first string) {
	b.t.Helper()
	resp, _ := b.postForm("/signup", url.Values{
		"emailAddress": {strings.ToLower(first) + "@example.com"},
		"password":     {"correct-horse"},
		"firstName":    {first},
	})
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(b.t, "/", resp.Header.Get("Location"))
}

type penEnvelope struct {
	Data          *model.Pen     `json:"data"`
	Notifications []notify.Toast `json:"notifications"`
}

func decodePen(t *testing.T, body string) penEnvelope {
	t.Helper()
	var env penEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return env
}

func TestServer_HomeIsPublic(t *testing.T) {
	b := newBrowser(t)

	resp, body := b.get("/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.NotContains(t, body, "Welcome,")
}

func TestServer_AuthenticatedPageRedirectsToLogin(t *testing.T) {
	b := newBrowser(t)

	resp, _ := b.get("/editor")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect=%2Feditor", resp.Header.Get("Location"))
}

func TestServer_UnknownPathRendersNotFound(t *testing.T) {
	b := newBrowser(t)

	resp, body := b.get("/no/such/page")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "This page does not exist.")
}

func TestServer_StaticAssets(t *testing.T) {
	b := newBrowser(t)

	resp, _ := b.get("/static/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.get("/static/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_APIMutationsRequireAuth(t *testing.T) {
	b := newBrowser(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/pens"},
		{http.MethodPut, "/api/pens/1"},
		{http.MethodDelete, "/api/pens/1"},
		{http.MethodGet, "/api/me"},
		{http.MethodPost, "/api/run"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, body := b.sendJSON(tt.method, tt.path, `{}`)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, body, "unauthorized")
		})
	}
}

func TestServer_PublicAPI(t *testing.T) {
	b := newBrowser(t)

	resp, body := b.get("/api/pens")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[],"notifications":[]}`, body)

	resp, _ = b.get("/api/pens/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = b.get("/api/pens/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SignupCreateAndView(t *testing.T) {
	b := newBrowser(t)
	b.signup("Ada")

	// The welcome toast survives the redirect and the header greets the user.
	resp, body := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Ada")
	assert.Contains(t, body, "Welcome to CodeCanvas!")

	resp, body = b.sendJSON(http.MethodPost, "/api/pens",
		`{"title":"Bouncing ball","html":"<div class=\"ball\"></div>","css":".ball{}","javascript":"","tags":["anim"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	created := decodePen(t, body)
	require.NotNil(t, created.Data)
	assert.Positive(t, created.Data.ID)
	assert.Equal(t, "Ada", created.Data.Author.Name)
	require.Len(t, created.Notifications, 1)
	assert.Equal(t, "Pen created successfully!", created.Notifications[0].Message)

	id := strconv.FormatInt(created.Data.ID, 10)

	// Opening the page counts a view.
	resp, body = b.get("/pen/" + id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Bouncing ball")

	resp, body = b.get("/api/pens/" + id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodePen(t, body).Data.Views)

	resp, body = b.get("/api/pens/search?q=bouncing")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Bouncing ball")
}

func TestServer_GuestPagesRedirectSignedInUsers(t *testing.T) {
	b := newBrowser(t)
	b.signup("Grace")

	resp, _ := b.get("/login")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestServer_LogoutClearsSession(t *testing.T) {
	b := newBrowser(t)
	b.signup("Linus")

	resp, _ := b.postForm("/auth/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := b.get("/")
	assert.NotContains(t, body, "Welcome,")
}

func TestServer_RunWithoutExecutor(t *testing.T) {
	b := newBrowser(t)
	b.signup("Ken")

	resp, body := b.sendJSON(http.MethodPost, "/api/run", `{"code":"console.log(1)"}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "unavailable")
}

func TestServer_RunLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runner = config.RunnerConfig{Rate: 0.001, Burst: 1}
	b := newBrowserWith(t, cfg)
	b.signup("Ken")

	run := func(forwardedFor string) int {
		req, err := http.NewRequest(http.MethodPost, b.base+"/api/run", strings.NewReader(`{"code":"1"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp, _ := b.do(req)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusServiceUnavailable, run("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, run("203.0.113.2"))
}

func TestServer_PageMethodNotAllowed(t *testing.T) {
	b := newBrowser(t)

	resp, _ := b.postForm("/trending", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
