package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080"+CallbackPath)

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))
}

func TestFetchUser_FallsBackToPrimaryEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42,"login":"octo","name":"Octo Cat","email":null,"avatar_url":"https://a/42"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"email":"old@example.com","primary":false,"verified":true},
			{"email":"octo@example.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("id", "secret", "")
	p.apiBase = srv.URL

	u, err := p.fetchUser(context.Background(), srv.Client())
	require.NoError(t, err)

	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "octo@example.com", u.Email)
	assert.Equal(t, "Octo", u.FirstName())
}

func TestFetchUser_InvalidProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":0}`))
	}))
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("id", "secret", "")
	p.apiBase = srv.URL

	_, err := p.fetchUser(context.Background(), srv.Client())
	assert.Error(t, err)
}

func TestFetchUser_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("id", "secret", "")
	p.apiBase = srv.URL

	_, err := p.fetchUser(context.Background(), srv.Client())
	assert.Error(t, err)
}
