package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the two API calls Exchange makes.
func fakeGitHub(t *testing.T, user map[string]any, emails []map[string]any) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.apiBase = srv.URL
	return p
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")
	u, err := url.Parse(p.AuthURL("state-xyz"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
}

func TestGitHubProvider_Exchange_PublicEmail(t *testing.T) {
	p := fakeGitHub(t, map[string]any{"id": 7, "login": "octo", "name": "", "email": "octo@example.com"}, nil)

	u, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "octo@example.com", u.Email)
	assert.Equal(t, "octo", u.DisplayName())
}

func TestGitHubProvider_Exchange_HiddenEmail(t *testing.T) {
	p := fakeGitHub(t,
		map[string]any{"id": 7, "login": "octo", "name": "Mona"},
		[]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "mona@example.com", "primary": true, "verified": true},
		})

	u, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "mona@example.com", u.Email)
	assert.Equal(t, "Mona", u.DisplayName())
}

func TestGitHubProvider_Exchange_NoUsableEmail(t *testing.T) {
	p := fakeGitHub(t,
		map[string]any{"id": 7, "login": "octo"},
		[]map[string]any{{"email": "x@example.com", "primary": true, "verified": false}})

	_, err := p.Exchange(context.Background(), "the-code")
	assert.ErrorContains(t, err, "no verified primary email")
}

func TestGitHubProvider_Exchange_InvalidUser(t *testing.T) {
	p := fakeGitHub(t, map[string]any{"id": 0}, nil)
	_, err := p.Exchange(context.Background(), "the-code")
	assert.Error(t, err)
}
