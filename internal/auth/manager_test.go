package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
	tu "github.com/desertthunder/plexist/internal/testing"
)

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]models.Credential
	puts  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]models.Credential{}}
}

func (f *fakeStore) Get(service string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[service]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (f *fakeStore) Put(cred models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[cred.Service] = cred
	f.puts++
	return nil
}

// tokenServer serves the OAuth2 token endpoint, handing out sequentially
// numbered access tokens.
func tokenServer(t *testing.T) (*httptest.Server, *oauth2.Config) {
	t.Helper()

	issued := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issued++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","refresh_token":"refresh-%d","expires_in":3600}`, issued, issued)
	}))
	t.Cleanup(srv.Close)

	config := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
	}
	return srv, config
}

func TestToken(t *testing.T) {
	t.Run("static token returned as-is", func(t *testing.T) {
		m := NewManager(newFakeStore(), nil)
		m.RegisterStatic("plex", "plex-token")

		got, err := m.Token(context.Background(), "plex")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got != "plex-token" {
			t.Errorf("token = %q, want plex-token", got)
		}
	})

	t.Run("unknown service rejected", func(t *testing.T) {
		m := NewManager(newFakeStore(), nil)
		_, err := m.Token(context.Background(), "tidal")
		if !errors.Is(err, shared.ErrUnknownService) {
			t.Errorf("expected ErrUnknownService, got %v", err)
		}
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		_, config := tokenServer(t)
		m := NewManager(newFakeStore(), nil)
		m.RegisterOAuth("spotify", config)

		_, err := m.Token(context.Background(), "spotify")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("persisted credential loaded on first use", func(t *testing.T) {
		_, config := tokenServer(t)
		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:     "spotify",
			AccessToken: "stored-token",
			Expiry:      time.Now().Add(time.Hour),
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		got, err := m.Token(context.Background(), "spotify")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got != "stored-token" {
			t.Errorf("token = %q, want stored-token", got)
		}
	})

	t.Run("near-expiry token refreshed proactively", func(t *testing.T) {
		_, config := tokenServer(t)
		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "stale-token",
			RefreshToken: "refresh-0",
			Expiry:       time.Now().Add(time.Minute),
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		got, err := m.Token(context.Background(), "spotify")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got != "access-1" {
			t.Errorf("token = %q, want refreshed access-1", got)
		}
		if store.puts != 1 {
			t.Errorf("expected refreshed credential persisted once, got %d puts", store.puts)
		}
	})

	t.Run("fresh token not refreshed", func(t *testing.T) {
		_, config := tokenServer(t)
		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "fresh-token",
			RefreshToken: "refresh-0",
			Expiry:       time.Now().Add(2 * time.Hour),
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		got, err := m.Token(context.Background(), "spotify")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got != "fresh-token" {
			t.Errorf("token = %q, want the unrefreshed fresh-token", got)
		}
		if store.puts != 0 {
			t.Errorf("expected no persistence, got %d puts", store.puts)
		}
	})
}

func TestOnAuthFailure(t *testing.T) {
	t.Run("forces refresh despite valid expiry", func(t *testing.T) {
		_, config := tokenServer(t)
		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "rejected-token",
			RefreshToken: "refresh-0",
			Expiry:       time.Now().Add(2 * time.Hour),
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		if err := m.OnAuthFailure(context.Background(), "spotify"); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}

		got, err := m.Token(context.Background(), "spotify")
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if got != "access-1" {
			t.Errorf("token = %q, want refreshed access-1", got)
		}
	})

	t.Run("static token cannot be refreshed", func(t *testing.T) {
		m := NewManager(newFakeStore(), nil)
		m.RegisterStatic("plex", "plex-token")

		err := m.OnAuthFailure(context.Background(), "plex")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("no refresh token is fatal", func(t *testing.T) {
		_, config := tokenServer(t)
		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:     "spotify",
			AccessToken: "tok",
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		err := m.OnAuthFailure(context.Background(), "spotify")
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("token endpoint failure surfaces ErrRefreshFailed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		}))
		t.Cleanup(srv.Close)
		config := &oauth2.Config{ClientID: "c", ClientSecret: "s", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "tok",
			RefreshToken: "revoked",
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		err := m.OnAuthFailure(context.Background(), "spotify")
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("transport failure during refresh surfaces ErrRefreshFailed", func(t *testing.T) {
		config := &oauth2.Config{ClientID: "c", ClientSecret: "s", Endpoint: oauth2.Endpoint{TokenURL: "http://127.0.0.1:0/token"}}

		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "tok",
			RefreshToken: "refresh",
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

		err := m.OnAuthFailure(ctx, "spotify")
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("refresh response without refresh token keeps the old one", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`)
		}))
		t.Cleanup(srv.Close)
		config := &oauth2.Config{ClientID: "c", ClientSecret: "s", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

		store := newFakeStore()
		store.creds["spotify"] = models.Credential{
			Service:      "spotify",
			AccessToken:  "tok",
			RefreshToken: "keep-me",
		}

		m := NewManager(store, nil)
		m.RegisterOAuth("spotify", config)

		if err := m.OnAuthFailure(context.Background(), "spotify"); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if got := store.creds["spotify"].RefreshToken; got != "keep-me" {
			t.Errorf("RefreshToken = %q, want keep-me", got)
		}
	})
}

func TestSave(t *testing.T) {
	_, config := tokenServer(t)
	store := newFakeStore()
	m := NewManager(store, nil)
	m.RegisterOAuth("spotify", config)

	cred := models.Credential{
		Service:      "spotify",
		AccessToken:  "login-token",
		RefreshToken: "login-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := m.Save(cred); err != nil {
		t.Fatalf("failed to save credential: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("expected one persisted write, got %d", store.puts)
	}

	got, err := m.Token(context.Background(), "spotify")
	if err != nil {
		t.Fatalf("failed to get token: %v", err)
	}
	if got != "login-token" {
		t.Errorf("token = %q, want login-token", got)
	}
}

func TestMarginFor(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tc := []struct {
		name string
		cred models.Credential
		want time.Duration
	}{
		{"hour-long token", models.Credential{Expiry: now.Add(time.Hour)}, 15 * time.Minute},
		{"zero expiry", models.Credential{}, defaultMargin},
		{"already expired", models.Credential{Expiry: now.Add(-time.Hour)}, defaultMargin},
		{"very short token clamps to a minute", models.Credential{Expiry: now.Add(2 * time.Minute)}, time.Minute},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := marginFor(c.cred, now); got != c.want {
				t.Errorf("marginFor = %v, want %v", got, c.want)
			}
		})
	}
}
