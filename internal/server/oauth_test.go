package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func flowConfig(t *testing.T) *oauth2.Config {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"exchanged","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:0/callback",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL},
	}
}

func TestCallbackHandler(t *testing.T) {
	t.Run("valid callback exchanges code", func(t *testing.T) {
		h := NewCallbackHandler(flowConfig(t), "state-1")

		req := httptest.NewRequest(http.MethodGet,
			"/callback?state=state-1&code=auth-code", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		result := <-h.Result()
		if err := result.Error(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Token.AccessToken != "exchanged" {
			t.Errorf("AccessToken = %q, want exchanged", result.Token.AccessToken)
		}
	})

	t.Run("state mismatch rejected", func(t *testing.T) {
		h := NewCallbackHandler(flowConfig(t), "state-1")

		req := httptest.NewRequest(http.MethodGet,
			"/callback?state=forged&code=auth-code", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		result := <-h.Result()
		if result.Error() == nil {
			t.Error("expected state validation error")
		}
	})

	t.Run("provider error propagated", func(t *testing.T) {
		h := NewCallbackHandler(flowConfig(t), "state-1")

		q := url.Values{}
		q.Set("state", "state-1")
		q.Set("error", "access_denied")
		q.Set("error_description", "user declined")
		req := httptest.NewRequest(http.MethodGet, "/callback?"+q.Encode(), nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		result := <-h.Result()
		if result.Error() == nil {
			t.Fatal("expected authorization error")
		}
	})

	t.Run("second callback rejected", func(t *testing.T) {
		h := NewCallbackHandler(flowConfig(t), "state-1")

		first := httptest.NewRequest(http.MethodGet, "/callback?state=state-1&code=auth-code", nil)
		h.ServeHTTP(httptest.NewRecorder(), first)

		second := httptest.NewRequest(http.MethodGet, "/callback?state=state-1&code=other", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, second)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 for replayed callback", rec.Code)
		}
	})
}

func TestFlowAuthURL(t *testing.T) {
	f := NewFlow(flowConfig(t), nil)
	authURL, err := url.Parse(f.AuthURL())
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	if authURL.Query().Get("state") == "" {
		t.Error("auth URL missing state token")
	}
	if authURL.Query().Get("client_id") != "client" {
		t.Errorf("client_id = %q", authURL.Query().Get("client_id"))
	}
}
