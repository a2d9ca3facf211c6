package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/plexist/internal/shared"
)

func musicBrainzFixture(t *testing.T, mux *http.ServeMux) *MusicBrainzClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &MusicBrainzClient{httpClient: srv.Client(), baseURL: srv.URL}
}

func TestMusicBrainzLookupISRC(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/isrc/USUM71703861", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("inc"); got != "releases+media" {
			t.Errorf("inc = %q, want releases+media", got)
		}
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Error("missing User-Agent header")
		}
		fmt.Fprint(w, `{"recordings": [
			{"id": "MBID://AAAA-1111", "releases": [
				{"id": "cccc-3333", "media": [
					{"tracks": [{"id": "bbbb-2222"}, {"id": "bbbb-2222"}]}
				]}
			]},
			{"id": "aaaa-1111"}
		]}`)
	})
	c := musicBrainzFixture(t, mux)

	mbids, err := c.LookupISRC(context.Background(), " usum71703861 ")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	// Recording IDs lead, then release tracks, then releases, with the
	// prefix stripped, case folded, and duplicates dropped.
	want := []string{"aaaa-1111", "bbbb-2222", "cccc-3333"}
	if len(mbids) != len(want) {
		t.Fatalf("mbids = %v, want %v", mbids, want)
	}
	for i := range want {
		if mbids[i] != want[i] {
			t.Errorf("mbids[%d] = %q, want %q", i, mbids[i], want[i])
		}
	}
}

func TestMusicBrainzLookupISRCMiss(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/isrc/ZZZZZ0000000", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "Not Found"}`, http.StatusNotFound)
	})
	c := musicBrainzFixture(t, mux)

	mbids, err := c.LookupISRC(context.Background(), "ZZZZZ0000000")
	if err != nil {
		t.Fatalf("unknown ISRC should not error: %v", err)
	}
	if len(mbids) != 0 {
		t.Errorf("mbids = %v, want none", mbids)
	}
}

func TestMusicBrainzLookupISRCOverloaded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/isrc/USUM71703861", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	c := musicBrainzFixture(t, mux)

	_, err := c.LookupISRC(context.Background(), "USUM71703861")
	if err == nil {
		t.Fatal("expected error for 503")
	}
	// The status must survive so the executor retries it as transient.
	if !shared.IsTransient(err) {
		t.Errorf("503 should classify as transient, got %v", err)
	}
}
