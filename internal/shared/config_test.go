package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParsePair(t *testing.T) {
	tc := []struct {
		name       string
		pair       string
		wantSource string
		wantDest   string
		wantErr    bool
	}{
		{name: "basic pair", pair: "spotify:plex", wantSource: "spotify", wantDest: "plex"},
		{name: "whitespace and case", pair: "  Deezer:PLEX ", wantSource: "deezer", wantDest: "plex"},
		{name: "missing colon", pair: "spotifyplex", wantErr: true},
		{name: "too many parts", pair: "a:b:c", wantErr: true},
		{name: "empty destination", pair: "spotify:", wantErr: true},
		{name: "same on both sides", pair: "plex:plex", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			source, dest, err := ParsePair(tt.pair)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.pair)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source != tt.wantSource || dest != tt.wantDest {
				t.Errorf("ParsePair(%q) = (%q, %q), want (%q, %q)", tt.pair, source, dest, tt.wantSource, tt.wantDest)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Sync.Interval() != 24*time.Hour {
		t.Errorf("expected 24h default interval, got %v", config.Sync.Interval())
	}
	if config.Limits.MaxInFlight != 4 {
		t.Errorf("expected max_in_flight 4, got %d", config.Limits.MaxInFlight)
	}
	if len(config.Sync.Pairs) == 0 {
		t.Error("expected at least one example pair")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestServiceRate(t *testing.T) {
	limits := LimitsConfig{
		RequestsPerSecond: 10,
		Burst:             2,
		PerService: map[string]ServiceLimit{
			"plex": {RequestsPerSecond: 3, Burst: 1},
		},
	}

	t.Run("override", func(t *testing.T) {
		rps, burst := limits.ServiceRate("plex")
		if rps != 3 || burst != 1 {
			t.Errorf("ServiceRate(plex) = (%v, %v), want (3, 1)", rps, burst)
		}
	})

	t.Run("fallback to global", func(t *testing.T) {
		rps, burst := limits.ServiceRate("spotify")
		if rps != 10 || burst != 2 {
			t.Errorf("ServiceRate(spotify) = (%v, %v), want (10, 2)", rps, burst)
		}
	})

	t.Run("defaults when unset", func(t *testing.T) {
		var zero LimitsConfig
		rps, burst := zero.ServiceRate("anything")
		if rps != 5 || burst != 5 {
			t.Errorf("ServiceRate() = (%v, %v), want (5, 5)", rps, burst)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		if err := CreateConfigFile(path); err != nil {
			t.Fatalf("failed to create config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if config.Database.Path == "" {
			t.Error("expected database path to be set")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid missing_format", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		body := "[sync]\nmissing_format = \"yaml\"\n"
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected error for invalid missing_format")
		}
	})

	t.Run("invalid pair rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		body := "[sync]\npairs = [\"plex\"]\n"
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected error for malformed pair")
		}
	})
}

func TestCreateConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := CreateConfigFile(path); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := CreateConfigFile(path); err == nil {
		t.Error("expected error when file already exists")
	}
}
