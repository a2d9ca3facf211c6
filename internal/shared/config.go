package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Limits      LimitsConfig      `toml:"limits"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Deezer  DeezerConfig  `toml:"deezer"`
	Plex    PlexConfig    `toml:"plex"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	UserID       string `toml:"user_id"`
}

// DeezerConfig identifies the Deezer user or playlists to read. The public
// Deezer API needs no credentials for either.
type DeezerConfig struct {
	UserID      string   `toml:"user_id"`
	PlaylistIDs []string `toml:"playlist_ids"`
}

// PlexConfig contains the Plex server address and token.
type PlexConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig controls what gets synced and how.
type SyncConfig struct {
	Pairs           []string `toml:"pairs"` // "source:destination", e.g. "spotify:plex"
	IntervalSeconds int      `toml:"interval_seconds"`
	AppendOnly      bool     `toml:"append_only"`
	LikedTracks     bool     `toml:"liked_tracks"`
	MusicBrainz     bool     `toml:"musicbrainz"`
	AddDescription  bool     `toml:"add_description"`
	AddPoster       bool     `toml:"add_poster"`
	MissingDir      string   `toml:"missing_dir"`
	MissingFormat   string   `toml:"missing_format"` // csv, json, both, none
}

// Interval returns the sleep between sync cycles.
func (s SyncConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// LimitsConfig bounds outbound request traffic.
type LimitsConfig struct {
	RequestsPerSecond  float64                 `toml:"requests_per_second"`
	Burst              int                     `toml:"burst"`
	MaxInFlight        int64                   `toml:"max_in_flight"`
	MaxRetries         int                     `toml:"max_retries"`
	CallTimeoutSeconds int                     `toml:"call_timeout_seconds"`
	PerService         map[string]ServiceLimit `toml:"per_service"`
}

// ServiceLimit overrides the global rate for one service.
type ServiceLimit struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// CallTimeout returns the per-call timeout.
func (l LimitsConfig) CallTimeout() time.Duration {
	if l.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.CallTimeoutSeconds) * time.Second
}

// ServiceRate resolves the rate and burst for a service, falling back to the
// global limits.
func (l LimitsConfig) ServiceRate(service string) (float64, int) {
	rps, burst := l.RequestsPerSecond, l.Burst
	if override, ok := l.PerService[service]; ok {
		if override.RequestsPerSecond > 0 {
			rps = override.RequestsPerSecond
		}
		if override.Burst > 0 {
			burst = override.Burst
		}
	}
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return rps, burst
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints that TOML decoding cannot.
func (c *Config) Validate() error {
	switch c.Sync.MissingFormat {
	case "", "csv", "json", "both", "none":
	default:
		return fmt.Errorf("%w: missing_format must be csv, json, both, or none", ErrInvalidConfig)
	}
	for _, pair := range c.Sync.Pairs {
		if _, _, err := ParsePair(pair); err != nil {
			return err
		}
	}
	return nil
}

// ParsePair splits a "source:destination" sync pair. Source and destination
// must be distinct, non-empty service names.
func ParsePair(pair string) (source, dest string, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(pair)), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (expected \"source:destination\")", ErrInvalidPair, pair)
	}
	source, dest = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if source == "" || dest == "" {
		return "", "", fmt.Errorf("%w: empty source or destination in %q", ErrInvalidPair, pair)
	}
	if source == dest {
		return "", "", fmt.Errorf("%w: source and destination are the same in %q", ErrInvalidPair, pair)
	}
	return source, dest, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
