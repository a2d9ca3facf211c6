// package services defines interface Provider for interacting with music service HTTP APIs
//
// Spotify, Deezer (sources), Plex (destination)
package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/plexist/internal/models"
)

// PlaylistFilter narrows which playlists ListPlaylists returns: a specific
// user's playlists, specific playlist IDs, or everything when zero-valued.
type PlaylistFilter struct {
	UserID      string
	PlaylistIDs []string
}

// Provider is the capability interface every music service implements.
//
// Sources implement the read operations; destinations additionally implement
// the write operations and report Writable. A provider that does not support
// an operation returns [shared.ErrNotImplemented].
//
// Write operations are idempotent at the playlist-membership level: adding an
// already-present track or removing an already-absent one succeeds as a
// no-op. The executor relies on that when it retries.
type Provider interface {
	// Name returns the lowercase service key (e.g. "spotify", "plex").
	Name() string

	// Writable reports whether this provider can be a sync destination.
	Writable() bool

	// ListPlaylists retrieves playlists matching the filter.
	ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error)

	// ListTracks retrieves a playlist's tracks in order. NativeID is set for
	// services that expose one (always, for destinations).
	ListTracks(ctx context.Context, playlistID string) ([]models.TrackRef, error)

	// SearchByISRC finds catalog tracks carrying the given ISRC.
	SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error)

	// SearchByMetadata finds catalog candidates for a title/artist query.
	// Album may be empty.
	SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error)

	// CreatePlaylist creates an empty playlist and returns its native ID.
	CreatePlaylist(ctx context.Context, name, description, poster string) (string, error)

	// AddTracks appends tracks to a playlist in the given order.
	AddTracks(ctx context.Context, playlistID string, nativeIDs []string) error

	// RemoveTracks removes tracks from a playlist.
	RemoveTracks(ctx context.Context, playlistID string, nativeIDs []string) error

	// SetOrder replaces a playlist's contents with the given ordered list.
	SetOrder(ctx context.Context, playlistID string, nativeIDs []string) error

	// RateTrack sets a track's star rating (0 clears it). Liked-tracks sync only.
	RateTrack(ctx context.Context, nativeID string, stars float64) error
}

// LikedSource is implemented by source providers that expose the user's
// liked/favorite tracks. The liked-tracks sync mirrors these onto the
// destination as five-star ratings.
type LikedSource interface {
	LikedTracks(ctx context.Context) ([]models.Track, error)
}

// TokenProvider hands out a currently-valid access token for a service.
// Implemented by the credential manager; providers never cache or persist
// tokens themselves.
type TokenProvider interface {
	Token(ctx context.Context, service string) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Provider{}
)

// Register adds a provider to the process-wide registry, keyed by its
// lowercase name. Later registrations replace earlier ones.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(p.Name())] = p
}

// Lookup finds a registered provider by name (case-insensitive).
func Lookup(name string) (Provider, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[strings.ToLower(name)]
	return p, ok
}

// All returns registered providers sorted by name.
func All() []Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	providers := make([]Provider, 0, len(registry))
	for _, p := range registry {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name() < providers[j].Name() })
	return providers
}

// Reset clears the registry. Test helper.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]Provider{}
}
