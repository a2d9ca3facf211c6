// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/services"
	"github.com/desertthunder/plexist/internal/shared"
)

// FakeProvider is an in-memory test double for [services.Provider]. It acts
// as both source and destination: playlists, tracks, and a searchable
// catalog live in maps, and write operations mutate them under a lock.
type FakeProvider struct {
	ServiceName string
	CanWrite    bool

	mu        sync.Mutex
	Playlists []models.Playlist
	Tracks    map[string][]models.TrackRef // playlist ID -> tracks
	Catalog   []models.TrackRef
	Ratings   map[string]float64
	Liked     []models.Track
	NextID    int

	// Err, when set, is returned by every operation.
	Err error
}

// NewFakeProvider creates an empty fake for the named service.
func NewFakeProvider(name string, writable bool) *FakeProvider {
	return &FakeProvider{
		ServiceName: name,
		CanWrite:    writable,
		Tracks:      map[string][]models.TrackRef{},
		Ratings:     map[string]float64{},
		NextID:      1,
	}
}

func (f *FakeProvider) Name() string   { return f.ServiceName }
func (f *FakeProvider) Writable() bool { return f.CanWrite }

// AddPlaylist seeds a playlist with tracks and returns its ID.
func (f *FakeProvider) AddPlaylist(name string, tracks ...models.TrackRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextIDLocked()
	f.Playlists = append(f.Playlists, models.Playlist{ID: id, Name: name, TrackCount: len(tracks)})
	f.Tracks[id] = append([]models.TrackRef{}, tracks...)
	return id
}

// AddCatalog seeds searchable catalog tracks.
func (f *FakeProvider) AddCatalog(refs ...models.TrackRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Catalog = append(f.Catalog, refs...)
}

func (f *FakeProvider) nextIDLocked() string {
	id := fmt.Sprintf("%s-%d", f.ServiceName, f.NextID)
	f.NextID++
	return id
}

func (f *FakeProvider) ListPlaylists(ctx context.Context, filter services.PlaylistFilter) ([]models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.Playlist{}, f.Playlists...), nil
}

func (f *FakeProvider) ListTracks(ctx context.Context, playlistID string) ([]models.TrackRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	tracks, ok := f.Tracks[playlistID]
	if !ok {
		return nil, shared.ErrPlaylistNotFound
	}
	return append([]models.TrackRef{}, tracks...), nil
}

func (f *FakeProvider) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var hits []models.TrackRef
	for _, ref := range f.Catalog {
		if models.ISRCEqual(ref.Track, models.Track{ISRC: isrc}) {
			hits = append(hits, ref)
		}
	}
	return hits, nil
}

func (f *FakeProvider) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var hits []models.TrackRef
	for _, ref := range f.Catalog {
		if strings.EqualFold(ref.Track.Title, title) {
			hits = append(hits, ref)
		}
	}
	return hits, nil
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, name, description, poster string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if !f.CanWrite {
		return "", shared.ErrNotImplemented
	}
	id := f.nextIDLocked()
	f.Playlists = append(f.Playlists, models.Playlist{ID: id, Name: name, Description: description})
	f.Tracks[id] = nil
	return id, nil
}

func (f *FakeProvider) AddTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !f.CanWrite {
		return shared.ErrNotImplemented
	}
	present := map[string]struct{}{}
	for _, ref := range f.Tracks[playlistID] {
		present[ref.NativeID] = struct{}{}
	}
	for _, id := range nativeIDs {
		if _, ok := present[id]; ok {
			continue
		}
		f.Tracks[playlistID] = append(f.Tracks[playlistID], f.catalogRefLocked(id))
	}
	return nil
}

func (f *FakeProvider) RemoveTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !f.CanWrite {
		return shared.ErrNotImplemented
	}
	removing := map[string]struct{}{}
	for _, id := range nativeIDs {
		removing[id] = struct{}{}
	}
	var kept []models.TrackRef
	for _, ref := range f.Tracks[playlistID] {
		if _, gone := removing[ref.NativeID]; !gone {
			kept = append(kept, ref)
		}
	}
	f.Tracks[playlistID] = kept
	return nil
}

func (f *FakeProvider) SetOrder(ctx context.Context, playlistID string, nativeIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !f.CanWrite {
		return shared.ErrNotImplemented
	}
	ordered := make([]models.TrackRef, 0, len(nativeIDs))
	for _, id := range nativeIDs {
		ordered = append(ordered, f.catalogRefLocked(id))
	}
	f.Tracks[playlistID] = ordered
	return nil
}

func (f *FakeProvider) RateTrack(ctx context.Context, nativeID string, stars float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !f.CanWrite {
		return shared.ErrNotImplemented
	}
	if stars == 0 {
		delete(f.Ratings, nativeID)
		return nil
	}
	f.Ratings[nativeID] = stars
	return nil
}

// LikedTracks implements [services.LikedSource].
func (f *FakeProvider) LikedTracks(ctx context.Context) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.Track{}, f.Liked...), nil
}

// TrackIDs returns a playlist's native IDs in order. Assertion helper.
func (f *FakeProvider) TrackIDs(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.Tracks[playlistID]))
	for _, ref := range f.Tracks[playlistID] {
		ids = append(ids, ref.NativeID)
	}
	return ids
}

func (f *FakeProvider) catalogRefLocked(id string) models.TrackRef {
	for _, ref := range f.Catalog {
		if ref.NativeID == id {
			return ref
		}
	}
	return models.TrackRef{NativeID: id}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}
