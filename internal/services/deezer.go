// Deezer API implementation of [Provider]
//
// Deezer's public API needs no authentication for reading public user
// playlists; errors come back as 200 responses carrying an error object.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

const deezerBaseURL = "https://api.deezer.com"

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerArtist struct {
	Name string `json:"name"`
}

type deezerAlbum struct {
	Title string `json:"title"`
}

type deezerTrack struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Duration int          `json:"duration"`
	ISRC     string       `json:"isrc"`
	Artist   deezerArtist `json:"artist"`
	Album    deezerAlbum  `json:"album"`
	Error    *deezerError `json:"error"`
}

type deezerPlaylist struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	NbTracks int    `json:"nb_tracks"`
}

type deezerPage[T any] struct {
	Data  []T          `json:"data"`
	Next  string       `json:"next"`
	Error *deezerError `json:"error"`
}

// DeezerProvider implements [Provider] as a read-only source over Deezer's
// public API.
type DeezerProvider struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	// playlistIDs restricts ListPlaylists when the user configured
	// explicit playlists instead of a user profile.
	playlistIDs []string
}

// NewDeezerProvider creates a Deezer source for a public user profile
// and/or a fixed set of playlist IDs.
func NewDeezerProvider(userID string, playlistIDs []string) *DeezerProvider {
	return &DeezerProvider{
		httpClient:  http.DefaultClient,
		baseURL:     deezerBaseURL,
		userID:      userID,
		playlistIDs: playlistIDs,
	}
}

func (d *DeezerProvider) Name() string { return "deezer" }

func (d *DeezerProvider) Writable() bool { return false }

func (d *DeezerProvider) doRequest(ctx context.Context, apiURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, result)
}

// apiError maps Deezer's in-body error objects onto the shared error
// taxonomy. Quota exhaustion (code 4) counts as rate limiting.
func apiError(e *deezerError) error {
	if e == nil {
		return nil
	}
	if e.Code == 4 {
		return fmt.Errorf("%w: deezer: %s", shared.ErrRateLimited, e.Message)
	}
	return fmt.Errorf("%w: deezer: %s (code %d)", shared.ErrAPIRequest, e.Message, e.Code)
}

func (d *DeezerProvider) ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	ids := filter.PlaylistIDs
	if len(ids) == 0 {
		ids = d.playlistIDs
	}
	if len(ids) > 0 {
		return d.playlistsByID(ctx, ids)
	}

	userID := filter.UserID
	if userID == "" {
		userID = d.userID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: deezer needs a user id or playlist ids", shared.ErrMissingConfig)
	}

	pageURL := fmt.Sprintf("%s/user/%s/playlists", d.baseURL, url.PathEscape(userID))
	var playlists []models.Playlist
	for pageURL != "" {
		var page deezerPage[deezerPlaylist]
		if err := d.doRequest(ctx, pageURL, &page); err != nil {
			return nil, err
		}
		if err := apiError(page.Error); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			playlists = append(playlists, models.Playlist{
				ID:         strconv.FormatInt(item.ID, 10),
				Name:       item.Title,
				TrackCount: item.NbTracks,
			})
		}
		pageURL = page.Next
	}
	return playlists, nil
}

func (d *DeezerProvider) playlistsByID(ctx context.Context, ids []string) ([]models.Playlist, error) {
	playlists := make([]models.Playlist, 0, len(ids))
	for _, id := range ids {
		var pl deezerPlaylist
		if err := d.doRequest(ctx, fmt.Sprintf("%s/playlist/%s", d.baseURL, url.PathEscape(id)), &pl); err != nil {
			return nil, err
		}
		playlists = append(playlists, models.Playlist{
			ID:         strconv.FormatInt(pl.ID, 10),
			Name:       pl.Title,
			TrackCount: pl.NbTracks,
		})
	}
	return playlists, nil
}

func (d *DeezerProvider) ListTracks(ctx context.Context, playlistID string) ([]models.TrackRef, error) {
	pageURL := fmt.Sprintf("%s/playlist/%s/tracks", d.baseURL, url.PathEscape(playlistID))

	var refs []models.TrackRef
	for pageURL != "" {
		var page deezerPage[deezerTrack]
		if err := d.doRequest(ctx, pageURL, &page); err != nil {
			return nil, err
		}
		if err := apiError(page.Error); err != nil {
			return nil, err
		}
		for _, t := range page.Data {
			refs = append(refs, deezerTrackRef(t))
		}
		pageURL = page.Next
	}
	return refs, nil
}

// SearchByISRC uses Deezer's direct ISRC lookup. A "no data" error means
// the catalog has no such track, which is not a failure.
func (d *DeezerProvider) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	var t deezerTrack
	if err := d.doRequest(ctx, fmt.Sprintf("%s/track/isrc:%s", d.baseURL, url.PathEscape(isrc)), &t); err != nil {
		return nil, err
	}
	if t.Error != nil {
		if t.Error.Code == 800 { // DataException: no result
			return nil, nil
		}
		return nil, apiError(t.Error)
	}
	if t.ID == 0 {
		return nil, nil
	}
	return []models.TrackRef{deezerTrackRef(t)}, nil
}

func (d *DeezerProvider) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	terms := fmt.Sprintf(`track:%q artist:%q`, title, artist)
	if album != "" {
		terms += fmt.Sprintf(` album:%q`, album)
	}
	query := url.Values{}
	query.Set("q", terms)

	var page deezerPage[deezerTrack]
	if err := d.doRequest(ctx, fmt.Sprintf("%s/search/track?%s", d.baseURL, query.Encode()), &page); err != nil {
		return nil, err
	}
	if err := apiError(page.Error); err != nil {
		return nil, err
	}
	refs := make([]models.TrackRef, 0, len(page.Data))
	for _, t := range page.Data {
		refs = append(refs, deezerTrackRef(t))
	}
	return refs, nil
}

func (d *DeezerProvider) CreatePlaylist(ctx context.Context, name, description, poster string) (string, error) {
	return "", fmt.Errorf("%w: deezer is a read-only source", shared.ErrNotImplemented)
}

func (d *DeezerProvider) AddTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: deezer is a read-only source", shared.ErrNotImplemented)
}

func (d *DeezerProvider) RemoveTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: deezer is a read-only source", shared.ErrNotImplemented)
}

func (d *DeezerProvider) SetOrder(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: deezer is a read-only source", shared.ErrNotImplemented)
}

func (d *DeezerProvider) RateTrack(ctx context.Context, nativeID string, stars float64) error {
	return fmt.Errorf("%w: deezer is a read-only source", shared.ErrNotImplemented)
}

func deezerTrackRef(t deezerTrack) models.TrackRef {
	return models.TrackRef{
		NativeID: strconv.FormatInt(t.ID, 10),
		Track: models.Track{
			Title:    t.Title,
			Artist:   t.Artist.Name,
			Album:    t.Album.Title,
			Duration: t.Duration,
			ISRC:     t.ISRC,
		},
	}
}
