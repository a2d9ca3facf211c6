// Spotify API implementation of [Provider]
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyOAuthConfig builds the OAuth2 config for the Spotify login flow.
func SpotifyOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"user-library-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

type spotifyExternalIDs struct {
	ISRC string `json:"isrc"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Artists     []spotifyArtist    `json:"artists"`
	Album       spotifyAlbum       `json:"album"`
	DurationMS  int                `json:"duration_ms"`
	ExternalIDs spotifyExternalIDs `json:"external_ids"`
}

type spotifyPlaylistItem struct {
	Track spotifyTrack `json:"track"`
}

type spotifyPage[T any] struct {
	Items []T     `json:"items"`
	Next  *string `json:"next"`
}

type spotifySimplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifySearchResponse struct {
	Tracks spotifyPage[spotifyTrack] `json:"tracks"`
}

// SpotifyProvider implements [Provider] as a read-only source. Access tokens
// come from the credential manager on every request.
type SpotifyProvider struct {
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string
	userID     string
}

// NewSpotifyProvider creates a Spotify source. userID is optional; when set,
// ListPlaylists reads that user's public playlists instead of the
// authenticated user's library.
func NewSpotifyProvider(tokens TokenProvider, userID string) *SpotifyProvider {
	return &SpotifyProvider{
		tokens:     tokens,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		userID:     userID,
	}
}

func (s *SpotifyProvider) Name() string { return "spotify" }

func (s *SpotifyProvider) Writable() bool { return false }

// doRequest performs an authenticated GET against the Spotify API.
// endpoint may be a path or, for pagination, an absolute next-page URL.
func (s *SpotifyProvider) doRequest(ctx context.Context, endpoint string, result any) error {
	token, err := s.tokens.Token(ctx, s.Name())
	if err != nil {
		return err
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = s.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, result)
}

func (s *SpotifyProvider) ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	endpoint := "/me/playlists?limit=50"
	if filter.UserID != "" {
		endpoint = fmt.Sprintf("/users/%s/playlists?limit=50", url.PathEscape(filter.UserID))
	} else if s.userID != "" {
		endpoint = fmt.Sprintf("/users/%s/playlists?limit=50", url.PathEscape(s.userID))
	}

	wanted := make(map[string]struct{}, len(filter.PlaylistIDs))
	for _, id := range filter.PlaylistIDs {
		wanted[id] = struct{}{}
	}

	var playlists []models.Playlist
	for endpoint != "" {
		var page spotifyPage[spotifySimplePlaylist]
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if len(wanted) > 0 {
				if _, ok := wanted[item.ID]; !ok {
					continue
				}
			}
			playlists = append(playlists, models.Playlist{
				ID:          item.ID,
				Name:        item.Name,
				Description: item.Description,
				TrackCount:  item.Tracks.Total,
			})
		}
		endpoint = ""
		if page.Next != nil {
			endpoint = *page.Next
		}
	}
	return playlists, nil
}

func (s *SpotifyProvider) ListTracks(ctx context.Context, playlistID string) ([]models.TrackRef, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=100", url.PathEscape(playlistID))

	var refs []models.TrackRef
	for endpoint != "" {
		var page spotifyPage[spotifyPlaylistItem]
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			// Local files and removed tracks come back with an empty ID.
			if item.Track.ID == "" {
				continue
			}
			refs = append(refs, spotifyTrackRef(item.Track))
		}
		endpoint = ""
		if page.Next != nil {
			endpoint = *page.Next
		}
	}
	return refs, nil
}

func (s *SpotifyProvider) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	query := url.Values{}
	query.Set("q", "isrc:"+isrc)
	query.Set("type", "track")
	query.Set("limit", "10")

	var result spotifySearchResponse
	if err := s.doRequest(ctx, "/search?"+query.Encode(), &result); err != nil {
		return nil, err
	}
	return spotifyTrackRefs(result.Tracks.Items), nil
}

func (s *SpotifyProvider) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	terms := fmt.Sprintf("track:%q artist:%q", title, artist)
	if album != "" {
		terms += fmt.Sprintf(" album:%q", album)
	}
	query := url.Values{}
	query.Set("q", terms)
	query.Set("type", "track")
	query.Set("limit", "10")

	var result spotifySearchResponse
	if err := s.doRequest(ctx, "/search?"+query.Encode(), &result); err != nil {
		return nil, err
	}
	return spotifyTrackRefs(result.Tracks.Items), nil
}

// LikedTracks pages through the authenticated user's saved tracks.
func (s *SpotifyProvider) LikedTracks(ctx context.Context) ([]models.Track, error) {
	endpoint := "/me/tracks?limit=50"

	var tracks []models.Track
	for endpoint != "" {
		var page spotifyPage[spotifyPlaylistItem]
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, spotifyTrackRef(item.Track).Track)
		}
		endpoint = ""
		if page.Next != nil {
			endpoint = *page.Next
		}
	}
	return tracks, nil
}

func (s *SpotifyProvider) CreatePlaylist(ctx context.Context, name, description, poster string) (string, error) {
	return "", fmt.Errorf("%w: spotify is a read-only source", shared.ErrNotImplemented)
}

func (s *SpotifyProvider) AddTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: spotify is a read-only source", shared.ErrNotImplemented)
}

func (s *SpotifyProvider) RemoveTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: spotify is a read-only source", shared.ErrNotImplemented)
}

func (s *SpotifyProvider) SetOrder(ctx context.Context, playlistID string, nativeIDs []string) error {
	return fmt.Errorf("%w: spotify is a read-only source", shared.ErrNotImplemented)
}

func (s *SpotifyProvider) RateTrack(ctx context.Context, nativeID string, stars float64) error {
	return fmt.Errorf("%w: spotify is a read-only source", shared.ErrNotImplemented)
}

func spotifyTrackRef(t spotifyTrack) models.TrackRef {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return models.TrackRef{
		NativeID: t.ID,
		Track: models.Track{
			Title:    t.Name,
			Artist:   strings.Join(artists, ", "),
			Album:    t.Album.Name,
			Duration: t.DurationMS / 1000,
			ISRC:     t.ExternalIDs.ISRC,
		},
	}
}

func spotifyTrackRefs(tracks []spotifyTrack) []models.TrackRef {
	refs := make([]models.TrackRef, 0, len(tracks))
	for _, t := range tracks {
		refs = append(refs, spotifyTrackRef(t))
	}
	return refs
}
